package safety

// Redirect replies steer the conversation back to safe ground without
// engaging the flagged topic. Selection is deterministic for a given input
// text so repeated turns behave predictably.

var redirectTemplates = map[string]map[ageBand][]string{
	"es": {
		bandYoung: {
			"**¡Hola!** ¿quieres hablar de juegos divertidos?",
			"__Tranquilo__ ¿te gusta jugar con tus amigos?",
			"**¡Qué bien!** ¿qué te hace feliz hoy?",
		},
		bandMiddle: {
			"**¡Hola!** ¿qué actividades te gustan más?",
			"__Claro__ ¿quieres hablar de tus hobbies?",
			"**¡Fantástico!** ¿qué has aprendido hoy?",
		},
		bandOlder: {
			"**¡Hola!** ¿qué proyectos interesantes tienes?",
			"__Entiendo__ ¿quieres compartir tus ideas?",
			"**¡Excelente!** ¿qué has descubierto nuevo?",
		},
	},
	"en": {
		bandYoung: {
			"**Hi!** do you want to talk about fun games?",
			"__Calm__ do you like playing with your friends?",
			"**Great!** what makes you happy today?",
		},
		bandMiddle: {
			"**Hi!** what activities do you like most?",
			"__Sure__ do you want to talk about your hobbies?",
			"**Fantastic!** what did you learn today?",
		},
		bandOlder: {
			"**Hi!** what interesting projects do you have?",
			"__Got it__ do you want to share your ideas?",
			"**Excellent!** what new things have you discovered?",
		},
	},
}

type ageBand int

const (
	bandYoung ageBand = iota
	bandMiddle
	bandOlder
)

func bandForAge(age int) ageBand {
	switch {
	case age <= 7:
		return bandYoung
	case age <= 10:
		return bandMiddle
	default:
		return bandOlder
	}
}

// RedirectReply returns an age- and language-appropriate reply that moves the
// conversation away from the flagged content. The template index derives from
// the flagged text so the choice is stable for identical input.
func RedirectReply(flaggedText string, profile Profile) string {
	lang := profile.Language
	byBand, ok := redirectTemplates[lang]
	if !ok {
		byBand = redirectTemplates["es"]
	}
	templates := byBand[bandForAge(profile.Age)]
	return templates[len(flaggedText)%len(templates)]
}
