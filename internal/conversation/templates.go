package conversation

import (
	"fmt"
	"strings"
)

// Canned lines for the moments the model is not consulted: the opening
// turn, the reply when the model is unavailable, and the goodbye. All of
// them carry emotional markup so the speech layer downstream can style
// them like any other reply.

var openingsByTopic = map[string]map[string]string{
	"school": {
		"es": "**¡Hola %s!** Hoy me apetece hablar del cole. ¿Qué tal te ha ido hoy?",
		"en": "**Hi %s!** I feel like talking about school today. How was your day?",
	},
	"pets": {
		"es": "**¡Hola %s!** ¿Hablamos de animales? Cuéntame, ¿tienes alguna mascota?",
		"en": "**Hi %s!** Shall we talk about animals? Tell me, do you have a pet?",
	},
	"family": {
		"es": "**¡Hola %s!** Me encantaría saber de tu familia. ¿Con quién vives?",
		"en": "**Hi %s!** I'd love to hear about your family. Who do you live with?",
	},
	"friends": {
		"es": "**¡Hola %s!** Hoy toca hablar de amigos. ¿Con quién has jugado últimamente?",
		"en": "**Hi %s!** Let's talk about friends today. Who have you played with lately?",
	},
}

var openingDefault = map[string]string{
	"es": "**¡Hola %s!** ¿De qué te apetece hablar hoy? Me encanta escucharte.",
	"en": "**Hi %s!** What would you like to talk about today? I love listening to you.",
}

var fallbacks = map[string][]string{
	"es": {
		"__Vaya__, me he quedado pensando. ¿Me lo cuentas otra vez?",
		"**¡Qué interesante!** Cuéntame un poquito más.",
		"__Mmm__, no te he entendido bien. ¿Puedes decirlo de otra manera?",
	},
	"en": {
		"__Hmm__, I got lost in thought. Can you tell me that again?",
		"**How interesting!** Tell me a little more.",
		"__Mmm__, I didn't quite catch that. Can you say it another way?",
	},
}

var farewells = map[string]string{
	"es": "**¡Hasta pronto!** Me ha encantado hablar contigo. Nos vemos en la próxima.",
	"en": "**See you soon!** I loved talking with you. Until next time.",
}

var windDowns = map[string]string{
	"es": "__Ya casi es hora de despedirnos.__ ¿Quieres contarme una última cosa?",
	"en": "__It's almost time to say goodbye.__ Do you want to tell me one last thing?",
}

// Answer suggestions offered to children at lower conversational levels,
// so the tablet UI can show tappable replies.
var suggestionsByTopic = map[string]map[string][]string{
	"school": {
		"es": {"Me gusta el recreo", "Hoy aprendí algo nuevo", "Jugué con mis amigos"},
		"en": {"I like recess", "I learned something new today", "I played with my friends"},
	},
	"pets": {
		"es": {"Tengo un perro", "Me gustan los gatos", "No tengo mascota"},
		"en": {"I have a dog", "I like cats", "I don't have a pet"},
	},
	"family": {
		"es": {"Vivo con mis padres", "Tengo un hermano", "Tengo una hermana"},
		"en": {"I live with my parents", "I have a brother", "I have a sister"},
	},
	"friends": {
		"es": {"Jugué con mi mejor amigo", "Hicimos un juego nuevo", "Fuimos al parque"},
		"en": {"I played with my best friend", "We made up a new game", "We went to the park"},
	},
}

var suggestionsDefault = map[string][]string{
	"es": {"Sí", "No", "Cuéntame más"},
	"en": {"Yes", "No", "Tell me more"},
}

// suggestionsFor returns tappable answer prompts for levels that need
// them; higher levels answer freely.
func suggestionsFor(topic string, level int, lang string) []string {
	if level > 4 {
		return nil
	}
	lang = normalizeLanguage(lang)
	if byLang, ok := suggestionsByTopic[topic]; ok {
		return byLang[lang]
	}
	return suggestionsDefault[lang]
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang != "en" {
		return "es"
	}
	return "en"
}

func openingLine(name, topic, lang string) string {
	lang = normalizeLanguage(lang)
	if name == "" {
		if lang == "en" {
			name = "friend"
		} else {
			name = "amigo"
		}
	}
	if byLang, ok := openingsByTopic[topic]; ok {
		return fmt.Sprintf(byLang[lang], name)
	}
	return fmt.Sprintf(openingDefault[lang], name)
}

// fallbackLine picks deterministically from the pool so retries of the
// same utterance do not flap between templates.
func fallbackLine(childText, lang string) string {
	pool := fallbacks[normalizeLanguage(lang)]
	return pool[len(childText)%len(pool)]
}

func farewellLine(lang string) string {
	return farewells[normalizeLanguage(lang)]
}

func windDownLine(lang string) string {
	return windDowns[normalizeLanguage(lang)]
}
