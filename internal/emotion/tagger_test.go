package emotion

import "testing"

func TestTagMarkupWinsOverLexicalCues(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Class
	}{
		{"bold span", "**¡Qué bien!** cuéntame más.", ClassPositive},
		{"underscore span", "__Tranquilo__, todo está bien.", ClassCalm},
		{"positive words no markup", "me encanta hablar contigo", ClassPositive},
		{"calm words no markup", "respira despacio y cuéntame", ClassCalm},
		{"plain question", "¿Qué hiciste hoy en clase?", ClassNeutral},
		{"english positive", "That sounds awesome, tell me more", ClassPositive},
		{"empty", "", ClassNeutral},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Tag(tc.text); got != tc.want {
				t.Fatalf("Tag(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestTagIsIdempotent(t *testing.T) {
	texts := []string{
		"**¡Genial!** ¿qué más te gusta?",
		"__Con calma__, dime qué pasó.",
		"Entiendo. ¿Y luego?",
	}
	for _, text := range texts {
		first := Tag(text)
		second := Tag(text)
		if first != second {
			t.Fatalf("Tag(%q) not stable: %q then %q", text, first, second)
		}
	}
}

func TestStripRemovesMarkupOnly(t *testing.T) {
	got := Strip("**¡Hola!** ¿quieres hablar __despacio__  de la escuela?")
	want := "¡Hola! ¿quieres hablar despacio de la escuela?"
	if got != want {
		t.Fatalf("Strip() = %q, want %q", got, want)
	}
}

func TestHasMarkup(t *testing.T) {
	if !HasMarkup("**hola**") {
		t.Fatalf("HasMarkup should detect bold spans")
	}
	if !HasMarkup("__hola__") {
		t.Fatalf("HasMarkup should detect underscore spans")
	}
	if HasMarkup("hola") {
		t.Fatalf("HasMarkup false positive on plain text")
	}
}
