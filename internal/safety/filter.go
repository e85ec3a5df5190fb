package safety

import (
	"regexp"
	"strings"
)

// Category names the kind of issue the filter detected.
type Category string

const (
	CategoryViolence     Category = "violence"
	CategoryScaryTopic   Category = "scary_topic"
	CategoryAdultTopic   Category = "adult_topic"
	CategoryProfanity    Category = "profanity"
	CategoryPersonalInfo Category = "personal_info"
	CategoryAvoidedTopic Category = "avoided_topic"
)

// Result is the outcome of a safety classification.
type Result struct {
	Safe     bool
	Category Category
	Reason   string
}

// Profile is the slice of a child profile the filter needs. It is kept as a
// plain value type so classification stays a pure function of its inputs.
type Profile struct {
	Age         int
	Level       int
	AvoidTopics []string
	Sensitivity string
	Language    string
}

// The fixed deny list applies to every profile regardless of configuration.
var (
	violencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(matar|muerte|asesinar|golpear|pegar|atacar|maltratar)\b`),
		regexp.MustCompile(`(?i)\b(arma|pistola|cuchillo|bomba|explosivo)\b`),
		regexp.MustCompile(`(?i)\b(kill|murder|weapon|gun|knife|bomb|attack|beat up)\b`),
		regexp.MustCompile(`(?i)\b(sangre|herida|violencia)\b`),
		regexp.MustCompile(`(?i)\b(blood|wound|violence)\b`),
	}
	scaryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(monstruos?|fantasmas?|demonios?|zombis?|pesadillas?|secuestro)\b`),
		regexp.MustCompile(`(?i)\b(monsters?|ghosts?|demons?|zombies?|nightmares?|kidnapping)\b`),
	}
	adultPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(sexo|drogas?|alcohol|tabaco|apuestas)\b`),
		regexp.MustCompile(`(?i)\b(sex|drugs?|alcohol|tobacco|gambling)\b`),
	}
	profanityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(mierda|joder|puta|gilipollas|cabrón)\b`),
		regexp.MustCompile(`(?i)\b(shit|fuck|bitch|asshole)\b`),
	}
	personalInfoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{8,}\b`),
		regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`),
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		regexp.MustCompile(`(?i)(tarjeta|crédito|débito|visa|mastercard)\s*\d+`),
	}

	denyList = []struct {
		category Category
		patterns []*regexp.Regexp
	}{
		{CategoryViolence, violencePatterns},
		{CategoryAdultTopic, adultPatterns},
		{CategoryScaryTopic, scaryPatterns},
		{CategoryProfanity, profanityPatterns},
		{CategoryPersonalInfo, personalInfoPatterns},
	}

	// Keywords that mark a span as referencing a configurable avoid-topic.
	topicKeywords = map[string][]string{
		"family_issues": {
			"divorcio", "separación", "se pelean", "discuten mucho", "mis padres pelean",
			"divorce", "separation", "my parents fight", "family issues", "problemas de familia",
		},
		"school": {"escuela", "colegio", "cole", "clase", "school", "classes"},
		"family": {"familia", "padres", "hermano", "hermana", "family", "parents"},
		"food":   {"comida", "comer", "cocinar", "food", "eat", "cooking"},
		"money":  {"dinero", "deudas", "money", "debts"},
		"health": {"enfermedad", "hospital", "illness", "sickness"},
	}
)

// Classify runs the content safety check for a text span against a child
// profile. It is a pure function: no external calls, same result for the same
// input. Absence of a detected issue means safe.
func Classify(text string, profile Profile) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Safe: true}
	}

	for _, entry := range denyList {
		for _, re := range entry.patterns {
			if re.MatchString(trimmed) {
				return Result{
					Safe:     false,
					Category: entry.category,
					Reason:   "matched fixed deny list",
				}
			}
		}
	}

	lower := strings.ToLower(trimmed)
	for _, topic := range profile.AvoidTopics {
		if topicMentioned(lower, topic) {
			return Result{
				Safe:     false,
				Category: CategoryAvoidedTopic,
				Reason:   "references avoided topic " + topic,
			}
		}
	}

	return Result{Safe: true}
}

func topicMentioned(lowerText, topic string) bool {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return false
	}
	if strings.Contains(lowerText, strings.ReplaceAll(topic, "_", " ")) {
		return true
	}
	for _, kw := range topicKeywords[topic] {
		if strings.Contains(lowerText, kw) {
			return true
		}
	}
	return false
}
