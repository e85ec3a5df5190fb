package graphstore

import (
	"fmt"
	"regexp"
	"strings"
)

// Prefixes shared by every generated SPARQL statement. emo: is the
// companion ontology namespace for children, entities and relations.
const Prefixes = `PREFIX emo: <http://emorobcare.org/onto#>
PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>
`

var unsafeIRIChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// LocalName turns free text into a safe local name under the emo: prefix.
func LocalName(text string) string {
	name := strings.TrimSpace(strings.ToLower(text))
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeIRIChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "unnamed"
	}
	return name
}

// ChildIRI returns the emo: resource term for a child profile.
func ChildIRI(childID string) string {
	return "emo:child_" + LocalName(childID)
}

// EntityIRI returns the emo: resource term for an extracted entity.
func EntityIRI(entityType, name string) string {
	return fmt.Sprintf("emo:%s_%s", LocalName(entityType), LocalName(name))
}

func escapeLiteral(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}

func formatTerm(t Triple) string {
	if t.Literal {
		return "\"" + escapeLiteral(t.Object) + "\""
	}
	return t.Object
}

// InsertData renders triples as a SPARQL INSERT DATA update.
func InsertData(triples []Triple) string {
	var b strings.Builder
	b.WriteString(Prefixes)
	b.WriteString("INSERT DATA {\n")
	for _, t := range triples {
		fmt.Fprintf(&b, "  %s %s %s .\n", t.Subject, t.Predicate, formatTerm(t))
	}
	b.WriteString("}\n")
	return b.String()
}

// SelectChildFacts builds a query for the most recent facts linked to a
// child, used by the context assembler.
func SelectChildFacts(childID string, limit int) string {
	if limit <= 0 {
		limit = 10
	}
	return fmt.Sprintf(`%sSELECT ?p ?o ?label WHERE {
  %s ?p ?o .
  OPTIONAL { ?o rdfs:label ?label }
  FILTER (?p != rdf:type)
} LIMIT %d`, Prefixes, ChildIRI(childID), limit)
}
