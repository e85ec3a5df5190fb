package graphstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Rule checks a single candidate triple. A nil result means the triple
// conforms.
type Rule func(Triple) *Violation

// InMemoryStore is a process-local graph used for development and tests.
// It answers the subject-facts queries the context assembler issues and
// validates candidate triples with a configurable rule set.
type InMemoryStore struct {
	mu      sync.RWMutex
	triples []Triple
	rules   []Rule
}

func NewInMemoryStore(rules ...Rule) *InMemoryStore {
	if len(rules) == 0 {
		rules = []Rule{WellFormedRule}
	}
	return &InMemoryStore{rules: rules}
}

// WellFormedRule rejects triples with missing terms or non-prefixed
// subjects, mirroring the shape constraints enforced in production.
func WellFormedRule(t Triple) *Violation {
	if t.Subject == "" || t.Predicate == "" || t.Object == "" {
		return &Violation{FocusNode: t.Subject, Path: t.Predicate, Message: "incomplete triple"}
	}
	if !strings.Contains(t.Subject, ":") {
		return &Violation{FocusNode: t.Subject, Message: "subject is not a prefixed resource"}
	}
	return nil
}

var (
	subjectFactsRE = regexp.MustCompile(`(emo:\S+)\s+\?p\s+\?o`)
	insertBlockRE  = regexp.MustCompile(`(?s)INSERT DATA\s*\{(.*)\}`)
	tripleLineRE   = regexp.MustCompile(`^\s*(\S+)\s+(\S+)\s+(.+?)\s*\.\s*$`)
)

func (s *InMemoryStore) Query(_ context.Context, sparql string) (*QueryResult, error) {
	m := subjectFactsRE.FindStringSubmatch(sparql)
	if m == nil {
		return nil, fmt.Errorf("unsupported query shape")
	}
	subject := m[1]
	skipType := strings.Contains(sparql, "?p != rdf:type")

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &QueryResult{Vars: []string{"p", "o"}}
	for _, t := range s.triples {
		if t.Subject != subject {
			continue
		}
		if skipType && t.Predicate == "rdf:type" {
			continue
		}
		out.Bindings = append(out.Bindings, map[string]string{
			"p": t.Predicate,
			"o": t.Object,
		})
	}
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, sparql string) error {
	block := insertBlockRE.FindStringSubmatch(sparql)
	if block == nil {
		return fmt.Errorf("unsupported update shape")
	}

	var parsed []Triple
	for _, line := range strings.Split(block[1], "\n") {
		m := tripleLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t := Triple{Subject: m[1], Predicate: m[2], Object: m[3]}
		if strings.HasPrefix(t.Object, `"`) {
			t.Literal = true
			t.Object = strings.Trim(t.Object, `"`)
		}
		parsed = append(parsed, t)
	}

	s.mu.Lock()
	s.triples = append(s.triples, parsed...)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Validate(_ context.Context, triples []Triple) (*ValidationReport, error) {
	report := &ValidationReport{Conforms: true}
	for _, t := range triples {
		for _, rule := range s.rules {
			if v := rule(t); v != nil {
				report.Violations = append(report.Violations, *v)
			}
		}
	}
	report.Conforms = len(report.Violations) == 0
	return report, nil
}

func (s *InMemoryStore) Close() error { return nil }

// TripleCount reports the number of stored statements. Used by tests to
// assert that rejected updates leave the graph untouched.
func (s *InMemoryStore) TripleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.triples)
}
