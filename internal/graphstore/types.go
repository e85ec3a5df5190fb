// Package graphstore persists child knowledge as RDF triples and gates
// writes behind SHACL shape validation.
package graphstore

import "context"

// Triple is one subject-predicate-object statement. Object is a literal
// when Literal is true, otherwise a resource reference.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Literal   bool   `json:"literal,omitempty"`
}

// Violation is one SHACL constraint failure.
type Violation struct {
	FocusNode string `json:"focus_node"`
	Path      string `json:"path,omitempty"`
	Message   string `json:"message"`
}

// ValidationReport is the outcome of validating a candidate graph update.
type ValidationReport struct {
	Conforms   bool        `json:"conforms"`
	Violations []Violation `json:"violations,omitempty"`
}

// QueryResult holds SPARQL SELECT bindings, one map per solution row.
type QueryResult struct {
	Vars     []string            `json:"vars"`
	Bindings []map[string]string `json:"bindings"`
}

// Store is the knowledge-graph contract. Update runs a SPARQL update;
// Validate checks candidate triples against the configured shapes without
// committing anything.
type Store interface {
	Query(ctx context.Context, sparql string) (*QueryResult, error)
	Update(ctx context.Context, sparql string) error
	Validate(ctx context.Context, triples []Triple) (*ValidationReport, error)
	Close() error
}
