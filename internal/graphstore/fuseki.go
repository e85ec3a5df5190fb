package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FusekiStore talks to an Apache Jena Fuseki server: SPARQL query and
// update endpoints plus the SHACL validation service.
type FusekiStore struct {
	baseURL string
	dataset string
	client  *http.Client
}

func NewFusekiStore(baseURL, dataset string, timeout time.Duration) *FusekiStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FusekiStore{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		dataset: dataset,
		client:  &http.Client{Timeout: timeout},
	}
}

type sparqlResultsJSON struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

func (s *FusekiStore) Query(ctx context.Context, sparql string) (*QueryResult, error) {
	endpoint := fmt.Sprintf("%s/%s/query", s.baseURL, s.dataset)
	form := url.Values{"query": {sparql}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	body, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("sparql query: %w", err)
	}

	var parsed sparqlResultsJSON
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("sparql query: decode results: %w", err)
	}

	out := &QueryResult{Vars: parsed.Head.Vars}
	for _, row := range parsed.Results.Bindings {
		binding := make(map[string]string, len(row))
		for k, v := range row {
			binding[k] = v.Value
		}
		out.Bindings = append(out.Bindings, binding)
	}
	return out, nil
}

func (s *FusekiStore) Update(ctx context.Context, sparql string) error {
	endpoint := fmt.Sprintf("%s/%s/update", s.baseURL, s.dataset)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(sparql))
	if err != nil {
		return fmt.Errorf("create update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sparql-update")

	if _, err := s.do(req); err != nil {
		return fmt.Errorf("sparql update: %w", err)
	}
	return nil
}

// Validate posts candidate triples to the Fuseki SHACL service and parses
// the validation report. Nothing is committed.
func (s *FusekiStore) Validate(ctx context.Context, triples []Triple) (*ValidationReport, error) {
	endpoint := fmt.Sprintf("%s/%s/shacl?graph=default", s.baseURL, s.dataset)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(triplesAsTurtle(triples)))
	if err != nil {
		return nil, fmt.Errorf("create validate request: %w", err)
	}
	req.Header.Set("Content-Type", "text/turtle")
	req.Header.Set("Accept", "application/ld+json")

	body, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("shacl validate: %w", err)
	}
	return parseSHACLReport(body)
}

func (s *FusekiStore) Close() error { return nil }

func (s *FusekiStore) do(req *http.Request) ([]byte, error) {
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256] + "..."
		}
		return nil, fmt.Errorf("status %d: %s", res.StatusCode, msg)
	}
	return body, nil
}

func triplesAsTurtle(triples []Triple) string {
	var b strings.Builder
	b.WriteString("@prefix emo: <http://emorobcare.org/onto#> .\n")
	b.WriteString("@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .\n")
	b.WriteString("@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .\n\n")
	for _, t := range triples {
		fmt.Fprintf(&b, "%s %s %s .\n", t.Subject, t.Predicate, formatTerm(t))
	}
	return b.String()
}

// parseSHACLReport reads a JSON-LD sh:ValidationReport. The report lives
// either at the top level or inside an @graph array.
func parseSHACLReport(body []byte) (*ValidationReport, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode shacl report: %w", err)
	}

	nodes := flattenJSONLD(raw)
	report := &ValidationReport{Conforms: true}
	seen := false
	for _, node := range nodes {
		if v, ok := jsonldValue(node, "conforms"); ok {
			seen = true
			report.Conforms = v == "true"
		}
		if isValidationResult(node) {
			violation := Violation{}
			violation.FocusNode, _ = jsonldValue(node, "focusNode")
			violation.Path, _ = jsonldValue(node, "resultPath")
			violation.Message, _ = jsonldValue(node, "resultMessage")
			report.Violations = append(report.Violations, violation)
		}
	}
	if !seen {
		return nil, fmt.Errorf("decode shacl report: no conforms field in response")
	}
	if len(report.Violations) > 0 {
		report.Conforms = false
	}
	return report, nil
}

func flattenJSONLD(raw any) []map[string]any {
	var out []map[string]any
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			out = append(out, flattenJSONLD(item)...)
		}
	case map[string]any:
		out = append(out, v)
		if graph, ok := v["@graph"]; ok {
			out = append(out, flattenJSONLD(graph)...)
		}
	}
	return out
}

func isValidationResult(node map[string]any) bool {
	t, ok := node["@type"]
	if !ok {
		return false
	}
	switch v := t.(type) {
	case string:
		return strings.Contains(v, "ValidationResult")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.Contains(s, "ValidationResult") {
				return true
			}
		}
	}
	return false
}

// jsonldValue fetches a property by local name, tolerating full IRIs and
// prefixed keys, and unwraps @value / @id objects.
func jsonldValue(node map[string]any, localName string) (string, bool) {
	for k, v := range node {
		if k != localName && !strings.HasSuffix(k, ":"+localName) && !strings.HasSuffix(k, "#"+localName) {
			continue
		}
		switch val := v.(type) {
		case string:
			return val, true
		case bool:
			if val {
				return "true", true
			}
			return "false", true
		case map[string]any:
			if inner, ok := val["@value"]; ok {
				return fmt.Sprintf("%v", inner), true
			}
			if inner, ok := val["@id"]; ok {
				return fmt.Sprintf("%v", inner), true
			}
		case []any:
			if len(val) > 0 {
				if m, ok := val[0].(map[string]any); ok {
					if inner, ok := m["@value"]; ok {
						return fmt.Sprintf("%v", inner), true
					}
				}
			}
		}
	}
	return "", false
}
