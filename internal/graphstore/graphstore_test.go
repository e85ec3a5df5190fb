package graphstore

import (
	"context"
	"strings"
	"testing"
)

func TestLocalName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Recreo", "recreo"},
		{"mi mejor amigo", "mi_mejor_amigo"},
		{"  Fútbol!  ", "f_tbol"},
		{"", "unnamed"},
		{"---", "unnamed"},
	}
	for _, tc := range cases {
		if got := LocalName(tc.in); got != tc.want {
			t.Fatalf("LocalName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInsertDataEscapesLiterals(t *testing.T) {
	sparql := InsertData([]Triple{
		{Subject: "emo:child_ana_7", Predicate: "emo:likes", Object: "emo:activity_recreo"},
		{Subject: "emo:activity_recreo", Predicate: "rdfs:label", Object: `el "recreo"`, Literal: true},
	})
	if !strings.Contains(sparql, "INSERT DATA {") {
		t.Fatalf("missing INSERT DATA block:\n%s", sparql)
	}
	if !strings.Contains(sparql, "emo:child_ana_7 emo:likes emo:activity_recreo .") {
		t.Fatalf("resource triple not rendered:\n%s", sparql)
	}
	if !strings.Contains(sparql, `"el \"recreo\""`) {
		t.Fatalf("literal not escaped:\n%s", sparql)
	}
	if !strings.Contains(sparql, "PREFIX emo:") {
		t.Fatalf("prefixes missing:\n%s", sparql)
	}
}

func TestInMemoryUpdateThenQuery(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	err := s.Update(ctx, InsertData([]Triple{
		{Subject: "emo:child_ana_7", Predicate: "rdf:type", Object: "emo:Child"},
		{Subject: "emo:child_ana_7", Predicate: "emo:likes", Object: "emo:activity_recreo"},
		{Subject: "emo:child_ana_7", Predicate: "emo:feels", Object: "emo:emotion_alegria"},
		{Subject: "emo:child_leo_9", Predicate: "emo:likes", Object: "emo:object_rocky"},
	}))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	res, err := s.Query(ctx, SelectChildFacts("ana_7", 10))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Bindings) != 2 {
		t.Fatalf("expected 2 facts for ana_7, got %d", len(res.Bindings))
	}
	for _, b := range res.Bindings {
		if b["o"] == "emo:object_rocky" {
			t.Fatal("fact from another child leaked into results")
		}
		if b["p"] == "rdf:type" {
			t.Fatal("type statement leaked past the fact filter")
		}
	}
}

func TestInMemoryValidateWellFormed(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	report, err := s.Validate(ctx, []Triple{
		{Subject: "emo:child_ana_7", Predicate: "emo:likes", Object: "emo:activity_recreo"},
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !report.Conforms {
		t.Fatalf("well-formed triples should conform: %+v", report.Violations)
	}

	report, err = s.Validate(ctx, []Triple{
		{Subject: "emo:child_ana_7", Predicate: "emo:likes", Object: ""},
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if report.Conforms || len(report.Violations) != 1 {
		t.Fatalf("incomplete triple should not conform: %+v", report)
	}
}

func TestParseSHACLReportConforming(t *testing.T) {
	body := []byte(`{
		"@graph": [
			{"@type": "sh:ValidationReport", "sh:conforms": true}
		]
	}`)
	report, err := parseSHACLReport(body)
	if err != nil {
		t.Fatalf("parseSHACLReport: %v", err)
	}
	if !report.Conforms {
		t.Fatal("expected conforming report")
	}
}

func TestParseSHACLReportViolations(t *testing.T) {
	body := []byte(`{
		"@graph": [
			{"@type": "sh:ValidationReport", "sh:conforms": false},
			{
				"@type": "sh:ValidationResult",
				"sh:focusNode": {"@id": "emo:child_ana_7"},
				"sh:resultPath": {"@id": "emo:likes"},
				"sh:resultMessage": "Value does not have class emo:Entity"
			}
		]
	}`)
	report, err := parseSHACLReport(body)
	if err != nil {
		t.Fatalf("parseSHACLReport: %v", err)
	}
	if report.Conforms {
		t.Fatal("expected non-conforming report")
	}
	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(report.Violations))
	}
	v := report.Violations[0]
	if v.FocusNode != "emo:child_ana_7" || v.Path != "emo:likes" || v.Message == "" {
		t.Fatalf("violation not parsed: %+v", v)
	}
}

func TestParseSHACLReportMissingConforms(t *testing.T) {
	if _, err := parseSHACLReport([]byte(`{"@graph": []}`)); err == nil {
		t.Fatal("expected error for report without conforms field")
	}
}
