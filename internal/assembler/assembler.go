// Package assembler gathers retrieval context for a turn under a hard
// latency budget. Sources that miss the budget are skipped, never waited
// for: a turn is answered with whatever arrived in time.
package assembler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/emorobcare/companion/internal/graphstore"
	"github.com/emorobcare/companion/internal/observability"
	"github.com/emorobcare/companion/internal/vectorstore"
)

// Snippet is one piece of retrieved context. Source is "memory" for
// vector hits and "graph" for knowledge-graph facts.
type Snippet struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score,omitempty"`
}

// Result is what Assemble returns. SourceStatus records the outcome per
// source: "ok", "timeout" or "error".
type Result struct {
	Snippets     []Snippet         `json:"snippets"`
	SourceStatus map[string]string `json:"source_status"`
	Elapsed      time.Duration     `json:"-"`
}

// Request names the child and the text to retrieve against.
type Request struct {
	ChildID string
	Topic   string
	Query   string
	Limit   int
}

// Config bounds the assembly: Budget is the total wall-clock allowance,
// VectorLimit and GraphFacts cap how much each source may contribute, and
// MinScore drops weak vector matches.
type Config struct {
	Budget      time.Duration
	VectorLimit int
	GraphFacts  int
	MinScore    float64
}

type Assembler struct {
	vectors vectorstore.Store
	graph   graphstore.Store
	cfg     Config
	metrics *observability.Metrics
}

func New(vectors vectorstore.Store, graph graphstore.Store, cfg Config, metrics *observability.Metrics) *Assembler {
	if cfg.Budget <= 0 {
		cfg.Budget = 500 * time.Millisecond
	}
	if cfg.VectorLimit <= 0 {
		cfg.VectorLimit = 5
	}
	if cfg.GraphFacts <= 0 {
		cfg.GraphFacts = 3
	}
	return &Assembler{vectors: vectors, graph: graph, cfg: cfg, metrics: metrics}
}

type sourceOutcome struct {
	source   string
	snippets []Snippet
	err      error
}

// Assemble queries both sources concurrently and merges whatever came
// back within the budget, vector hits first. It never returns an error:
// a fully degraded result is an empty snippet list.
func (a *Assembler) Assemble(ctx context.Context, req Request) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Budget)
	defer cancel()

	results := make(chan sourceOutcome, 2)
	go func() { results <- a.queryVectors(ctx, req) }()
	go func() { results <- a.queryGraph(ctx, req) }()

	out := Result{
		SourceStatus: map[string]string{"memory": "timeout", "graph": "timeout"},
	}
	var memory, graph []Snippet
	for pending := 2; pending > 0; pending-- {
		select {
		case r := <-results:
			switch {
			case r.err == nil:
				out.SourceStatus[r.source] = "ok"
				if r.source == "memory" {
					memory = r.snippets
				} else {
					graph = r.snippets
				}
			case ctx.Err() != nil:
				out.SourceStatus[r.source] = "timeout"
			default:
				out.SourceStatus[r.source] = "error"
				log.Printf("assembler: %s source failed: %v", r.source, r.err)
			}
		case <-ctx.Done():
			pending = 0
		}
	}

	out.Snippets = merge(memory, graph, req.Limit)
	out.Elapsed = time.Since(start)

	if a.metrics != nil {
		for source, status := range out.SourceStatus {
			a.metrics.ObserveContextSource(source, status)
		}
		a.metrics.ObserveContextLatency(out.Elapsed)
	}
	return out
}

func (a *Assembler) queryVectors(ctx context.Context, req Request) sourceOutcome {
	hits, err := a.vectors.Search(ctx, vectorstore.Query{
		Text:     req.Query,
		ChildID:  req.ChildID,
		Topic:    req.Topic,
		Limit:    a.cfg.VectorLimit,
		MinScore: a.cfg.MinScore,
	})
	if err != nil {
		return sourceOutcome{source: "memory", err: err}
	}

	snippets := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		if h.Score < a.cfg.MinScore {
			continue
		}
		text := h.CleanText
		if text == "" {
			text = h.Text
		}
		snippets = append(snippets, Snippet{Source: "memory", Text: text, Score: h.Score})
	}
	sort.SliceStable(snippets, func(i, j int) bool { return snippets[i].Score > snippets[j].Score })
	return sourceOutcome{source: "memory", snippets: snippets}
}

func (a *Assembler) queryGraph(ctx context.Context, req Request) sourceOutcome {
	res, err := a.graph.Query(ctx, graphstore.SelectChildFacts(req.ChildID, a.cfg.GraphFacts))
	if err != nil {
		return sourceOutcome{source: "graph", err: err}
	}

	snippets := make([]Snippet, 0, len(res.Bindings))
	for _, b := range res.Bindings {
		text := renderFact(req.ChildID, b)
		if text == "" {
			continue
		}
		snippets = append(snippets, Snippet{Source: "graph", Text: text})
		if len(snippets) >= a.cfg.GraphFacts {
			break
		}
	}
	return sourceOutcome{source: "graph", snippets: snippets}
}

// renderFact turns a predicate/object binding into a compact readable
// fact line for the prompt, e.g. "likes: recreo".
func renderFact(childID string, binding map[string]string) string {
	pred := localPart(binding["p"])
	obj := binding["label"]
	if obj == "" {
		obj = localPart(binding["o"])
	}
	if pred == "" || obj == "" {
		return ""
	}
	return fmt.Sprintf("%s %s: %s", childID, pred, strings.ReplaceAll(obj, "_", " "))
}

func localPart(term string) string {
	term = strings.TrimSuffix(term, ">")
	for _, sep := range []string{"#", "/", ":"} {
		if i := strings.LastIndex(term, sep); i >= 0 {
			term = term[i+1:]
		}
	}
	return term
}

// merge interleaves sources vector-first and truncates to limit. A zero
// limit keeps everything.
func merge(memory, graph []Snippet, limit int) []Snippet {
	out := make([]Snippet, 0, len(memory)+len(graph))
	out = append(out, memory...)
	out = append(out, graph...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PromptBlock renders snippets as prompt lines for the language model.
func PromptBlock(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range snippets {
		b.WriteString("- ")
		b.WriteString(s.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
