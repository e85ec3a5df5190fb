package assembler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emorobcare/companion/internal/graphstore"
	"github.com/emorobcare/companion/internal/llm"
	"github.com/emorobcare/companion/internal/vectorstore"
)

type slowVectorStore struct {
	vectorstore.Store
	delay time.Duration
}

func (s *slowVectorStore) Search(ctx context.Context, q vectorstore.Query) ([]vectorstore.Hit, error) {
	select {
	case <-time.After(s.delay):
		return s.Store.Search(ctx, q)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type failingGraphStore struct {
	graphstore.Store
}

func (s *failingGraphStore) Query(context.Context, string) (*graphstore.QueryResult, error) {
	return nil, errors.New("connection refused")
}

func seedStores(t *testing.T) (vectorstore.Store, graphstore.Store) {
	t.Helper()
	ctx := context.Background()

	vectors := vectorstore.NewInMemoryStore(llm.NewHashEmbedder(128))
	err := vectors.Upsert(ctx, []vectorstore.Entry{
		{ConversationID: "c1", ChildID: "ana_7", Topic: "school", Role: "child",
			Text: "Me gusta el recreo", CleanText: "Me gusta el recreo"},
		{ConversationID: "c1", ChildID: "ana_7", Topic: "school", Role: "child",
			Text: "las matemáticas son difíciles", CleanText: "las matemáticas son difíciles"},
	})
	if err != nil {
		t.Fatalf("seed vectors: %v", err)
	}

	graph := graphstore.NewInMemoryStore()
	err = graph.Update(ctx, graphstore.InsertData([]graphstore.Triple{
		{Subject: "emo:child_ana_7", Predicate: "emo:likes", Object: "emo:activity_recreo"},
		{Subject: "emo:child_ana_7", Predicate: "emo:feels", Object: "emo:emotion_alegria"},
	}))
	if err != nil {
		t.Fatalf("seed graph: %v", err)
	}
	return vectors, graph
}

func TestAssembleMergesVectorFirst(t *testing.T) {
	vectors, graph := seedStores(t)
	a := New(vectors, graph, Config{Budget: time.Second, VectorLimit: 5, GraphFacts: 3, MinScore: 0.7}, nil)

	res := a.Assemble(context.Background(), Request{
		ChildID: "ana_7", Topic: "school", Query: "Me gusta el recreo", Limit: 8,
	})

	if res.SourceStatus["memory"] != "ok" || res.SourceStatus["graph"] != "ok" {
		t.Fatalf("unexpected source status: %v", res.SourceStatus)
	}
	if len(res.Snippets) == 0 {
		t.Fatal("expected snippets")
	}
	if res.Snippets[0].Source != "memory" {
		t.Fatalf("vector hits should come first, got %q", res.Snippets[0].Source)
	}
	sawGraph := false
	for _, s := range res.Snippets {
		if s.Source == "memory" && s.Score < 0.7 {
			t.Fatalf("weak vector match survived the threshold: %+v", s)
		}
		if s.Source == "graph" {
			sawGraph = true
		}
	}
	if !sawGraph {
		t.Fatal("expected graph facts in merged result")
	}
}

func TestAssembleThresholdFiltersWeakMatches(t *testing.T) {
	vectors, graph := seedStores(t)
	a := New(vectors, graph, Config{Budget: time.Second, VectorLimit: 5, GraphFacts: 0, MinScore: 0.7}, nil)

	// Unrelated query: nothing in memory should clear the threshold.
	res := a.Assemble(context.Background(), Request{
		ChildID: "ana_7", Query: "qqq zzz www", Limit: 8,
	})
	for _, s := range res.Snippets {
		if s.Source == "memory" {
			t.Fatalf("unrelated query produced a vector hit: %+v", s)
		}
	}
}

func TestAssembleDegradesOnSlowSource(t *testing.T) {
	vectors, graph := seedStores(t)
	slow := &slowVectorStore{Store: vectors, delay: 300 * time.Millisecond}
	a := New(slow, graph, Config{Budget: 50 * time.Millisecond, VectorLimit: 5, GraphFacts: 3, MinScore: 0.7}, nil)

	start := time.Now()
	res := a.Assemble(context.Background(), Request{
		ChildID: "ana_7", Query: "Me gusta el recreo", Limit: 8,
	})
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("assembly exceeded budget: %v", elapsed)
	}

	if res.SourceStatus["memory"] != "timeout" {
		t.Fatalf("slow source should be reported as timeout, got %q", res.SourceStatus["memory"])
	}
	for _, s := range res.Snippets {
		if s.Source == "memory" {
			t.Fatal("timed-out source contributed snippets")
		}
	}
}

func TestAssembleReportsSourceError(t *testing.T) {
	vectors, _ := seedStores(t)
	a := New(vectors, &failingGraphStore{}, Config{Budget: time.Second, VectorLimit: 5, GraphFacts: 3, MinScore: 0.7}, nil)

	res := a.Assemble(context.Background(), Request{
		ChildID: "ana_7", Query: "Me gusta el recreo", Limit: 8,
	})
	if res.SourceStatus["graph"] != "error" {
		t.Fatalf("failing source should be reported as error, got %q", res.SourceStatus["graph"])
	}
	// Vector results still arrive.
	if res.SourceStatus["memory"] != "ok" {
		t.Fatalf("healthy source degraded: %v", res.SourceStatus)
	}
}

func TestAssembleRespectsLimit(t *testing.T) {
	vectors, graph := seedStores(t)
	a := New(vectors, graph, Config{Budget: time.Second, VectorLimit: 5, GraphFacts: 3, MinScore: 0}, nil)

	res := a.Assemble(context.Background(), Request{
		ChildID: "ana_7", Query: "Me gusta el recreo", Limit: 2,
	})
	if len(res.Snippets) > 2 {
		t.Fatalf("limit not enforced: %d snippets", len(res.Snippets))
	}
}

func TestPromptBlock(t *testing.T) {
	if got := PromptBlock(nil); got != "" {
		t.Fatalf("empty snippets should render empty block, got %q", got)
	}
	got := PromptBlock([]Snippet{
		{Source: "memory", Text: "Me gusta el recreo"},
		{Source: "graph", Text: "ana_7 likes: recreo"},
	})
	want := "- Me gusta el recreo\n- ana_7 likes: recreo\n"
	if got != want {
		t.Fatalf("PromptBlock = %q, want %q", got, want)
	}
}
