package extraction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/emorobcare/companion/internal/docstore"
	"github.com/emorobcare/companion/internal/graphstore"
	"github.com/emorobcare/companion/internal/llm"
	"github.com/emorobcare/companion/internal/vectorstore"
)

const entityJSON = `{"entities": [
	{"name": "recreo", "type": "activity", "confidence": 0.9},
	{"name": "algo dudoso", "type": "topic", "confidence": 0.3},
	{"name": "alegría", "type": "emotion", "confidence": 0.8}
]}`

const relationshipJSON = `{"relationships": [
	{"subject": "child", "predicate": "likes", "object": "recreo", "confidence": 0.9},
	{"subject": "child", "predicate": "feels", "object": "alegría", "confidence": 0.8},
	{"subject": "child", "predicate": "worships", "object": "recreo", "confidence": 0.9},
	{"subject": "child", "predicate": "likes", "object": "ruido", "confidence": 0.2}
]}`

func testJob() Job {
	return Job{
		Conversation: docstore.Conversation{
			ID: "c1", ChildID: "ana_7", Topic: "school", Language: "es",
		},
		Turns: []docstore.Turn{
			{ID: "t1", ConversationID: "c1", Role: docstore.RoleChild, Text: "Me gusta el recreo"},
			{ID: "t2", ConversationID: "c1", Role: docstore.RoleAssistant, Text: "**¡Qué bien!** El recreo es divertido"},
		},
	}
}

func drain(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestExtractionCommitsValidatedTriples(t *testing.T) {
	client := llm.NewMockClient(entityJSON, relationshipJSON)
	vectors := vectorstore.NewInMemoryStore(llm.NewHashEmbedder(128))
	graph := graphstore.NewInMemoryStore()

	o := New(client, vectors, graph, Config{Enabled: true, Timeout: 5 * time.Second, ConfidenceFloor: 0.5}, nil)
	o.Enqueue(testJob())
	drain(t, o)

	if graph.TripleCount() == 0 {
		t.Fatal("expected triples in the graph")
	}

	res, err := graph.Query(context.Background(), graphstore.SelectChildFacts("ana_7", 10))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	found := map[string]bool{}
	for _, b := range res.Bindings {
		found[b["p"]+" "+b["o"]] = true
	}
	if !found["emo:likes emo:activity_recreo"] {
		t.Fatalf("likes fact missing: %v", found)
	}
	if !found["emo:feels emo:emotion_alegr_a"] {
		t.Fatalf("feels fact missing: %v", found)
	}
	// The invalid predicate and the low-confidence link never reach the graph.
	for key := range found {
		if key == "emo:worships emo:activity_recreo" || key == "emo:likes emo:concept_ruido" {
			t.Fatalf("filtered relationship committed: %s", key)
		}
	}

	hits, err := vectors.Search(context.Background(), vectorstore.Query{
		Text: "Me gusta el recreo", ChildID: "ana_7", Limit: 5, MinScore: 0.7,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected memory entries after extraction")
	}
	for _, h := range hits {
		if h.ID == "t2" && h.CleanText != "¡Qué bien! El recreo es divertido" {
			t.Fatalf("markup not stripped from memory entry: %q", h.CleanText)
		}
	}
}

func TestExtractionRejectedByValidationCommitsNothing(t *testing.T) {
	client := llm.NewMockClient(entityJSON, relationshipJSON)
	vectors := vectorstore.NewInMemoryStore(llm.NewHashEmbedder(128))
	rejectAll := func(tr graphstore.Triple) *graphstore.Violation {
		return &graphstore.Violation{FocusNode: tr.Subject, Message: "rejected"}
	}
	graph := graphstore.NewInMemoryStore(rejectAll)

	o := New(client, vectors, graph, Config{Enabled: true, Timeout: 5 * time.Second, ConfidenceFloor: 0.5}, nil)
	o.Enqueue(testJob())
	drain(t, o)

	if n := graph.TripleCount(); n != 0 {
		t.Fatalf("rejected extraction inserted %d triples", n)
	}
	hits, err := vectors.Search(context.Background(), vectorstore.Query{
		Text: "Me gusta el recreo", ChildID: "ana_7", Limit: 5,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatal("rejected extraction wrote memory entries")
	}
}

// gatedClient blocks every Complete call until released and counts them.
type gatedClient struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	calls int
}

func (c *gatedClient) Complete(ctx context.Context, _ llm.Request) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	c.once.Do(func() { close(c.entered) })
	select {
	case <-c.release:
		return `{"entities": []}`, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *gatedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestEnqueueCoalescesWhileInflight(t *testing.T) {
	client := &gatedClient{entered: make(chan struct{}), release: make(chan struct{})}
	vectors := vectorstore.NewInMemoryStore(llm.NewHashEmbedder(64))
	graph := graphstore.NewInMemoryStore()

	o := New(client, vectors, graph, Config{Enabled: true, Timeout: 5 * time.Second, ConfidenceFloor: 0.5}, nil)

	o.Enqueue(testJob())
	<-client.entered

	// These arrive while the first job is still inside the model call and
	// must collapse into a single follow-up run.
	o.Enqueue(testJob())
	o.Enqueue(testJob())
	o.Enqueue(testJob())

	close(client.release)
	drain(t, o)

	if got := client.callCount(); got != 2 {
		t.Fatalf("expected 2 extraction runs (first + coalesced), got %d", got)
	}
}

func TestExtractionTimeoutAbandonsJob(t *testing.T) {
	client := &gatedClient{entered: make(chan struct{}), release: make(chan struct{})}
	vectors := vectorstore.NewInMemoryStore(llm.NewHashEmbedder(64))
	graph := graphstore.NewInMemoryStore()

	o := New(client, vectors, graph, Config{Enabled: true, Timeout: 30 * time.Millisecond, ConfidenceFloor: 0.5}, nil)
	o.Enqueue(testJob())
	drain(t, o)

	if graph.TripleCount() != 0 {
		t.Fatal("timed-out job committed triples")
	}
	hits, _ := vectors.Search(context.Background(), vectorstore.Query{Text: "recreo", ChildID: "ana_7", Limit: 5})
	if len(hits) != 0 {
		t.Fatal("timed-out job wrote memory entries")
	}
}

func TestEnqueueDisabledDoesNothing(t *testing.T) {
	client := llm.NewMockClient(entityJSON)
	vectors := vectorstore.NewInMemoryStore(llm.NewHashEmbedder(64))
	graph := graphstore.NewInMemoryStore()

	o := New(client, vectors, graph, Config{Enabled: false, Timeout: time.Second, ConfidenceFloor: 0.5}, nil)
	o.Enqueue(testJob())
	drain(t, o)

	if len(client.Calls()) != 0 {
		t.Fatal("disabled orchestrator called the model")
	}
}

func TestFilterEntities(t *testing.T) {
	got := filterEntities([]Entity{
		{Name: "recreo", Type: "Activity", Confidence: 0.9},
		{Name: "x", Type: "weird_type", Confidence: 0.9},
		{Name: "", Type: "topic", Confidence: 0.9},
		{Name: "dudoso", Type: "topic", Confidence: 0.49},
	}, 0.5)
	if len(got) != 1 || got[0].Name != "recreo" || got[0].Type != "activity" {
		t.Fatalf("unexpected filtered entities: %+v", got)
	}
}

func TestBuildTriplesResolvesChildAndEntities(t *testing.T) {
	triples := buildTriples("ana_7", "conv-42",
		[]Entity{{Name: "recreo", Type: "activity", Confidence: 0.9}},
		[]Relationship{
			{Subject: "child", Predicate: "likes", Object: "recreo", Confidence: 0.9},
			{Subject: "child", Predicate: "mentioned", Object: "fútbol", Confidence: 0.8},
		})

	want := map[string]bool{
		"emo:activity_recreo rdf:type emo:Activity":                       false,
		"emo:activity_recreo emo:extracted_from emo:conversation_conv_42": false,
		"emo:child_ana_7 emo:likes emo:activity_recreo":                   false,
		"emo:child_ana_7 emo:mentioned emo:concept_f_tbol":                false,
	}
	for _, tr := range triples {
		key := tr.Subject + " " + tr.Predicate + " " + tr.Object
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, seen := range want {
		if !seen {
			t.Fatalf("missing triple: %s", key)
		}
	}
}
