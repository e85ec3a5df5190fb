package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emorobcare/companion/internal/assembler"
	"github.com/emorobcare/companion/internal/docstore"
	"github.com/emorobcare/companion/internal/extraction"
	"github.com/emorobcare/companion/internal/graphstore"
	"github.com/emorobcare/companion/internal/llm"
	"github.com/emorobcare/companion/internal/vectorstore"
)

type fixture struct {
	store     docstore.Store
	vectors   vectorstore.Store
	graph     *graphstore.InMemoryStore
	client    *llm.MockClient
	extractor *extraction.Orchestrator
	orch      *Orchestrator
}

func newFixture(t *testing.T, cfg Config, responses ...string) *fixture {
	t.Helper()
	store := docstore.NewInMemoryStore()
	embedder := llm.NewHashEmbedder(128)
	vectors := vectorstore.NewInMemoryStore(embedder)
	graph := graphstore.NewInMemoryStore()
	client := llm.NewMockClient(responses...)

	asm := assembler.New(vectors, graph, assembler.Config{
		Budget: time.Second, VectorLimit: 5, GraphFacts: 3, MinScore: 0.7,
	}, nil)
	extractor := extraction.New(client, vectors, graph,
		extraction.Config{Enabled: false}, nil)

	return &fixture{
		store:     store,
		vectors:   vectors,
		graph:     graph,
		client:    client,
		extractor: extractor,
		orch:      New(store, asm, extractor, client, cfg, nil),
	}
}

func TestStartCreatesOpeningTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	reply, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Topic: "school", Level: 3, Language: "es"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reply.Conversation.State != docstore.StateOpen {
		t.Fatalf("state = %q, want open", reply.Conversation.State)
	}
	if reply.Conversation.TurnCount != 1 {
		t.Fatalf("turn count = %d, want 1", reply.Conversation.TurnCount)
	}
	if reply.Turn.Role != docstore.RoleAssistant {
		t.Fatalf("opening turn role = %q", reply.Turn.Role)
	}
	if !strings.Contains(reply.Turn.Text, "cole") {
		t.Fatalf("school opening not used: %q", reply.Turn.Text)
	}
	if reply.Turn.Emotion != "positive" {
		t.Fatalf("opening emotion = %q, want positive", reply.Turn.Emotion)
	}

	// Start auto-created a profile for the new child.
	p, err := f.store.GetProfile(ctx, "ana_7")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Level != 3 || p.Language != "es" {
		t.Fatalf("auto profile = %+v", p)
	}
}

func TestNextKeepsOddTurnCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Topic: "school"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i, text := range []string{"Me gusta el recreo", "jugamos al fútbol", "mi amiga se llama Marta"} {
		reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: text})
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		want := 1 + 2*(i+1)
		if reply.Conversation.TurnCount != want {
			t.Fatalf("after exchange %d: turn count = %d, want %d", i+1, reply.Conversation.TurnCount, want)
		}
	}

	turns, err := f.store.ListTurns(ctx, started.Conversation.ID)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 7 {
		t.Fatalf("stored %d turns, want 7", len(turns))
	}
	for i, turn := range turns {
		wantRole := docstore.RoleAssistant
		if i%2 == 1 {
			wantRole = docstore.RoleChild
		}
		if turn.Role != wantRole {
			t.Fatalf("turn %d role = %q, want %q", i, turn.Role, wantRole)
		}
	}
}

func TestNextRejectsClosedConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "adiós", End: true})
	if err != nil {
		t.Fatalf("Next(end): %v", err)
	}
	if reply.Conversation.State != docstore.StateClosed {
		t.Fatalf("state after end = %q, want closed", reply.Conversation.State)
	}
	if !strings.Contains(reply.Turn.Text, "Hasta pronto") {
		t.Fatalf("farewell not used: %q", reply.Turn.Text)
	}

	if _, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "hola"}); !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("expected ErrConversationClosed, got %v", err)
	}
}

func TestFlaggedInputNeverReachesModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Language: "es"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	callsBefore := len(f.client.Calls())

	reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "quiero una pistola de verdad"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !reply.Blocked {
		t.Fatal("violent input not blocked")
	}
	if reply.Category != "violence" {
		t.Fatalf("category = %q, want violence", reply.Category)
	}
	if len(f.client.Calls()) != callsBefore {
		t.Fatal("flagged input was sent to the model")
	}
	if reply.Turn.Text == "" {
		t.Fatal("blocked turn has no redirect reply")
	}
	// The exchange is still persisted.
	if reply.Conversation.TurnCount != 3 {
		t.Fatalf("turn count = %d, want 3", reply.Conversation.TurnCount)
	}
}

func TestAvoidedTopicRedirected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	if err := f.store.UpsertProfile(ctx, docstore.ChildProfile{
		ChildID: "ana_7", Age: 7, Level: 2, Language: "es",
		AvoidTopics: []string{"family_issues"},
	}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Topic: "school"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	callsBefore := len(f.client.Calls())

	reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "mis padres pelean mucho en casa"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !reply.Blocked || reply.Category != "avoided_topic" {
		t.Fatalf("avoided topic not redirected: blocked=%v category=%q", reply.Blocked, reply.Category)
	}
	if len(f.client.Calls()) != callsBefore {
		t.Fatal("avoided topic was sent to the model")
	}
}

func newExtractionFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewInMemoryStore()
	embedder := llm.NewHashEmbedder(128)
	vectors := vectorstore.NewInMemoryStore(embedder)
	graph := graphstore.NewInMemoryStore()
	client := llm.NewMockClient()

	asm := assembler.New(vectors, graph, assembler.Config{
		Budget: time.Second, VectorLimit: 5, GraphFacts: 3, MinScore: 0.7,
	}, nil)
	extractor := extraction.New(client, vectors, graph,
		extraction.Config{Enabled: true, Timeout: 5 * time.Second, ConfidenceFloor: 0.5}, nil)

	return &fixture{
		store:     store,
		vectors:   vectors,
		graph:     graph,
		client:    client,
		extractor: extractor,
		orch:      New(store, asm, extractor, client, Config{}, nil),
	}
}

func drainExtractor(t *testing.T, f *fixture) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.extractor.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestBlockedTurnDoesNotAdvanceExtraction(t *testing.T) {
	ctx := context.Background()
	f := newExtractionFixture(t)

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Language: "es"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "quiero una pistola de verdad"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !reply.Blocked {
		t.Fatal("violent input not blocked")
	}
	drainExtractor(t, f)

	// The flagged utterance reached neither the reply model nor the
	// extraction pipeline.
	if calls := len(f.client.Calls()); calls != 0 {
		t.Fatalf("blocked turn triggered %d model calls", calls)
	}
	hits, err := f.vectors.Search(ctx, vectorstore.Query{Text: "pistola", ChildID: "ana_7", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatal("blocked turn was embedded into memory")
	}
}

func TestBlockedEndTurnDoesNotAdvanceExtraction(t *testing.T) {
	ctx := context.Background()
	f := newExtractionFixture(t)

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Language: "es"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "quiero una pistola", End: true})
	if err != nil {
		t.Fatalf("Next(end): %v", err)
	}
	if !reply.Blocked || reply.Category != "violence" {
		t.Fatalf("unsafe end turn not flagged: blocked=%v category=%q", reply.Blocked, reply.Category)
	}
	if reply.Conversation.State != docstore.StateClosed {
		t.Fatalf("state after end = %q, want closed", reply.Conversation.State)
	}
	drainExtractor(t, f)

	if calls := len(f.client.Calls()); calls != 0 {
		t.Fatalf("blocked end turn triggered %d model calls", calls)
	}
}

func TestSafeTurnAdvancesExtraction(t *testing.T) {
	ctx := context.Background()
	f := newExtractionFixture(t)

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Language: "es"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "Me gusta el recreo"}); err != nil {
		t.Fatalf("Next: %v", err)
	}
	drainExtractor(t, f)

	// One reply call plus at least the entity extraction call.
	if calls := len(f.client.Calls()); calls < 2 {
		t.Fatalf("safe turn should reach extraction, got %d model calls", calls)
	}
}

func TestModelFailureFallsBackToTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.client.Err = errors.New("backend unavailable")

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Language: "es"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "hola robot"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if reply.Turn.Text == "" {
		t.Fatal("no fallback reply on model failure")
	}
	if reply.Turn.Emotion == "" {
		t.Fatal("fallback reply not tagged")
	}
}

func TestUnsafeModelOutputReplaced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, "**Los monstruos** viven debajo de tu cama")

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Language: "es"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "qué hay de noche"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if strings.Contains(reply.Turn.Text, "monstruos") {
		t.Fatalf("unsafe model output delivered: %q", reply.Turn.Text)
	}
}

func TestWindDownBeforeTurnCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MaxExchanges: 3})

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Language: "es"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := started.Conversation.ID

	var last Reply
	for i := 0; i < 2; i++ {
		last, err = f.orch.Next(ctx, id, NextRequest{Text: "cuéntame algo"})
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
	}
	if last.Conversation.State != docstore.StateClosing {
		t.Fatalf("state near cap = %q, want closing", last.Conversation.State)
	}
	if !strings.Contains(last.Turn.Text, "despedirnos") {
		t.Fatalf("wind-down not used: %q", last.Turn.Text)
	}

	final, err := f.orch.Next(ctx, id, NextRequest{Text: "vale"})
	if err != nil {
		t.Fatalf("final Next: %v", err)
	}
	if final.Conversation.State != docstore.StateClosed {
		t.Fatalf("state after wind-down = %q, want closed", final.Conversation.State)
	}
	if final.Conversation.TurnCount > 2*3+1 {
		t.Fatalf("turn count %d exceeds cap", final.Conversation.TurnCount)
	}
}

func TestSuggestionsOnlyAtLowerLevels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	low, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7", Topic: "school", Level: 2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(low.Suggestions) == 0 {
		t.Fatal("expected suggestions at level 2")
	}

	high, err := f.orch.Start(ctx, StartRequest{ChildID: "leo_12", Topic: "school", Level: 5})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(high.Suggestions) != 0 {
		t.Fatalf("level 5 should not get suggestions: %v", high.Suggestions)
	}
}

func TestAssistantRepliesCarryEmotion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, "__Tranquila__, todo está bien")

	started, err := f.orch.Start(ctx, StartRequest{ChildID: "ana_7"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reply, err := f.orch.Next(ctx, started.Conversation.ID, NextRequest{Text: "estoy nerviosa"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if reply.Turn.Emotion != "calm" {
		t.Fatalf("emotion = %q, want calm", reply.Turn.Emotion)
	}
}
