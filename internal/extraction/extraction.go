// Package extraction runs the background pipeline that turns finished
// exchanges into durable memory: entities and relationships pulled from
// the transcript by the language model, validated against the graph
// shapes, then committed as triples and embedded memory entries.
package extraction

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/emorobcare/companion/internal/docstore"
	"github.com/emorobcare/companion/internal/emotion"
	"github.com/emorobcare/companion/internal/graphstore"
	"github.com/emorobcare/companion/internal/llm"
	"github.com/emorobcare/companion/internal/observability"
	"github.com/emorobcare/companion/internal/vectorstore"
)

// Entity is one thing the model found in the transcript.
type Entity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Relationship links the child or an entity to another entity.
type Relationship struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

var validEntityTypes = map[string]bool{
	"person": true, "place": true, "activity": true, "emotion": true,
	"topic": true, "object": true, "concept": true,
}

var validPredicates = map[string]bool{
	"likes": true, "dislikes": true, "part_of": true, "related_to": true,
	"experienced": true, "mentioned": true, "feels": true, "knows": true,
	"does": true,
}

// Job is a snapshot of a conversation handed to the pipeline. The
// orchestrator never reads live state, only what the caller captured.
type Job struct {
	Conversation docstore.Conversation
	Turns        []docstore.Turn
}

// Config bounds the pipeline. ConfidenceFloor drops extractions the model
// is unsure about before they reach validation.
type Config struct {
	Enabled         bool
	Timeout         time.Duration
	ConfidenceFloor float64
}

// Orchestrator runs at most one extraction per conversation at a time.
// Jobs enqueued while one is running coalesce into a single pending slot,
// so a burst of turns ends in one extraction over the latest snapshot.
type Orchestrator struct {
	llm     llm.Client
	vectors vectorstore.Store
	graph   graphstore.Store
	cfg     Config
	metrics *observability.Metrics

	mu       sync.Mutex
	inflight map[string]bool
	pending  map[string]Job
	wg       sync.WaitGroup
}

func New(client llm.Client, vectors vectorstore.Store, graph graphstore.Store, cfg Config, metrics *observability.Metrics) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Orchestrator{
		llm:      client,
		vectors:  vectors,
		graph:    graph,
		cfg:      cfg,
		metrics:  metrics,
		inflight: make(map[string]bool),
		pending:  make(map[string]Job),
	}
}

// Enqueue hands a snapshot to the pipeline and returns immediately. When
// an extraction for the same conversation is already running, the job
// replaces any previously pending one.
func (o *Orchestrator) Enqueue(job Job) {
	if !o.cfg.Enabled {
		return
	}
	id := job.Conversation.ID

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[id] {
		o.pending[id] = job
		return
	}
	o.inflight[id] = true
	o.wg.Add(1)
	go o.run(job)
}

func (o *Orchestrator) run(job Job) {
	defer o.wg.Done()
	id := job.Conversation.ID

	o.process(job)

	o.mu.Lock()
	next, ok := o.pending[id]
	if ok {
		delete(o.pending, id)
		o.wg.Add(1)
		o.mu.Unlock()
		go o.run(next)
		return
	}
	delete(o.inflight, id)
	o.mu.Unlock()
}

// Drain waits for running jobs to finish, up to the context deadline.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) process(job Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Timeout)
	defer cancel()

	status, err := o.extract(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			status = "timeout"
		}
		log.Printf("extraction: conversation %s: %s: %v", job.Conversation.ID, status, err)
	}
	o.metrics.ObserveExtraction(status, time.Since(start))
}

func (o *Orchestrator) extract(ctx context.Context, job Job) (string, error) {
	transcript := renderTranscript(job.Turns)
	if transcript == "" {
		return "skipped", nil
	}

	entities, err := o.extractEntities(ctx, job, transcript)
	if err != nil {
		return "failed", fmt.Errorf("extract entities: %w", err)
	}
	relationships, err := o.extractRelationships(ctx, job, transcript, entities)
	if err != nil {
		return "failed", fmt.Errorf("extract relationships: %w", err)
	}

	entities = filterEntities(entities, o.cfg.ConfidenceFloor)
	relationships = filterRelationships(relationships, o.cfg.ConfidenceFloor)

	if len(entities) > 0 || len(relationships) > 0 {
		triples := buildTriples(job.Conversation.ChildID, job.Conversation.ID, entities, relationships)

		report, err := o.graph.Validate(ctx, triples)
		if err != nil {
			o.metrics.ObserveAdapterError("graph", "validate")
			return "failed", fmt.Errorf("validate triples: %w", err)
		}
		if !report.Conforms {
			// Nothing is committed on a failed validation, not even the
			// conforming subset.
			log.Printf("extraction: conversation %s: rejected by shape validation: %d violations",
				job.Conversation.ID, len(report.Violations))
			return "rejected", nil
		}
		if err := o.graph.Update(ctx, graphstore.InsertData(triples)); err != nil {
			o.metrics.ObserveAdapterError("graph", "update")
			return "failed", fmt.Errorf("insert triples: %w", err)
		}
	}

	if err := o.writeMemories(ctx, job); err != nil {
		o.metrics.ObserveAdapterError("vectors", "upsert")
		return "failed", fmt.Errorf("write memories: %w", err)
	}
	return "completed", nil
}

func (o *Orchestrator) extractEntities(ctx context.Context, job Job, transcript string) ([]Entity, error) {
	reply, err := o.llm.Complete(ctx, llm.Request{
		System:      entitySystemPrompt,
		Prompt:      entityPrompt(job.Conversation, transcript),
		MaxTokens:   600,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	parsed, err := llm.ParseJSON[entityResponse](reply)
	if err != nil {
		return nil, fmt.Errorf("parse entity response: %w", err)
	}
	return parsed.Entities, nil
}

func (o *Orchestrator) extractRelationships(ctx context.Context, job Job, transcript string, entities []Entity) ([]Relationship, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	reply, err := o.llm.Complete(ctx, llm.Request{
		System:      relationshipSystemPrompt,
		Prompt:      relationshipPrompt(job.Conversation, transcript, entities),
		MaxTokens:   600,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	parsed, err := llm.ParseJSON[relationshipResponse](reply)
	if err != nil {
		return nil, fmt.Errorf("parse relationship response: %w", err)
	}
	return parsed.Relationships, nil
}

func (o *Orchestrator) writeMemories(ctx context.Context, job Job) error {
	entries := make([]vectorstore.Entry, 0, len(job.Turns))
	for _, turn := range job.Turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		entries = append(entries, vectorstore.Entry{
			ID:             turn.ID,
			ConversationID: job.Conversation.ID,
			ChildID:        job.Conversation.ChildID,
			Topic:          job.Conversation.Topic,
			Role:           string(turn.Role),
			Text:           turn.Text,
			CleanText:      emotion.Strip(turn.Text),
			Language:       job.Conversation.Language,
			CreatedAt:      turn.CreatedAt,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	return o.vectors.Upsert(ctx, entries)
}

func filterEntities(entities []Entity, floor float64) []Entity {
	out := entities[:0]
	for _, e := range entities {
		e.Type = strings.ToLower(strings.TrimSpace(e.Type))
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" || e.Confidence < floor || !validEntityTypes[e.Type] {
			continue
		}
		out = append(out, e)
	}
	return out
}

func filterRelationships(rels []Relationship, floor float64) []Relationship {
	out := rels[:0]
	for _, r := range rels {
		r.Predicate = strings.ToLower(strings.TrimSpace(r.Predicate))
		r.Subject = strings.TrimSpace(r.Subject)
		r.Object = strings.TrimSpace(r.Object)
		if r.Subject == "" || r.Object == "" || r.Confidence < floor || !validPredicates[r.Predicate] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// buildTriples renders the accepted extractions as emo: statements.
// Relationship subjects naming the child attach to the child resource;
// anything else resolves through the extracted entities. Every entity
// carries an emo:extracted_from link back to the source conversation.
func buildTriples(childID, conversationID string, entities []Entity, relationships []Relationship) []graphstore.Triple {
	typeIRI := map[string]string{
		"person": "emo:Person", "place": "emo:Place", "activity": "emo:Activity",
		"emotion": "emo:Emotion", "topic": "emo:Topic", "object": "emo:Object",
		"concept": "emo:Concept",
	}

	sourceIRI := "emo:conversation_" + graphstore.LocalName(conversationID)

	byName := make(map[string]string, len(entities))
	var triples []graphstore.Triple
	for _, e := range entities {
		iri := graphstore.EntityIRI(e.Type, e.Name)
		byName[strings.ToLower(e.Name)] = iri
		triples = append(triples,
			graphstore.Triple{Subject: iri, Predicate: "rdf:type", Object: typeIRI[e.Type]},
			graphstore.Triple{Subject: iri, Predicate: "rdfs:label", Object: e.Name, Literal: true},
			graphstore.Triple{Subject: iri, Predicate: "emo:extracted_from", Object: sourceIRI},
		)
	}

	resolve := func(name string) string {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "child" || key == strings.ToLower(childID) {
			return graphstore.ChildIRI(childID)
		}
		if iri, ok := byName[key]; ok {
			return iri
		}
		return graphstore.EntityIRI("concept", name)
	}

	for _, r := range relationships {
		triples = append(triples, graphstore.Triple{
			Subject:   resolve(r.Subject),
			Predicate: "emo:" + r.Predicate,
			Object:    resolve(r.Object),
		})
	}
	return triples
}

func renderTranscript(turns []docstore.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		text := emotion.Strip(turn.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, text)
	}
	return strings.TrimSpace(b.String())
}
