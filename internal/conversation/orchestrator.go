// Package conversation drives the turn-taking state machine: one opening
// turn, then child/assistant exchanges, then a wind-down and goodbye. All
// replies pass the safety filter; the language model never sees flagged
// input and never gets the last word on flagged output.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emorobcare/companion/internal/assembler"
	"github.com/emorobcare/companion/internal/docstore"
	"github.com/emorobcare/companion/internal/emotion"
	"github.com/emorobcare/companion/internal/extraction"
	"github.com/emorobcare/companion/internal/llm"
	"github.com/emorobcare/companion/internal/observability"
	"github.com/emorobcare/companion/internal/safety"
)

// ErrConversationClosed is returned when a turn arrives for a closed
// conversation.
var ErrConversationClosed = errors.New("conversation is closed")

// StartRequest opens a new conversation for a child.
type StartRequest struct {
	ChildID  string `json:"child_id"`
	Topic    string `json:"topic"`
	Level    int    `json:"level"`
	Language string `json:"language"`
}

// NextRequest carries one child utterance. End asks for a goodbye turn
// and closes the conversation.
type NextRequest struct {
	Text          string   `json:"text"`
	ASRConfidence *float64 `json:"asr_confidence,omitempty"`
	End           bool     `json:"end,omitempty"`
}

// Reply is the assistant's side of one exchange.
type Reply struct {
	Conversation docstore.Conversation `json:"conversation"`
	Turn         docstore.Turn         `json:"turn"`
	Blocked      bool                  `json:"blocked,omitempty"`
	Category     safety.Category       `json:"category,omitempty"`
	Suggestions  []string              `json:"suggestions,omitempty"`
	SourceStatus map[string]string     `json:"source_status,omitempty"`
}

// Config bounds a conversation. MaxExchanges caps how many child turns a
// conversation may hold before it is wound down.
type Config struct {
	DefaultLanguage string
	MaxExchanges    int
}

type Orchestrator struct {
	store     docstore.Store
	assembler *assembler.Assembler
	extractor *extraction.Orchestrator
	llm       llm.Client
	cfg       Config
	metrics   *observability.Metrics

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(store docstore.Store, asm *assembler.Assembler, extractor *extraction.Orchestrator, client llm.Client, cfg Config, metrics *observability.Metrics) *Orchestrator {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "es"
	}
	if cfg.MaxExchanges <= 0 {
		cfg.MaxExchanges = 20
	}
	return &Orchestrator{
		store:     store,
		assembler: asm,
		extractor: extractor,
		llm:       client,
		cfg:       cfg,
		metrics:   metrics,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockConversation serializes turns per conversation. Turns for different
// conversations proceed in parallel.
func (o *Orchestrator) lockConversation(id string) func() {
	o.locksMu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

// Start creates a conversation and produces the opening turn. A missing
// profile is created on the fly with defaults, so a new child can talk
// before a guardian has configured anything.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (Reply, error) {
	if strings.TrimSpace(req.ChildID) == "" {
		return Reply{}, fmt.Errorf("child_id is required")
	}

	profile, err := o.store.GetProfile(ctx, req.ChildID)
	if errors.Is(err, docstore.ErrNotFound) {
		profile = docstore.ChildProfile{
			ChildID:  req.ChildID,
			Level:    req.Level,
			Language: req.Language,
		}
		if profile.Level <= 0 {
			profile.Level = 1
		}
		if profile.Language == "" {
			profile.Language = o.cfg.DefaultLanguage
		}
		if err := o.store.UpsertProfile(ctx, profile); err != nil {
			return Reply{}, fmt.Errorf("create profile: %w", err)
		}
	} else if err != nil {
		return Reply{}, fmt.Errorf("load profile: %w", err)
	}

	level := req.Level
	if level <= 0 {
		level = profile.Level
	}
	language := req.Language
	if language == "" {
		language = profile.Language
	}
	language = normalizeLanguage(language)

	conv := docstore.Conversation{
		ID:       uuid.NewString(),
		ChildID:  req.ChildID,
		Topic:    req.Topic,
		Level:    level,
		Language: language,
		State:    docstore.StateStarting,
	}
	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return Reply{}, fmt.Errorf("create conversation: %w", err)
	}

	opening := openingLine(profile.Name, req.Topic, language)
	turn := docstore.Turn{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           docstore.RoleAssistant,
		Text:           opening,
		Emotion:        string(emotion.Tag(opening)),
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.store.AppendTurns(ctx, conv.ID, turn); err != nil {
		return Reply{}, fmt.Errorf("append opening turn: %w", err)
	}
	if err := o.store.SetState(ctx, conv.ID, docstore.StateOpen); err != nil {
		return Reply{}, fmt.Errorf("open conversation: %w", err)
	}
	conv.State = docstore.StateOpen
	conv.TurnCount = 1

	o.metrics.ObserveConversationEvent("started")
	o.metrics.IncOpenConversations()
	return Reply{
		Conversation: conv,
		Turn:         turn,
		Suggestions:  suggestionsFor(conv.Topic, conv.Level, conv.Language),
	}, nil
}

// Next handles one child utterance and returns the assistant turn. The
// child turn and the reply are persisted together, so the stored turn
// sequence is always opening + whole exchanges.
func (o *Orchestrator) Next(ctx context.Context, conversationID string, req NextRequest) (Reply, error) {
	start := time.Now()
	unlock := o.lockConversation(conversationID)
	defer unlock()

	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Reply{}, err
	}
	if conv.State == docstore.StateClosed {
		return Reply{}, ErrConversationClosed
	}

	profile, err := o.store.GetProfile(ctx, conv.ChildID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return Reply{}, fmt.Errorf("load profile: %w", err)
	}
	sp := safety.Profile{
		Age:         profile.Age,
		Level:       conv.Level,
		AvoidTopics: profile.AvoidTopics,
		Sensitivity: profile.Sensitivity,
		Language:    conv.Language,
	}

	reply := Reply{}
	newState := conv.State
	var replyText string

	switch {
	case req.End || conv.State == docstore.StateClosing:
		// A goodbye turn still goes through the inbound filter so a
		// flagged final utterance cannot slip into extraction.
		if inbound := safety.Classify(req.Text, sp); !inbound.Safe {
			reply.Blocked = true
			reply.Category = inbound.Category
			o.metrics.ObserveSafetyBlock(string(inbound.Category), "inbound")
		}
		replyText = farewellLine(conv.Language)
		newState = docstore.StateClosed

	default:
		if inbound := safety.Classify(req.Text, sp); !inbound.Safe {
			// Flagged input is answered from templates only. The model
			// never sees the utterance.
			replyText = safety.RedirectReply(req.Text, sp)
			reply.Blocked = true
			reply.Category = inbound.Category
			o.metrics.ObserveSafetyBlock(string(inbound.Category), "inbound")
		} else {
			bundle := o.assembler.Assemble(ctx, assembler.Request{
				ChildID: conv.ChildID,
				Topic:   conv.Topic,
				Query:   req.Text,
				Limit:   8,
			})
			reply.SourceStatus = bundle.SourceStatus

			replyText = o.generate(ctx, conv, profile, req.Text, bundle)

			if outbound := safety.Classify(emotion.Strip(replyText), sp); !outbound.Safe {
				replyText = fallbackLine(req.Text, conv.Language)
				o.metrics.ObserveSafetyBlock(string(outbound.Category), "outbound")
			}
		}

		// Wind down before the turn cap so the goodbye still fits.
		if conv.TurnCount+2 >= 2*o.cfg.MaxExchanges-1 {
			replyText = windDownLine(conv.Language)
			newState = docstore.StateClosing
		}
	}

	now := time.Now().UTC()
	var turns []docstore.Turn
	if strings.TrimSpace(req.Text) != "" {
		turns = append(turns, docstore.Turn{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           docstore.RoleChild,
			Text:           req.Text,
			ASRConfidence:  req.ASRConfidence,
			CreatedAt:      now,
		})
	}
	assistantTurn := docstore.Turn{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           docstore.RoleAssistant,
		Text:           replyText,
		Emotion:        string(emotion.Tag(replyText)),
		CreatedAt:      now,
	}
	turns = append(turns, assistantTurn)

	if err := o.store.AppendTurns(ctx, conv.ID, turns...); err != nil {
		return Reply{}, fmt.Errorf("append turns: %w", err)
	}
	conv.TurnCount += len(turns)

	if newState != conv.State {
		if err := o.store.SetState(ctx, conv.ID, newState); err != nil {
			return Reply{}, fmt.Errorf("set state: %w", err)
		}
		conv.State = newState
		if newState == docstore.StateClosed {
			o.metrics.ObserveConversationEvent("closed")
			o.metrics.DecOpenConversations()
		}
	}

	// Flagged input never advances extraction: the transcript snapshot is
	// only handed off for exchanges that passed the inbound filter.
	if !reply.Blocked {
		o.enqueueExtraction(ctx, conv)
	}
	o.metrics.ObserveTurnLatency(time.Since(start))

	reply.Conversation = conv
	reply.Turn = assistantTurn
	if conv.State == docstore.StateOpen {
		reply.Suggestions = suggestionsFor(conv.Topic, conv.Level, conv.Language)
	}
	return reply, nil
}

// generate asks the model for the reply, falling back to a template line
// when the model is unavailable. The turn is never lost to a model error.
func (o *Orchestrator) generate(ctx context.Context, conv docstore.Conversation, profile docstore.ChildProfile, childText string, bundle assembler.Result) string {
	text, err := o.llm.Complete(ctx, llm.Request{
		System:      systemPrompt(conv, profile, bundle),
		Prompt:      childText,
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			log.Printf("conversation %s: model error, using fallback: %v", conv.ID, err)
			o.metrics.ObserveAdapterError("llm", "complete")
		}
		return fallbackLine(childText, conv.Language)
	}
	return strings.TrimSpace(text)
}

func (o *Orchestrator) enqueueExtraction(ctx context.Context, conv docstore.Conversation) {
	if o.extractor == nil {
		return
	}
	turns, err := o.store.ListTurns(ctx, conv.ID)
	if err != nil {
		log.Printf("conversation %s: snapshot for extraction failed: %v", conv.ID, err)
		return
	}
	o.extractor.Enqueue(extraction.Job{Conversation: conv, Turns: turns})
}

func systemPrompt(conv docstore.Conversation, profile docstore.ChildProfile, bundle assembler.Result) string {
	var b strings.Builder
	if normalizeLanguage(conv.Language) == "en" {
		b.WriteString("You are a friendly companion robot talking with a child. Reply in English, ")
	} else {
		b.WriteString("You are a friendly companion robot talking with a child. Reply in Spanish, ")
	}
	fmt.Fprintf(&b, "in one or two short sentences suited to complexity level %d. ", conv.Level)
	b.WriteString("Mark an enthusiastic span as **text** and a soothing span as __text__; use at most one span per reply. ")
	b.WriteString("Be warm, curious and encouraging. Never discuss violence, scary or adult topics.")
	if len(profile.AvoidTopics) > 0 {
		fmt.Fprintf(&b, " Do not bring up: %s.", strings.Join(profile.AvoidTopics, ", "))
	}
	if conv.Topic != "" {
		fmt.Fprintf(&b, " Today's topic is %s.", conv.Topic)
	}
	if block := assembler.PromptBlock(bundle.Snippets); block != "" {
		b.WriteString("\n\nThings you remember about this child:\n")
		b.WriteString(block)
	}
	return b.String()
}
