// Package chat implements the conversation turn pipeline: validate the
// request, resolve a session, assemble a bounded context window, call the
// completion provider and record the result.
package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/orionlabs/orion-go/internal/config"
	"github.com/orionlabs/orion-go/internal/lang"
	"github.com/orionlabs/orion-go/internal/llm"
	"github.com/orionlabs/orion-go/internal/logger"
	"github.com/orionlabs/orion-go/internal/metrics"
	"github.com/orionlabs/orion-go/internal/prompt"
	"github.com/orionlabs/orion-go/internal/store"
)

// Turn pipeline states.
type turnState stateless.State

var (
	stateReceived        turnState = "Received"
	stateSessionResolved turnState = "SessionResolved"
	stateHistoryLoaded   turnState = "HistoryLoaded"
	statePromptComposed  turnState = "PromptComposed"
	stateCompleting      turnState = "Completing"
	statePersisted       turnState = "Persisted"
	stateDone            turnState = "Done"
	stateFailed          turnState = "Failed"
)

// Turn pipeline triggers.
type turnTrigger stateless.Trigger

var (
	triggerBegin     turnTrigger = "Begin"
	triggerValidated turnTrigger = "Validated"
	triggerResolved  turnTrigger = "Resolved"
	triggerLoaded    turnTrigger = "Loaded"
	triggerComposed  turnTrigger = "Composed"
	triggerCompleted turnTrigger = "Completed"
	triggerPersisted turnTrigger = "Persisted"
	triggerFailed    turnTrigger = "Failed"
)

// Request is one inbound turn submission. An empty SessionID means "create a
// new session". Temperature nil and MaxTokens zero fall back to the session's
// values, then to configured defaults.
type Request struct {
	UserID       int64
	SessionID    string
	Message      string
	Regenerate   bool
	Model        string
	Temperature  *float32
	MaxTokens    int
	SystemPrompt string
}

// Result is the outcome of a successful turn.
type Result struct {
	Reply        string
	SessionID    string
	SessionTitle string
	Model        string
	TokensUsed   int
}

// Orchestrator coordinates classifier, prompt builder, window assembler,
// completion client and store for one turn at a time per session.
type Orchestrator struct {
	store     *store.Store
	completer llm.Completer
	provider  config.ProviderConfig
	chat      config.ChatConfig
	locks     *sessionLocks
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(st *store.Store, completer llm.Completer, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		store:     st,
		completer: completer,
		provider:  cfg.Provider,
		chat:      cfg.Chat,
		locks:     newSessionLocks(),
	}
}

// turnContext carries one turn's intermediate state through the machine.
type turnContext struct {
	req           Request
	text          string
	session       *store.Session
	created       bool
	userMsg       *store.Message
	history       []store.Message
	effectiveText string
	window        []openai.ChatCompletionMessage
	model         string
	reply         string
	tokens        int
	err           error
}

// Turn runs one conversation turn to completion. The user message is durable
// before the provider is called and is never rolled back; the assistant write,
// session bump and usage record land atomically afterwards.
func (o *Orchestrator) Turn(ctx context.Context, req Request) (*Result, error) {
	tctx := &turnContext{req: req, text: strings.TrimSpace(req.Message)}
	var unlock func()
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()

	fsm := stateless.NewStateMachine(stateReceived)

	fail := func(ctx context.Context, err error) error {
		tctx.err = err
		return fsm.FireCtx(ctx, triggerFailed)
	}

	fsm.Configure(stateReceived).
		PermitReentry(triggerBegin).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if !tctx.req.Regenerate && tctx.text == "" {
				return fail(ctx, ErrInvalidInput)
			}
			if utf8.RuneCountInString(tctx.text) > o.chat.MaxMessageLength {
				return fail(ctx, ErrInvalidInput)
			}
			return fsm.FireCtx(ctx, triggerValidated)
		}).
		Permit(triggerValidated, stateSessionResolved).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateSessionResolved).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if err := o.resolveSession(ctx, tctx); err != nil {
				return fail(ctx, err)
			}
			mu := o.locks.get(tctx.session.ID)
			mu.Lock()
			unlock = mu.Unlock

			if tctx.req.Regenerate {
				if err := o.trimForRegenerate(ctx, tctx); err != nil {
					return fail(ctx, err)
				}
			} else {
				// Persisting before the provider call keeps the user's turn
				// durable even if the completion fails.
				msg, err := o.store.AppendMessage(ctx, tctx.session.ID, store.RoleUser, tctx.text)
				if err != nil {
					logger.L.Error("persist user message", "session", tctx.session.ID, "error", err)
					return fail(ctx, ErrInternal)
				}
				tctx.userMsg = msg
				tctx.effectiveText = tctx.text
			}
			return fsm.FireCtx(ctx, triggerResolved)
		}).
		Permit(triggerResolved, stateHistoryLoaded).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateHistoryLoaded).
		OnEntry(func(ctx context.Context, _ ...any) error {
			var history []store.Message
			var err error
			if tctx.req.Regenerate {
				history, err = o.store.RecentMessages(ctx, tctx.session.ID, o.chat.HistoryWindow)
			} else {
				history, err = o.store.RecentMessagesBefore(ctx, tctx.session.ID, tctx.userMsg.ID, o.chat.HistoryWindow)
			}
			if err != nil {
				logger.L.Error("load history", "session", tctx.session.ID, "error", err)
				return fail(ctx, ErrInternal)
			}
			tctx.history = history
			return fsm.FireCtx(ctx, triggerLoaded)
		}).
		Permit(triggerLoaded, statePromptComposed).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(statePromptComposed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			mode := lang.Detect(tctx.effectiveText)
			override := tctx.req.SystemPrompt
			if override == "" {
				override = tctx.session.SystemPrompt
			}
			systemPrompt := prompt.Build(mode, override)
			tctx.window = AssembleWindow(systemPrompt, tctx.history, tctx.text, tctx.req.Regenerate, o.chat.HistoryWindow)
			logger.L.Debug("prompt composed", "session", tctx.session.ID, "mode", mode, "entries", len(tctx.window))
			return fsm.FireCtx(ctx, triggerComposed)
		}).
		Permit(triggerComposed, stateCompleting).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateCompleting).
		OnEntry(func(ctx context.Context, _ ...any) error {
			res, err := o.completer.Complete(ctx, tctx.window, llm.Options{
				Model:       tctx.model,
				Temperature: o.resolveTemperature(tctx),
				MaxTokens:   o.resolveMaxTokens(tctx),
			})
			if err != nil {
				logger.L.Error("completion failed", "session", tctx.session.ID, "error", err)
				switch {
				case errors.Is(err, llm.ErrTimeout):
					return fail(ctx, ErrProviderTimeout)
				case errors.Is(err, llm.ErrUnavailable):
					return fail(ctx, ErrProviderUnavailable)
				default:
					return fail(ctx, ErrInternal)
				}
			}
			tctx.reply = res.Reply
			tctx.tokens = res.TokensUsed
			return fsm.FireCtx(ctx, triggerCompleted)
		}).
		Permit(triggerCompleted, statePersisted).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(statePersisted).
		OnEntry(func(ctx context.Context, _ ...any) error {
			cost := float64(tctx.tokens) / 1000 * o.provider.RatesPer1K[tctx.model]
			if _, err := o.store.RecordTurn(ctx, tctx.req.UserID, tctx.session.ID, tctx.reply, tctx.tokens, cost); err != nil {
				logger.L.Error("record turn", "session", tctx.session.ID, "error", err)
				return fail(ctx, ErrInternal)
			}
			return fsm.FireCtx(ctx, triggerPersisted)
		}).
		Permit(triggerPersisted, stateDone).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateDone)
	fsm.Configure(stateFailed)

	if err := fsm.FireCtx(ctx, triggerBegin); err != nil {
		logger.L.Error("turn machine start failed", "error", err)
		if tctx.err == nil {
			tctx.err = ErrInternal
		}
	}

	current, err := fsm.State(ctx)
	if err != nil {
		logger.L.Error("turn machine state unreadable", "error", err)
		return nil, ErrInternal
	}

	if current == stateDone {
		metrics.TurnsTotal.WithLabelValues("done").Inc()
		metrics.TokensConsumed.Add(float64(tctx.tokens))
		return &Result{
			Reply:        tctx.reply,
			SessionID:    tctx.session.ID,
			SessionTitle: tctx.session.Title,
			Model:        tctx.model,
			TokensUsed:   tctx.tokens,
		}, nil
	}

	if tctx.err == nil {
		tctx.err = ErrInternal
	}
	metrics.TurnsTotal.WithLabelValues(Kind(tctx.err)).Inc()
	return nil, tctx.err
}

// resolveSession looks up the referenced session or creates a new one titled
// from the first characters of the message. It also fixes the model used for
// this turn.
func (o *Orchestrator) resolveSession(ctx context.Context, tctx *turnContext) error {
	if tctx.req.SessionID == "" {
		if tctx.req.Regenerate {
			// A brand new session has no assistant message to discard.
			return ErrNothingToRegenerate
		}
		sess := &store.Session{
			UserID:       tctx.req.UserID,
			Title:        deriveTitle(tctx.text, o.chat.TitleLength),
			Model:        tctx.req.Model,
			SystemPrompt: tctx.req.SystemPrompt,
			Temperature:  float64(o.provider.Temperature),
			MaxTokens:    o.provider.MaxTokens,
		}
		if sess.Model == "" {
			sess.Model = o.provider.Model
		}
		if tctx.req.Temperature != nil {
			sess.Temperature = float64(*tctx.req.Temperature)
		}
		if tctx.req.MaxTokens > 0 {
			sess.MaxTokens = tctx.req.MaxTokens
		}
		created, err := o.store.CreateSession(ctx, sess)
		if err != nil {
			logger.L.Error("create session", "error", err)
			return ErrInternal
		}
		tctx.session = created
		tctx.created = true
	} else {
		sess, err := o.store.GetSession(ctx, tctx.req.SessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			logger.L.Error("get session", "session", tctx.req.SessionID, "error", err)
			return ErrInternal
		}
		if sess.UserID != tctx.req.UserID {
			// Unauthorized access reads the same as a missing session.
			return ErrNotFound
		}
		tctx.session = sess
	}

	tctx.model = tctx.req.Model
	if tctx.model == "" {
		tctx.model = tctx.session.Model
	}
	if tctx.model == "" {
		tctx.model = o.provider.Model
	}
	return nil
}

// trimForRegenerate removes the trailing assistant message and selects the
// preceding user message for resubmission. The check precedes the delete so a
// rejected regenerate performs no mutation.
func (o *Orchestrator) trimForRegenerate(ctx context.Context, tctx *turnContext) error {
	last, err := o.store.LastMessages(ctx, tctx.session.ID, 2)
	if err != nil {
		logger.L.Error("load tail for regenerate", "session", tctx.session.ID, "error", err)
		return ErrInternal
	}
	if len(last) < 2 || last[1].Role != store.RoleAssistant || last[0].Role != store.RoleUser {
		return ErrNothingToRegenerate
	}
	if err := o.store.DeleteMessage(ctx, last[1].ID); err != nil {
		logger.L.Error("remove assistant message", "session", tctx.session.ID, "error", err)
		return ErrInternal
	}
	tctx.effectiveText = last[0].Content
	return nil
}

func (o *Orchestrator) resolveTemperature(tctx *turnContext) float32 {
	if tctx.req.Temperature != nil {
		return *tctx.req.Temperature
	}
	if tctx.session.Temperature != 0 {
		return float32(tctx.session.Temperature)
	}
	return o.provider.Temperature
}

func (o *Orchestrator) resolveMaxTokens(tctx *turnContext) int {
	if tctx.req.MaxTokens > 0 {
		return tctx.req.MaxTokens
	}
	if tctx.session.MaxTokens > 0 {
		return tctx.session.MaxTokens
	}
	return o.provider.MaxTokens
}

func deriveTitle(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
