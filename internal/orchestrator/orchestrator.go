// Package orchestrator runs conversation turns: it moderates the
// reasoning loop between the model, the tool dispatcher, and the
// document index, and persists the full turn trace per conversation.
//
// A turn is an explicit state machine. The model is asked for its next
// step with tool execution disabled in the framework; every requested
// call flows through the dispatcher so unknown tools, bad arguments,
// and upstream failures become structured observations the model can
// react to on the next iteration. The loop is bounded twice over, by
// an iteration cap and by a wall-clock budget on the whole turn.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/retrieval"
	"github.com/cartageio/cartage/internal/session"
	"github.com/cartageio/cartage/internal/tools"
)

const (
	// DefaultMaxToolIterations caps reasoning/dispatch cycles per turn.
	DefaultMaxToolIterations = 5

	// DefaultTurnTimeout is the wall-clock budget for one turn.
	DefaultTurnTimeout = 30 * time.Second

	// FallbackResponse is returned when the model produces no usable
	// text even after a corrective reprompt.
	FallbackResponse = "I wasn't able to produce an answer for that. Please try rephrasing your question."

	// maxTitleLength bounds auto-generated conversation titles.
	maxTitleLength = 60
)

// DefaultSystemPrompt frames the assistant. Kept here rather than in
// config so every entry point shares one persona.
const DefaultSystemPrompt = `You are Cartage, a logistics operations assistant.
You help with shipment tracking, shipping cost estimates, delivery dates,
warehouse lookups, and questions about logistics reference documents.

Use the available tools for any live data; never invent tracking numbers,
prices, or dates. When a tool reports an error, read its code and message:
correct your call if the arguments were wrong, otherwise tell the user
plainly what failed. When document passages are provided, ground your
answer in them. If neither tools nor documents can answer, say so.`

// StreamCallback receives response chunks as the model produces them.
// Returning an error aborts the stream.
type StreamCallback func(ctx context.Context, chunk *ai.ModelResponseChunk) error

// SessionStore is the persistence surface a turn needs.
// *session.Store satisfies it.
type SessionStore interface {
	GetOrCreate(ctx context.Context, id uuid.UUID) (*session.Conversation, error)
	HistoryMessages(ctx context.Context, id uuid.UUID) ([]*ai.Message, error)
	AppendMessages(ctx context.Context, id uuid.UUID, messages []*ai.Message) error
	SetTitle(ctx context.Context, id uuid.UUID, title string) error
}

// Searcher plans document retrieval. *retrieval.Planner satisfies it.
type Searcher interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Chunk, error)
}

// ToolDispatcher executes tool calls. *tools.Dispatcher satisfies it.
type ToolDispatcher interface {
	DispatchAll(ctx context.Context, calls []tools.Call) []tools.Observation
}

// generateFunc is the model call. Swapped for a fake in tests.
type generateFunc func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)

// Config assembles an Orchestrator.
type Config struct {
	Genkit     *genkit.Genkit
	Model      string // provider-qualified model name
	Sessions   SessionStore
	Guard      *session.Guard
	Dispatcher ToolDispatcher
	Searcher   Searcher
	ToolRefs   []ai.ToolRef
	Logger     log.Logger

	SystemPrompt      string        // empty selects DefaultSystemPrompt
	MaxToolIterations int           // <= 0 selects DefaultMaxToolIterations
	TurnTimeout       time.Duration // <= 0 selects DefaultTurnTimeout

	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimiter          *rate.Limiter // nil installs the default limiter
	TokenBudget          TokenBudget
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Model == "" {
		return errors.New("model name is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Guard == nil {
		return errors.New("conversation guard is required")
	}
	if cfg.Dispatcher == nil {
		return errors.New("tool dispatcher is required")
	}
	if cfg.Searcher == nil {
		return errors.New("document searcher is required")
	}
	if len(cfg.ToolRefs) == 0 {
		return errors.New("at least one tool is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Response is the outcome of a completed turn.
type Response struct {
	ConversationID uuid.UUID
	FinalText      string
	State          State
	Iterations     int // reasoning cycles consumed
	ToolCalls      int // tool invocations dispatched
	Retrieved      int // document chunks attached
}

// Orchestrator is safe for concurrent use; per-conversation ordering
// is enforced by the guard, not by global locking.
type Orchestrator struct {
	g          *genkit.Genkit
	model      string
	system     string
	sessions   SessionStore
	guard      *session.Guard
	dispatcher ToolDispatcher
	searcher   Searcher
	toolRefs   []ai.ToolRef
	logger     log.Logger

	maxIterations int
	turnTimeout   time.Duration

	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter
	tokenBudget    TokenBudget

	generate generateFunc
}

// New creates an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	system := cfg.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	maxIterations := cfg.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxToolIterations
	}
	turnTimeout := cfg.TurnTimeout
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}
	tokenBudget := cfg.TokenBudget
	if tokenBudget.MaxHistoryTokens == 0 {
		tokenBudget = DefaultTokenBudget()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	o := &Orchestrator{
		g:              cfg.Genkit,
		model:          cfg.Model,
		system:         system,
		sessions:       cfg.Sessions,
		guard:          cfg.Guard,
		dispatcher:     cfg.Dispatcher,
		searcher:       cfg.Searcher,
		toolRefs:       cfg.ToolRefs,
		logger:         cfg.Logger,
		maxIterations:  maxIterations,
		turnTimeout:    turnTimeout,
		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreakerConfig),
		rateLimiter:    limiter,
		tokenBudget:    tokenBudget,
	}
	o.generate = func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		return genkit.Generate(ctx, o.g, opts...)
	}

	o.logger.Info("orchestrator initialized",
		"model", o.model,
		"tools", len(o.toolRefs),
		"max_iterations", o.maxIterations,
		"turn_timeout", o.turnTimeout)
	return o, nil
}

// HandleTurn runs one conversation turn without streaming.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID uuid.UUID, input string) (*Response, error) {
	return o.HandleTurnStream(ctx, conversationID, input, nil)
}

// HandleTurnStream runs one conversation turn, delivering chunks to
// callback when it is non-nil. Turns on the same conversation are
// serialized; turns on distinct conversations run concurrently.
func (o *Orchestrator) HandleTurnStream(ctx context.Context, conversationID uuid.UUID, input string, callback StreamCallback) (*Response, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if maxInput := o.tokenBudget.MaxInputTokens; maxInput > 0 && estimateTokens(input) > maxInput {
		return nil, fmt.Errorf("%w: input exceeds %d tokens", ErrEmptyInput, maxInput)
	}

	release, err := o.guard.Acquire(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("acquiring conversation: %w", err)
	}
	defer release()

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	conv, err := o.sessions.GetOrCreate(turnCtx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	resp, trace, err := o.runTurn(turnCtx, conv, input, callback)
	if err != nil {
		// A failed turn keeps what it produced: the user message and any
		// tool observations stay in history so a retried turn can see
		// what was already attempted.
		o.persistPartial(ctx, conv.ID, trace)
		if errors.Is(turnCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %w", ErrTurnBudgetExceeded, o.turnTimeout, err)
		}
		return nil, err
	}

	// Persist after release would reorder concurrent turns; the guard is
	// still held here. Use the parent ctx so a turn that spent its whole
	// budget generating can still commit its trace. A persistence failure
	// fails the turn: returning the answer anyway would desynchronize
	// the store from what the user saw.
	if err := o.sessions.AppendMessages(ctx, conv.ID, trace); err != nil {
		return nil, fmt.Errorf("persisting turn trace for %s: %w", conv.ID, err)
	}
	o.maybeSetTitle(ctx, conv, input)

	return resp, nil
}

// persistPartial appends a failed turn's trace, best effort. The write
// runs on a context detached from the caller so a cancelled or expired
// turn can still commit the observations it already gathered.
func (o *Orchestrator) persistPartial(ctx context.Context, conversationID uuid.UUID, trace []*ai.Message) {
	if len(trace) == 0 {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.sessions.AppendMessages(pctx, conversationID, trace); err != nil {
		o.logger.Error("failed to persist partial turn trace",
			"conversation_id", conversationID, "messages", len(trace), "error", err)
	}
}

// runTurn executes the reasoning loop and returns the response plus the
// messages to persist (user input, tool traffic, final answer).
func (o *Orchestrator) runTurn(ctx context.Context, conv *session.Conversation, input string, callback StreamCallback) (*Response, []*ai.Message, error) {
	resp := &Response{ConversationID: conv.ID, State: StateReasoning}

	history, err := o.sessions.HistoryMessages(ctx, conv.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading history: %w", err)
	}
	messages := o.truncateHistory(deepCopyMessages(history), o.tokenBudget.MaxHistoryTokens)

	userMsg := ai.NewUserMessage(ai.NewTextPart(input))
	messages = append(messages, userMsg)
	trace := []*ai.Message{userMsg}

	resp.State = StateRetrieving
	chunks := o.retrieveContext(ctx, input)
	resp.Retrieved = len(chunks)
	docs := retrieval.Documents(chunks)

	// The index is consulted at most once per turn. The up-front pass
	// counts when it found anything; otherwise the model gets one
	// search_documents call.
	searchBudget := 1
	if len(chunks) > 0 {
		searchBudget = 0
	}

	reprompted := false
	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		resp.State = StateReasoning
		resp.Iterations = iteration

		opts := []ai.GenerateOption{
			ai.WithModelName(o.model),
			ai.WithSystem(o.system),
			ai.WithMessages(messages...),
			ai.WithTools(o.toolRefs...),
			ai.WithReturnToolRequests(true),
		}
		if len(docs) > 0 {
			opts = append(opts, ai.WithDocs(docs...))
		}
		if callback != nil {
			opts = append(opts, ai.WithStreaming(callback))
		}

		modelResp, err := o.generateWithResilience(ctx, opts)
		if err != nil {
			resp.State = StateFailed
			return nil, trace, err
		}

		if modelResp.Message != nil {
			messages = append(messages, modelResp.Message)
			trace = append(trace, modelResp.Message)
		}

		requests := modelResp.ToolRequests()
		if len(requests) == 0 {
			text := strings.TrimSpace(modelResp.Text())
			if text == "" {
				// One corrective reprompt, then the canned fallback.
				if !reprompted {
					reprompted = true
					o.logger.Warn("model returned empty response, reprompting",
						"conversation_id", conv.ID, "iteration", iteration)
					correction := ai.NewUserMessage(ai.NewTextPart(
						"Your previous reply was empty. Answer the question in plain text."))
					messages = append(messages, correction)
					continue
				}
				text = FallbackResponse
				fallback := ai.NewModelMessage(ai.NewTextPart(text))
				messages = append(messages, fallback)
				trace = append(trace, fallback)
			}
			resp.State = StateFinalizing
			resp.FinalText = text
			o.logger.Info("turn complete",
				"conversation_id", conv.ID,
				"iterations", resp.Iterations,
				"tool_calls", resp.ToolCalls,
				"retrieved", resp.Retrieved)
			return resp, trace, nil
		}

		resp.State = StateToolDispatch
		toolMsg := o.dispatchRequests(ctx, conv.ID, requests, &searchBudget)
		resp.ToolCalls += len(requests)
		messages = append(messages, toolMsg)
		trace = append(trace, toolMsg)
	}

	resp.State = StateFailed
	return nil, trace, fmt.Errorf("%w: %d iterations", ErrToolIterationsExceeded, o.maxIterations)
}

// dispatchRequests runs the model's tool requests in order and packs
// the observations into a single tool message. searchBudget throttles
// search_documents so one turn cannot query the index repeatedly.
func (o *Orchestrator) dispatchRequests(ctx context.Context, conversationID uuid.UUID, requests []*ai.ToolRequest, searchBudget *int) *ai.Message {
	calls := make([]tools.Call, 0, len(requests))
	throttled := make(map[int]bool, len(requests))

	for i, req := range requests {
		if req.Name == "search_documents" {
			if *searchBudget <= 0 {
				throttled[i] = true
				continue
			}
			*searchBudget--
		}
		calls = append(calls, tools.Call{
			Ref:  req.Ref,
			Name: req.Name,
			Args: toolArgs(req.Input),
		})
	}

	observations := o.dispatcher.DispatchAll(ctx, calls)

	parts := make([]*ai.Part, 0, len(requests))
	next := 0
	for i, req := range requests {
		var result tools.Result
		if throttled[i] {
			result = tools.Fail(tools.ErrCodeExecution,
				"the document index was already consulted this turn; answer from the passages you have")
		} else {
			result = observations[next].Result
			next++
		}
		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: result,
		}))
	}

	o.logger.Debug("dispatched tool requests",
		"conversation_id", conversationID,
		"requested", len(requests),
		"executed", len(calls))
	return ai.NewMessage(ai.RoleTool, nil, parts...)
}

// retrieveContext queries the index, degrading to no context on error.
func (o *Orchestrator) retrieveContext(ctx context.Context, query string) []retrieval.Chunk {
	chunks, err := o.searcher.Retrieve(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			o.logger.Debug("retrieval canceled, continuing without context", "error", err)
		} else {
			o.logger.Warn("retrieval failed, continuing without context", "error", err)
		}
		return nil
	}
	return chunks
}

// maybeSetTitle titles a conversation from its first message. Failures
// are logged and ignored; a missing title never fails a turn.
func (o *Orchestrator) maybeSetTitle(ctx context.Context, conv *session.Conversation, input string) {
	if conv.MessageCount > 0 || conv.Title != "" {
		return
	}
	title := input
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = strings.TrimSpace(string(runes[:maxTitleLength])) + "…"
	}
	if err := o.sessions.SetTitle(ctx, conv.ID, title); err != nil {
		o.logger.Warn("failed to set conversation title",
			"conversation_id", conv.ID, "error", err)
	}
}

// toolArgs coerces a tool request input into the map form the
// dispatcher validates. Models occasionally send JSON-encoded strings.
func toolArgs(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		var args map[string]any
		if err := json.Unmarshal([]byte(v), &args); err == nil {
			return args
		}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil
	}
	return args
}
