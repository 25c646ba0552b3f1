package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cartageio/cartage/internal/log"
)

// DefaultCallTimeout bounds a single tool execution. One slow upstream
// must not consume the whole turn budget.
const DefaultCallTimeout = 10 * time.Second

// Call is one tool invocation requested by the model. Ref correlates
// the eventual Observation with the request when several calls arrive
// in one model turn.
type Call struct {
	Ref  string
	Name string
	Args map[string]any
}

// Observation is the outcome of one Call, in the same position as the
// Call that produced it.
type Observation struct {
	Ref    string
	Name   string
	Result Result
}

// Dispatcher validates and executes tool calls against a Registry.
//
// Every failure mode becomes a structured Result: the model reads the
// error code and either corrects its call or tells the user. Dispatch
// itself never returns a Go error.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   log.Logger
}

// NewDispatcher creates a Dispatcher. timeout <= 0 selects
// DefaultCallTimeout; logger may be nil.
func NewDispatcher(registry *Registry, timeout time.Duration, logger log.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Dispatcher{registry: registry, timeout: timeout, logger: logger}, nil
}

// Dispatch executes one call. An unknown tool name or invalid arguments
// short-circuit before any tool code runs.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) Observation {
	obs := Observation{Ref: call.Ref, Name: call.Name}

	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name)
		obs.Result = Fail(ErrCodeUnknownTool, fmt.Sprintf(
			"no tool named %q; available tools: %s",
			call.Name, strings.Join(d.registry.Names(), ", ")))
		return obs
	}

	if err := tool.Schema().Validate(call.Args); err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			obs.Result = FailField(argErr.Field, argErr.Reason)
		} else {
			obs.Result = Fail(ErrCodeInvalidArguments, err.Error())
		}
		d.logger.Warn("tool arguments rejected", "tool", call.Name, "error", err)
		return obs
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	obs.Result = d.execute(callCtx, tool, call.Args)
	elapsed := time.Since(start)

	if obs.Result.Status == StatusError && obs.Result.Error != nil {
		d.logger.Warn("tool call failed",
			"tool", call.Name, "code", obs.Result.Error.Code, "duration", elapsed)
	} else {
		d.logger.Debug("tool call complete", "tool", call.Name, "duration", elapsed)
	}
	return obs
}

// DispatchAll executes calls sequentially and returns observations in
// call order. A failed call does not stop the ones after it.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []Call) []Observation {
	observations := make([]Observation, len(calls))
	for i, call := range calls {
		observations[i] = d.Dispatch(ctx, call)
	}
	return observations
}

// execute runs the tool, converting panics and deadline expiry into
// structured results.
func (d *Dispatcher) execute(ctx context.Context, tool *Tool, args map[string]any) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", tool.Name(), "panic", r)
			result = Fail(ErrCodeExecution, fmt.Sprintf("tool %q failed internally", tool.Name()))
		}
	}()

	result = tool.Run(ctx, args)

	if ctx.Err() != nil && result.Status != StatusError {
		return Fail(ErrCodeUpstreamUnavailable, fmt.Sprintf(
			"tool %q timed out after %s", tool.Name(), d.timeout))
	}
	if result.Status == "" {
		result.Status = StatusSuccess
	}
	return result
}
