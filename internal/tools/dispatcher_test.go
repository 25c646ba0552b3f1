package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

type echoInput struct {
	Message string `json:"message"`
}

func echoTool() *Tool {
	return New("echo", "repeats its input",
		&InputSchema{
			Type:       "object",
			Properties: map[string]Property{"message": {Type: "string"}},
			Required:   []string{"message"},
		},
		func(_ context.Context, input echoInput) Result {
			return Success(input.Message)
		})
}

func panicTool() *Tool {
	return New("boom", "always panics", nil,
		func(_ context.Context, _ struct{}) Result {
			panic("unexpected state")
		})
}

func slowTool(d time.Duration) *Tool {
	return New("slow", "sleeps", nil,
		func(ctx context.Context, _ struct{}) Result {
			select {
			case <-time.After(d):
				return Success("done")
			case <-ctx.Done():
				return Success("interrupted")
			}
		})
}

func newTestDispatcher(t *testing.T, timeout time.Duration, ts ...*Tool) *Dispatcher {
	t.Helper()
	reg, err := NewRegistry(ts...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	d, err := NewDispatcher(reg, timeout, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d
}

func TestDispatch_Success(t *testing.T) {
	d := newTestDispatcher(t, 0, echoTool())

	obs := d.Dispatch(context.Background(), Call{
		Ref:  "r1",
		Name: "echo",
		Args: map[string]any{"message": "hello"},
	})
	if obs.Ref != "r1" || obs.Name != "echo" {
		t.Errorf("observation identity = (%q, %q), want (r1, echo)", obs.Ref, obs.Name)
	}
	if obs.Result.Status != StatusSuccess {
		t.Fatalf("status = %q, want success: %+v", obs.Result.Status, obs.Result.Error)
	}
	if obs.Result.Data != "hello" {
		t.Errorf("data = %v, want hello", obs.Result.Data)
	}
}

func TestDispatch_UnknownToolNeverInvokes(t *testing.T) {
	invoked := false
	tracked := New("tracked", "records invocation", nil,
		func(_ context.Context, _ struct{}) Result {
			invoked = true
			return Success(nil)
		})
	d := newTestDispatcher(t, 0, tracked)

	obs := d.Dispatch(context.Background(), Call{Name: "no_such_tool"})
	if obs.Result.Status != StatusError || obs.Result.Error.Code != ErrCodeUnknownTool {
		t.Fatalf("result = %+v, want unknown_tool error", obs.Result)
	}
	if !strings.Contains(obs.Result.Error.Message, "tracked") {
		t.Errorf("message %q does not list available tools", obs.Result.Error.Message)
	}
	if invoked {
		t.Error("registered tool ran during unknown-tool dispatch")
	}
}

func TestDispatch_InvalidArgumentsNamesField(t *testing.T) {
	d := newTestDispatcher(t, 0, echoTool())

	obs := d.Dispatch(context.Background(), Call{
		Name: "echo",
		Args: map[string]any{"message": 42},
	})
	if obs.Result.Error == nil || obs.Result.Error.Code != ErrCodeInvalidArguments {
		t.Fatalf("result = %+v, want invalid_arguments", obs.Result)
	}
	if obs.Result.Error.Field != "message" {
		t.Errorf("Field = %q, want message", obs.Result.Error.Field)
	}
}

func TestDispatch_MissingRequiredArgument(t *testing.T) {
	d := newTestDispatcher(t, 0, echoTool())

	obs := d.Dispatch(context.Background(), Call{Name: "echo"})
	if obs.Result.Error == nil || obs.Result.Error.Code != ErrCodeInvalidArguments {
		t.Fatalf("result = %+v, want invalid_arguments", obs.Result)
	}
	if obs.Result.Error.Field != "message" {
		t.Errorf("Field = %q, want message", obs.Result.Error.Field)
	}
}

func TestDispatch_PanicBecomesExecutionError(t *testing.T) {
	d := newTestDispatcher(t, 0, panicTool())

	obs := d.Dispatch(context.Background(), Call{Name: "boom"})
	if obs.Result.Error == nil || obs.Result.Error.Code != ErrCodeExecution {
		t.Errorf("result = %+v, want execution error from recovered panic", obs.Result)
	}
}

func TestDispatch_TimeoutBecomesUpstreamUnavailable(t *testing.T) {
	d := newTestDispatcher(t, 20*time.Millisecond, slowTool(time.Second))

	obs := d.Dispatch(context.Background(), Call{Name: "slow"})
	if obs.Result.Error == nil || obs.Result.Error.Code != ErrCodeUpstreamUnavailable {
		t.Errorf("result = %+v, want upstream_unavailable on timeout", obs.Result)
	}
}

func TestDispatchAll_PreservesCallOrder(t *testing.T) {
	d := newTestDispatcher(t, 0, echoTool())

	calls := []Call{
		{Ref: "a", Name: "echo", Args: map[string]any{"message": "one"}},
		{Ref: "b", Name: "missing"},
		{Ref: "c", Name: "echo", Args: map[string]any{"message": "three"}},
	}
	observations := d.DispatchAll(context.Background(), calls)
	if len(observations) != 3 {
		t.Fatalf("len(observations) = %d, want 3", len(observations))
	}
	for i, obs := range observations {
		if obs.Ref != calls[i].Ref {
			t.Errorf("observations[%d].Ref = %q, want %q", i, obs.Ref, calls[i].Ref)
		}
	}
	// The failed middle call must not stop the one after it.
	if observations[2].Result.Status != StatusSuccess {
		t.Errorf("observations[2] = %+v, want success after earlier failure", observations[2].Result)
	}
}
