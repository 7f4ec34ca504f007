package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test helpers ---

func stubRunner(resp Response, err error) Runner {
	return RunnerFunc(func(_ context.Context) (Response, error) {
		return resp, err
	})
}

func panicRunner() Runner {
	return RunnerFunc(func(_ context.Context) (Response, error) {
		panic("something went wrong")
	})
}

func slowRunner(delay time.Duration) Runner {
	return RunnerFunc(func(ctx context.Context) (Response, error) {
		select {
		case <-time.After(delay):
			return Response{Text: "done"}, nil
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	})
}

// --- Timeout tests ---

func TestTimeout(t *testing.T) {
	inner := stubRunner(Response{Text: "done"}, nil)

	wrapped := Timeout(time.Second)(inner)
	msg, err := wrapped.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "done", msg.Text)
}

func TestTimeoutExpires(t *testing.T) {
	wrapped := Timeout(50 * time.Millisecond)(slowRunner(200 * time.Millisecond))
	_, err := wrapped.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// --- Recovery tests ---

func TestRecovery(t *testing.T) {
	inner := stubRunner(Response{Text: "ok"}, nil)

	wrapped := Recovery()(inner)
	msg, err := wrapped.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Text)
}

func TestRecoveryCatchesPanic(t *testing.T) {
	wrapped := Recovery()(panicRunner())
	msg, err := wrapped.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent panicked")
	assert.Contains(t, err.Error(), "something went wrong")
	assert.Equal(t, Response{}, msg)
}

// --- Logger tests ---

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	inner := stubRunner(Response{Text: "reply"}, nil)

	wrapped := Logger(log, "test-agent")(inner)
	msg, err := wrapped.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "reply", msg.Text)

	output := buf.String()
	assert.Contains(t, output, "agent started")
	assert.Contains(t, output, "agent finished")
	assert.Contains(t, output, "test-agent")
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	inner := stubRunner(Response{}, errors.New("boom"))

	wrapped := Logger(log, "err-agent")(inner)
	_, err := wrapped.Run(context.Background())

	require.Error(t, err)
	output := buf.String()
	assert.Contains(t, output, "agent finished with error")
	assert.Contains(t, output, "boom")
}

// --- OutputGuardrail tests ---

func TestOutputGuardrailPasses(t *testing.T) {
	inner := stubRunner(Response{Text: "safe content"}, nil)
	check := func(_ Response) error { return nil }

	wrapped := OutputGuardrail(check)(inner)
	msg, err := wrapped.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "safe content", msg.Text)
}

func TestOutputGuardrailRejects(t *testing.T) {
	inner := stubRunner(Response{Text: "bad content"}, nil)
	check := func(m Response) error {
		if m.Text == "bad content" {
			return errors.New("guardrail: content rejected")
		}
		return nil
	}

	wrapped := OutputGuardrail(check)(inner)
	msg, err := wrapped.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, "guardrail: content rejected", err.Error())
	assert.Equal(t, Response{}, msg)
}

func TestOutputGuardrailSkipsOnError(t *testing.T) {
	inner := stubRunner(Response{}, errors.New("agent failed"))
	called := false
	check := func(_ Response) error {
		called = true
		return nil
	}

	wrapped := OutputGuardrail(check)(inner)
	_, err := wrapped.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, "agent failed", err.Error())
	assert.False(t, called)
}

// --- Middleware composition test ---

func TestMiddlewareComposition(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Runner) Runner {
			return RunnerFunc(func(ctx context.Context) (Response, error) {
				order = append(order, name+":before")
				msg, err := next.Run(ctx)
				order = append(order, name+":after")
				return msg, err
			})
		}
	}

	inner := stubRunner(Response{Text: "done"}, nil)

	// Apply A(B(C(inner)))
	wrapped := mw("A")(mw("B")(mw("C")(inner)))
	_, err := wrapped.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"A:before", "B:before", "C:before",
		"C:after", "B:after", "A:after",
	}, order)
}

func TestNonEmpty(t *testing.T) {
	require.NoError(t, NonEmpty(Response{Text: "script"}))

	err := NonEmpty(Response{Text: " \n\t", Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestLoggerIncludesModel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := Logger(log, "bot")(stubRunner(Response{Text: "x", Model: "openai/gpt-oss-20b", Fallback: true}, nil)).Run(context.Background())

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "model=openai/gpt-oss-20b")
	assert.Contains(t, buf.String(), "fallback=true")
}
