package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDoVal_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), FixedDelay(3, time.Millisecond), func(_ context.Context) (int, error) {
		calls++
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 7 || calls != 1 {
		t.Errorf("expected value 7 after 1 call, got %d after %d", val, calls)
	}
}

func TestDoVal_SuccessAfterRetry(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), FixedDelay(3, time.Millisecond), func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewStatusError(503, "http://example")
		}
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hello" {
		t.Errorf("expected %q, got %q", "hello", val)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoVal_RetriesPermanentStatus(t *testing.T) {
	var calls int
	_, err := DoVal(context.Background(), FixedDelay(3, time.Millisecond), func(_ context.Context) (int, error) {
		calls++
		return 0, NewStatusError(404, "http://example")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoVal_ReturnsZeroOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), FixedDelay(2, time.Millisecond), func(_ context.Context) (int, error) {
		return 42, errors.New("fail")
	})
	if err == nil || err.Error() != "fail" {
		t.Fatalf("expected last error, got %v", err)
	}
	if val != 0 {
		t.Errorf("expected zero value on failure, got %d", val)
	}
}

func TestDoVal_DefaultsAttempts(t *testing.T) {
	var calls int
	_, _ = DoVal(context.Background(), RetryConfig{}, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoVal_ZeroDelayRetriesImmediately(t *testing.T) {
	start := time.Now()
	var calls int
	_, _ = DoVal(context.Background(), FixedDelay(4, 0), func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("zero delay should not sleep, took %v", elapsed)
	}
}

func TestDoVal_WaitsDelayBetweenAttempts(t *testing.T) {
	start := time.Now()
	_, _ = DoVal(context.Background(), FixedDelay(3, 20*time.Millisecond), func(_ context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected two 20ms pauses, took %v", elapsed)
	}
}

func TestDoVal_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int

	_, err := DoVal(ctx, FixedDelay(5, 50*time.Millisecond), func(_ context.Context) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before cancel took effect, got %d", calls)
	}
}

func TestDoVal_CancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	var calls int
	_, err := DoVal(ctx, FixedDelay(3, time.Hour), func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancel should interrupt the sleep, took %v", elapsed)
	}
}

func TestDoVal_OnRetryNotCalledAfterFinalAttempt(t *testing.T) {
	var retryAttempts []int
	cfg := FixedDelay(3, time.Millisecond)
	cfg.OnRetry = func(attempt int, _ error) {
		retryAttempts = append(retryAttempts, attempt)
	}

	_, _ = DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		return 0, errors.New("fail")
	})

	if len(retryAttempts) != 2 {
		t.Fatalf("expected 2 OnRetry calls, got %d", len(retryAttempts))
	}
	if retryAttempts[0] != 1 || retryAttempts[1] != 2 {
		t.Errorf("expected attempts [1, 2], got %v", retryAttempts)
	}
}

func TestRetryLogger(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := RetryLogger(zap.New(core), "fetch chunk")
	log(1, errors.New("boom"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.ContextMap()["operation"] != "fetch chunk" {
		t.Errorf("unexpected operation field: %v", entry.ContextMap()["operation"])
	}
}
