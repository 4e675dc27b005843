package utils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return fmt.Errorf("permanent")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Factor: 2}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			attempts++
			return fmt.Errorf("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestRetryWithResult(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond

	attempts := 0
	v, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, fmt.Errorf("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if v != 42 {
		t.Errorf("value = %d, want 42", v)
	}
}

func TestFormatMoney(t *testing.T) {
	if got := FormatMoney(decimal.RequireFromString("1234.5")); got != "1234.50" {
		t.Errorf("FormatMoney = %q, want 1234.50", got)
	}
}

func TestFormatPnL(t *testing.T) {
	if got := FormatPnL(decimal.RequireFromString("3966")); got != "+3966.00" {
		t.Errorf("FormatPnL = %q, want +3966.00", got)
	}
	if got := FormatPnL(decimal.RequireFromString("-12.5")); got != "-12.50" {
		t.Errorf("FormatPnL = %q, want -12.50", got)
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(0.25); got != "+25.00%" {
		t.Errorf("FormatPercent = %q, want +25.00%%", got)
	}
	if got := FormatPercent(-0.05); got != "-5.00%" {
		t.Errorf("FormatPercent = %q, want -5.00%%", got)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(1500 * time.Millisecond); got != "2s" {
		t.Errorf("FormatDuration = %q, want 2s", got)
	}
}
