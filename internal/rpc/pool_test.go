package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type codedError struct {
	code int
	msg  string
}

func (e codedError) Error() string  { return e.msg }
func (e codedError) ErrorCode() int { return e.code }

func testPool(clients ...*Client) *Pool {
	p := NewPool(Config{Name: "test", RequestTimeout: time.Second})
	p.clients = clients
	return p
}

func TestIsRevert(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"code 3", codedError{code: 3, msg: "reverted"}, true},
		{"wrapped code 3", fmt.Errorf("call: %w", codedError{code: 3, msg: "x"}), true},
		{"message", errors.New("execution reverted: not liquidatable"), true},
		{"rate limited", codedError{code: -32005, msg: "limit exceeded"}, false},
		{"timeout", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRevert(tt.err); got != tt.want {
				t.Errorf("IsRevert(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDo_PrefersHealthyAndFallsBack(t *testing.T) {
	primary := &Client{endpoint: "primary", healthy: true}
	fallback := &Client{endpoint: "fallback", healthy: true}
	p := testPool(primary, fallback)

	var seen []string
	got, err := do(context.Background(), p, "test", func(ctx context.Context, c *Client) (int, error) {
		seen = append(seen, c.endpoint)
		if c == primary {
			return 0, errors.New("connection refused")
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Errorf("result = %d, want 7", got)
	}
	if len(seen) != 2 || seen[0] != "primary" || seen[1] != "fallback" {
		t.Errorf("call order = %v, want [primary fallback]", seen)
	}
}

func TestDo_UnhealthyPrimaryTriedLast(t *testing.T) {
	primary := &Client{endpoint: "primary", healthy: false}
	fallback := &Client{endpoint: "fallback", healthy: true}
	p := testPool(primary, fallback)

	var first string
	_, _ = do(context.Background(), p, "test", func(ctx context.Context, c *Client) (int, error) {
		if first == "" {
			first = c.endpoint
		}
		return 1, nil
	})
	if first != "fallback" {
		t.Errorf("first endpoint = %s, want fallback", first)
	}
}

func TestOrdered_HealthyKeepConfiguredPosition(t *testing.T) {
	p := testPool(
		&Client{endpoint: "a", healthy: true},
		&Client{endpoint: "b", healthy: false},
		&Client{endpoint: "c", healthy: true},
	)

	var got []string
	for _, c := range p.ordered() {
		got = append(got, c.endpoint)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "c" || got[2] != "b" {
		t.Errorf("order = %v, want [a c b]", got)
	}
}

func TestDo_RevertNotRetried(t *testing.T) {
	p := testPool(&Client{endpoint: "a", healthy: true}, &Client{endpoint: "b", healthy: true})

	calls := 0
	_, err := do(context.Background(), p, "test", func(ctx context.Context, c *Client) (int, error) {
		calls++
		return 0, codedError{code: 3, msg: "execution reverted"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_NoClients(t *testing.T) {
	p := testPool()
	_, err := do(context.Background(), p, "test", func(ctx context.Context, c *Client) (int, error) {
		return 1, nil
	})
	if !errors.Is(err, ErrNoClients) {
		t.Errorf("err = %v, want ErrNoClients", err)
	}
}

func TestDo_AppliesRequestTimeout(t *testing.T) {
	p := testPool(&Client{endpoint: "a", healthy: true})
	p.config.RequestTimeout = 10 * time.Millisecond

	_, err := do(context.Background(), p, "test", func(ctx context.Context, c *Client) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
