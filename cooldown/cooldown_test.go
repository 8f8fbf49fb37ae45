package cooldown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTryConsumeFirstUseAllowed(t *testing.T) {
	l := NewLedger()
	allowed, remaining := l.TryConsume("alice", "!help", 5*time.Second)
	if !allowed {
		t.Fatal("first invocation should be allowed")
	}
	if remaining != 0 {
		t.Errorf("remaining = %v, want 0", remaining)
	}
}

func TestTryConsumeWithinCooldownDenied(t *testing.T) {
	l := NewLedger()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l.SetNowFunc(func() time.Time { return now })

	if allowed, _ := l.TryConsume("alice", "!help", 5*time.Second); !allowed {
		t.Fatal("first invocation should be allowed")
	}
	now = base.Add(2 * time.Second)
	allowed, remaining := l.TryConsume("alice", "!help", 5*time.Second)
	if allowed {
		t.Fatal("second invocation within cooldown should be denied")
	}
	if remaining != 3*time.Second {
		t.Errorf("remaining = %v, want 3s", remaining)
	}

	// After the cooldown elapses the command is allowed again.
	now = base.Add(5 * time.Second)
	if allowed, _ := l.TryConsume("alice", "!help", 5*time.Second); !allowed {
		t.Error("invocation after cooldown should be allowed")
	}
}

func TestTryConsumeIndependentKeys(t *testing.T) {
	l := NewLedger()
	if allowed, _ := l.TryConsume("alice", "!help", time.Hour); !allowed {
		t.Fatal("alice !help should be allowed")
	}
	// Different command, same user.
	if allowed, _ := l.TryConsume("alice", "!hug", time.Hour); !allowed {
		t.Error("alice !hug should not share alice !help cooldown")
	}
	// Same command, different user.
	if allowed, _ := l.TryConsume("bob", "!help", time.Hour); !allowed {
		t.Error("bob !help should not share alice !help cooldown")
	}
}

func TestTryConsumeZeroCooldown(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 3; i++ {
		if allowed, _ := l.TryConsume("alice", "!free", 0); !allowed {
			t.Fatal("zero-cooldown command should always be allowed")
		}
	}
}

// Two concurrent invocations separated by less than the cooldown must yield
// exactly one allowed=true.
func TestTryConsumeConcurrentSingleWinner(t *testing.T) {
	l := NewLedger()
	const goroutines = 32
	var allowedCount atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if allowed, _ := l.TryConsume("alice", "!shout", time.Hour); allowed {
				allowedCount.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if got := allowedCount.Load(); got != 1 {
		t.Errorf("allowed count = %d, want exactly 1", got)
	}
}

func TestRemainingRounding(t *testing.T) {
	l := NewLedger()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l.SetNowFunc(func() time.Time { return now })

	l.TryConsume("alice", "!help", 10*time.Second)
	now = base.Add(3*time.Second + 123*time.Millisecond)
	_, remaining := l.TryConsume("alice", "!help", 10*time.Second)
	// 6.877s rounds to 6.9s for one-decimal display.
	if remaining != 6900*time.Millisecond {
		t.Errorf("remaining = %v, want 6.9s", remaining)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	l := NewLedger()
	if got := l.Peek("alice", "!help", 5*time.Second); got != 0 {
		t.Errorf("Peek before any use = %v, want 0", got)
	}
	if allowed, _ := l.TryConsume("alice", "!help", 5*time.Second); !allowed {
		t.Fatal("first invocation should be allowed after Peek")
	}
	if got := l.Peek("alice", "!help", 5*time.Second); got == 0 {
		t.Error("Peek after consume should report remaining wait")
	}
}
