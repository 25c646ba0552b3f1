package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGuard_SerializesSameConversation(t *testing.T) {
	guard := NewGuard()
	id := uuid.New()

	const workers = 8
	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := guard.Acquire(context.Background(), id)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer release()

			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestGuard_DistinctConversationsRunInParallel(t *testing.T) {
	guard := NewGuard()

	releaseA, err := guard.Acquire(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	defer releaseA()

	// Holding conversation A must not block conversation B.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := guard.Acquire(ctx, uuid.New())
	if err != nil {
		t.Fatalf("Acquire(b) blocked behind unrelated conversation: %v", err)
	}
	releaseB()
}

func TestGuard_AcquireHonorsContextCancellation(t *testing.T) {
	guard := NewGuard()
	id := uuid.New()

	release, err := guard.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := guard.Acquire(ctx, id); err == nil {
		t.Error("Acquire() = nil error, want context deadline exceeded")
	}
}

func TestGuard_EntriesAreReleased(t *testing.T) {
	guard := NewGuard()
	id := uuid.New()

	release, err := guard.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()

	guard.mu.Lock()
	defer guard.mu.Unlock()
	if len(guard.locks) != 0 {
		t.Errorf("len(locks) = %d after release, want 0", len(guard.locks))
	}
}
