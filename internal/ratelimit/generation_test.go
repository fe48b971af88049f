package ratelimit

import (
	"context"
	"sync"
	"testing"

	"github.com/inkwise/inkwise/internal/config"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewGenerationLimiter(config.Config{})
	if err != nil {
		t.Fatalf("NewGenerationLimiter: %v", err)
	}

	for i := 0; i < 100; i++ {
		ok, err := limiter.Allow(context.Background(), "42")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}

func TestKeyedMutexSerializesPerUser(t *testing.T) {
	km := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Lock(context.Background(), "7")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
}

func TestKeyedMutexIndependentUsers(t *testing.T) {
	km := newKeyedMutex()

	releaseA, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := km.Lock(context.Background(), "b")
		if err != nil {
			t.Errorf("Lock b: %v", err)
			return
		}
		releaseB()
		close(done)
	}()
	<-done
}
