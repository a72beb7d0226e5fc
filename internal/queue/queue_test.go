package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type versionTable struct {
	mu       sync.Mutex
	versions map[string]int32
}

func (v *versionTable) set(key string, version int32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.versions == nil {
		v.versions = make(map[string]int32)
	}
	v.versions[key] = version
}

func (v *versionTable) provider(key string) (int32, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ver, ok := v.versions[key]
	return ver, ok
}

func TestNotificationsKeepFIFOOrder(t *testing.T) {
	q := New(nil, nil)
	var (
		mu   sync.Mutex
		seen []int
	)
	done := make(chan struct{})
	q.OnNotification("n", func(_ context.Context, payload any) error {
		mu.Lock()
		seen = append(seen, payload.(int))
		n := len(seen)
		mu.Unlock()
		if n == 50 {
			close(done)
		}
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for i := 0; i < 50; i++ {
		q.Enqueue("n", i)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notifications")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, got := range seen {
		if got != i {
			t.Fatalf("order broken at %d: got %d", i, got)
		}
	}
}

func TestStaleVersionedNotificationDropped(t *testing.T) {
	vt := &versionTable{}
	vt.set("file:///a.js", 2)
	q := New(vt.provider, nil)

	ran := make(chan int32, 2)
	q.OnNotification("validate", func(_ context.Context, payload any) error {
		ran <- payload.(int32)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	// Version 1 is already stale relative to the live document (version 2):
	// it must be dropped without the handler running.
	q.EnqueueVersioned("validate", int32(1), "file:///a.js", 1)
	q.EnqueueVersioned("validate", int32(2), "file:///a.js", 2)

	select {
	case got := <-ran:
		if got != 2 {
			t.Fatalf("stale item executed: version %d", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("current-version item never ran")
	}
	select {
	case got := <-ran:
		t.Fatalf("unexpected extra execution: version %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStaleRequestRejected(t *testing.T) {
	vt := &versionTable{}
	vt.set("file:///a.js", 7)
	q := New(vt.provider, nil)
	q.OnRequest("fix", func(_ context.Context, _ any) (any, error) {
		return "edits", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	if _, err := q.EnqueueRequest(context.Background(), "fix", nil, "file:///a.js", 6); !errors.Is(err, ErrStale) {
		t.Fatalf("want ErrStale, got %v", err)
	}
	result, err := q.EnqueueRequest(context.Background(), "fix", nil, "file:///a.js", 7)
	if err != nil {
		t.Fatalf("current-version request failed: %v", err)
	}
	if result != "edits" {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestCancelledRequestRejectedWithoutHandler(t *testing.T) {
	q := New(nil, nil)
	executed := false
	block := make(chan struct{})
	q.OnRequest("slow", func(_ context.Context, _ any) (any, error) {
		<-block
		return nil, nil
	})
	q.OnRequest("victim", func(_ context.Context, _ any) (any, error) {
		executed = true
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	go func() {
		_, _ = q.EnqueueRequest(context.Background(), "slow", nil, "", 0)
	}()
	// Wait until the slow request occupies the drain loop.
	deadline := time.Now().Add(5 * time.Second)
	for q.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow request never started")
		}
		time.Sleep(time.Millisecond)
	}

	reqCtx, reqCancel := context.WithCancel(context.Background())
	reqCancel()
	errCh := make(chan error, 1)
	go func() {
		_, err := q.EnqueueRequest(reqCtx, "victim", nil, "", 0)
		errCh <- err
	}()
	if err := <-errCh; !errors.Is(err, ErrCancelled) {
		t.Fatalf("want ErrCancelled, got %v", err)
	}
	close(block)
	time.Sleep(10 * time.Millisecond)
	if executed {
		t.Fatal("handler ran for a cancelled request")
	}
}

func TestRequestErrorDoesNotStallQueue(t *testing.T) {
	q := New(nil, nil)
	boom := errors.New("boom")
	q.OnRequest("bad", func(_ context.Context, _ any) (any, error) {
		return nil, boom
	})
	q.OnRequest("good", func(_ context.Context, _ any) (any, error) {
		return 42, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	if _, err := q.EnqueueRequest(context.Background(), "bad", nil, "", 0); !errors.Is(err, boom) {
		t.Fatalf("want handler error, got %v", err)
	}
	result, err := q.EnqueueRequest(context.Background(), "good", nil, "", 0)
	if err != nil || result != 42 {
		t.Fatalf("queue stalled after error: result=%v err=%v", result, err)
	}
}

func TestNotificationPanicRecovered(t *testing.T) {
	q := New(nil, nil)
	q.OnNotification("panics", func(_ context.Context, _ any) error {
		panic("handler bug")
	})
	survived := make(chan struct{})
	q.OnNotification("after", func(_ context.Context, _ any) error {
		close(survived)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("panics", nil)
	q.Enqueue("after", nil)
	select {
	case <-survived:
	case <-time.After(5 * time.Second):
		t.Fatal("queue died after notification panic")
	}
}

func TestClosedDocumentTreatedAsStale(t *testing.T) {
	vt := &versionTable{}
	q := New(vt.provider, nil)
	q.OnRequest("fix", func(_ context.Context, _ any) (any, error) {
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	if _, err := q.EnqueueRequest(context.Background(), "fix", nil, "file:///gone.js", 1); !errors.Is(err, ErrStale) {
		t.Fatalf("want ErrStale for closed document, got %v", err)
	}
}
