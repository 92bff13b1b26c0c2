package subscriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sage/internal/storage"
	logx "sage/pkg/logx"
)

type fakeSource struct {
	mu   sync.Mutex
	subs []storage.Subscription
	err  error
	hits int
}

func (f *fakeSource) Subscriptions(ctx context.Context) ([]storage.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if f.err != nil {
		return nil, f.err
	}
	return append([]storage.Subscription(nil), f.subs...), nil
}

func (f *fakeSource) set(subs []storage.Subscription, err error) {
	f.mu.Lock()
	f.subs, f.err = subs, err
	f.mu.Unlock()
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func sub(cat, dest string) storage.Subscription {
	return storage.Subscription{Category: cat, Destination: dest}
}

func TestCacheAbsentUntilRefreshed(t *testing.T) {
	t.Parallel()
	src := &fakeSource{subs: []storage.Subscription{sub("funny", "1")}}
	c := NewCache(src, time.Hour, logx.Nop())

	snap, ok, err := c.Snapshot(context.Background())
	if err != nil || ok || snap != nil {
		t.Fatalf("before refresh: snap=%v ok=%v err=%v", snap, ok, err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap, ok, err = c.Snapshot(context.Background())
	if err != nil || !ok {
		t.Fatalf("after refresh: ok=%v err=%v", ok, err)
	}
	if got := snap["funny"]; len(got) != 1 || got[0] != "1" {
		t.Fatalf("snap = %v", snap)
	}
}

func TestCacheGroupsAndDedups(t *testing.T) {
	t.Parallel()
	src := &fakeSource{subs: []storage.Subscription{
		sub("funny", "3"),
		sub("fiction", "1"),
		sub("funny", "2"),
		sub("funny", "3"),
		sub("", "9"),
	}}
	c := NewCache(src, time.Hour, logx.Nop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap, _, _ := c.Snapshot(context.Background())
	if len(snap) != 2 {
		t.Fatalf("categories = %d, want 2: %v", len(snap), snap)
	}
	if got := snap["funny"]; len(got) != 2 || got[0] != "3" || got[1] != "2" {
		t.Fatalf("funny = %v, want [3 2]", got)
	}
	if snap.Destinations() != 3 {
		t.Fatalf("Destinations = %d, want 3", snap.Destinations())
	}
}

func TestCacheKeepsLastGoodSnapshot(t *testing.T) {
	t.Parallel()
	src := &fakeSource{subs: []storage.Subscription{sub("funny", "1")}}
	c := NewCache(src, time.Hour, logx.Nop())
	_ = c.Refresh(context.Background())

	boom := errors.New("db down")
	src.set(nil, boom)
	if err := c.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Refresh err = %v, want %v", err, boom)
	}
	snap, ok, _ := c.Snapshot(context.Background())
	if !ok || len(snap["funny"]) != 1 {
		t.Fatalf("previous snapshot lost: ok=%v snap=%v", ok, snap)
	}
}

func TestCacheSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	src := &fakeSource{subs: []storage.Subscription{sub("funny", "1")}}
	c := NewCache(src, time.Hour, logx.Nop())
	_ = c.Refresh(context.Background())

	snap, _, _ := c.Snapshot(context.Background())
	snap["funny"][0] = "mutated"
	snap["other"] = []string{"x"}

	again, _, _ := c.Snapshot(context.Background())
	if again["funny"][0] != "1" || len(again) != 1 {
		t.Fatalf("cache mutated through snapshot: %v", again)
	}
}

func TestCacheRunRefreshesUntilCancelled(t *testing.T) {
	t.Parallel()
	src := &fakeSource{subs: []storage.Subscription{sub("funny", "1")}}
	c := NewCache(src, 5*time.Millisecond, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for src.calls() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d refreshes", src.calls())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if _, ok, _ := c.Snapshot(context.Background()); !ok {
		t.Fatal("expected a snapshot after Run")
	}
}
