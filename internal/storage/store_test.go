package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "sage/pkg/logx"
)

func openTestStore(t *testing.T, cfg Config) Store {
	t.Helper()
	st, err := Open(context.Background(), cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", cfg.Driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testStoreContract(t *testing.T, st Store) {
	ctx := context.Background()

	added, err := st.Subscribe(ctx, "hardcover-fiction", "-100123")
	if err != nil || !added {
		t.Fatalf("Subscribe = %v, %v; want true, nil", added, err)
	}
	time.Sleep(2 * time.Millisecond)
	if added, err = st.Subscribe(ctx, " hardcover-fiction ", "-100123"); err != nil || added {
		t.Fatalf("duplicate Subscribe = %v, %v; want false, nil", added, err)
	}
	if _, err := st.Subscribe(ctx, "funny", "42:7"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := st.Subscribe(ctx, "funny", "-100123"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := st.Subscribe(ctx, "", "1"); !errors.Is(err, ErrInvalidSubscription) {
		t.Fatalf("blank category err = %v, want ErrInvalidSubscription", err)
	}

	subs, err := st.Subscriptions(ctx)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	want := []Subscription{
		{Category: "hardcover-fiction", Destination: "-100123"},
		{Category: "funny", Destination: "42:7"},
		{Category: "funny", Destination: "-100123"},
	}
	if len(subs) != len(want) {
		t.Fatalf("got %d subscriptions, want %d: %+v", len(subs), len(want), subs)
	}
	for i := range want {
		if subs[i].Category != want[i].Category || subs[i].Destination != want[i].Destination {
			t.Fatalf("subs[%d] = %+v, want %+v", i, subs[i], want[i])
		}
		if subs[i].CreatedAt.IsZero() {
			t.Fatalf("subs[%d] has zero CreatedAt", i)
		}
	}

	removed, err := st.Unsubscribe(ctx, "funny", "42:7")
	if err != nil || !removed {
		t.Fatalf("Unsubscribe = %v, %v; want true, nil", removed, err)
	}
	if removed, err = st.Unsubscribe(ctx, "funny", "42:7"); err != nil || removed {
		t.Fatalf("second Unsubscribe = %v, %v; want false, nil", removed, err)
	}
	subs, _ = st.Subscriptions(ctx)
	if len(subs) != 2 {
		t.Fatalf("after unsubscribe got %+v", subs)
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		if _, err := Open(context.Background(), Config{Driver: d}, logx.Nop()); !errors.Is(err, ErrDisabled) {
			t.Fatalf("driver %q err = %v, want ErrDisabled", d, err)
		}
	}
	if _, err := Open(context.Background(), Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, Config{Driver: "file", Path: filepath.Join(t.TempDir(), "subs.json")})
	testStoreContract(t, st)
}

func TestFileStoreReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "subs.json")
	ctx := context.Background()

	st, err := Open(ctx, Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, _ = st.Subscribe(ctx, "funny", "1")
	_, _ = st.Subscribe(ctx, "funny", "2")
	_, _ = st.Unsubscribe(ctx, "funny", "1")
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := st.Subscriptions(ctx); !errors.Is(err, ErrDisabled) {
		t.Fatalf("closed store err = %v, want ErrDisabled", err)
	}

	// a torn write left at the end of the journal is ignored on replay
	journal := filepath.Join(filepath.Dir(path), "subs.subs.journal.jsonl")
	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	_, _ = f.WriteString(`{"op":"add","category":"fun`)
	_ = f.Close()

	st = openTestStore(t, Config{Driver: "file", Path: path})
	subs, err := st.Subscriptions(ctx)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].Destination != "2" {
		t.Fatalf("after reopen got %+v", subs)
	}
}

func TestFileStoreSeesOtherWriters(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "subs.json")
	ctx := context.Background()
	daemon := openTestStore(t, Config{Driver: "file", Path: path})
	cli := openTestStore(t, Config{Driver: "file", Path: path})

	count := func(st Store) int {
		t.Helper()
		subs, err := st.Subscriptions(ctx)
		if err != nil {
			t.Fatalf("Subscriptions: %v", err)
		}
		return len(subs)
	}

	if added, err := cli.Subscribe(ctx, "hardcover-fiction", "-1001"); err != nil || !added {
		t.Fatalf("Subscribe = %v, %v", added, err)
	}
	if n := count(daemon); n != 1 {
		t.Fatalf("daemon sees %d subscriptions after another writer added one, want 1", n)
	}

	// a write from the daemon must not clobber the other writer's entry
	if added, err := daemon.Subscribe(ctx, "funny", "42"); err != nil || !added {
		t.Fatalf("Subscribe = %v, %v", added, err)
	}
	if n := count(cli); n != 2 {
		t.Fatalf("cli sees %d subscriptions, want 2", n)
	}

	if removed, err := cli.Unsubscribe(ctx, "hardcover-fiction", "-1001"); err != nil || !removed {
		t.Fatalf("Unsubscribe = %v, %v", removed, err)
	}
	if n := count(daemon); n != 1 {
		t.Fatalf("daemon sees %d subscriptions after removal, want 1", n)
	}

	// a third opener compacts on open; the others reload from the new snapshot
	third := openTestStore(t, Config{Driver: "file", Path: path})
	if n := count(third); n != 1 {
		t.Fatalf("third opener sees %d, want 1", n)
	}
	if n := count(daemon); n != 1 {
		t.Fatalf("daemon after compaction sees %d, want 1", n)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "subs.db"), BusyTimeout: time.Second})
	testStoreContract(t, st)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SAGE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SAGE_TEST_PG_DSN not set")
	}
	st := openTestStore(t, Config{Driver: "postgres", DSN: dsn})
	ps := st.(*postgresStore)
	if _, err := ps.db.Exec(context.Background(), "TRUNCATE subscriptions"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	testStoreContract(t, st)
}

func TestRedactDSN(t *testing.T) {
	t.Parallel()
	got := redactDSN("postgres://sage:hunter2@db:5432/sage?sslmode=disable")
	if got != "postgres://sage:***@db:5432/sage?sslmode=disable" {
		t.Fatalf("redactDSN = %q", got)
	}
	if got := redactDSN("host=db user=sage"); got != "host=db user=sage" {
		t.Fatalf("redactDSN kv = %q", got)
	}
}
