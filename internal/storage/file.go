package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "sage/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.subs.snapshot.json (periodic snapshot)
//   - <prefix>.subs.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot on open and every compactEvery
// writes. Other processes (the CLI next to a running daemon) may write the
// same files: every call reloads from disk when either file changed since
// the last load. There is no file lock; a compaction racing another
// process's append can drop that append.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalPath  string
	journal      *os.File
	subs         map[subKey]time.Time

	seenSnapshot fileStamp
	seenJournal  fileStamp

	writes       int
	compactEvery int
}

type subKey struct {
	category    string
	destination string
}

// fileStamp identifies a file version by size and mtime.
type fileStamp struct {
	size int64
	mod  time.Time
}

func stampOf(path string) fileStamp {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{size: fi.Size(), mod: fi.ModTime()}
}

func (a fileStamp) equal(b fileStamp) bool { return a.size == b.size && a.mod.Equal(b.mod) }

type journalRecord struct {
	Op          string    `json:"op"` // "add" | "remove"
	Category    string    `json:"category"`
	Destination string    `json:"destination"`
	At          time.Time `json:"at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".subs.snapshot.json",
		journalPath:  prefix + ".subs.journal.jsonl",
		subs:         map[subKey]time.Time{},
		compactEvery: 500,
	}
	if err := s.reload(); err != nil {
		return nil, err
	}

	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf

	s.mu.Lock()
	err = s.compactLocked()
	s.mu.Unlock()
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Subscriptions(ctx context.Context) ([]Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrDisabled
	}
	if err := s.syncLocked(); err != nil {
		return nil, err
	}
	return s.listLocked(), nil
}

func (s *fileStore) Subscribe(ctx context.Context, category, destination string) (bool, error) {
	return s.write(ctx, "add", category, destination)
}

func (s *fileStore) Unsubscribe(ctx context.Context, category, destination string) (bool, error) {
	return s.write(ctx, "remove", category, destination)
}

func (s *fileStore) write(ctx context.Context, op, category, destination string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c, d, err := normalize(category, destination)
	if err != nil {
		return false, err
	}
	key := subKey{category: c, destination: d}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return false, ErrDisabled
	}
	if err := s.syncLocked(); err != nil {
		return false, err
	}
	_, exists := s.subs[key]
	if (op == "add" && exists) || (op == "remove" && !exists) {
		return false, nil
	}

	rec := journalRecord{Op: op, Category: c, Destination: d, At: time.Now().UTC()}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return false, err
	}
	s.apply(rec)

	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("subscription journal compact failed", logx.Err(err))
		}
	}
	return true, nil
}

func (s *fileStore) apply(r journalRecord) {
	key := subKey{category: r.Category, destination: r.Destination}
	switch r.Op {
	case "add":
		if _, ok := s.subs[key]; !ok {
			s.subs[key] = r.At
		}
	case "remove":
		delete(s.subs, key)
	}
}

func (s *fileStore) listLocked() []Subscription {
	out := make([]Subscription, 0, len(s.subs))
	for k, at := range s.subs {
		out = append(out, Subscription{Category: k.category, Destination: k.destination, CreatedAt: at})
	}
	sortSubscriptions(out)
	return out
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.listLocked()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

// syncLocked reloads when another writer touched the files.
func (s *fileStore) syncLocked() error {
	if stampOf(s.snapshotPath).equal(s.seenSnapshot) && stampOf(s.journalPath).equal(s.seenJournal) {
		return nil
	}
	return s.reload()
}

// reload rebuilds the in-memory set from snapshot plus journal. Stamps are
// taken before reading so a write landing mid-read triggers another reload.
func (s *fileStore) reload() error {
	snap, jr := stampOf(s.snapshotPath), stampOf(s.journalPath)
	s.subs = map[subKey]time.Time{}
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := s.replayJournal(s.journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.seenSnapshot, s.seenJournal = snap, jr
	return nil
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var subs []Subscription
	if err := json.NewDecoder(f).Decode(&subs); err != nil {
		return err
	}
	for _, sub := range subs {
		s.subs[subKey{category: sub.Category, destination: sub.Destination}] = sub.CreatedAt
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		// a torn trailing line from a crash is skipped
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Category == "" || r.Destination == "" {
			continue
		}
		s.apply(r)
	}
	return sc.Err()
}

func sortSubscriptions(subs []Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		if subs[i].Category != subs[j].Category {
			return subs[i].Category < subs[j].Category
		}
		return subs[i].Destination < subs[j].Destination
	})
}
