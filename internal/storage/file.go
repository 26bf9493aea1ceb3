package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "calwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.kv.snapshot.json     (periodic snapshot)
//   - <prefix>.kv.journal.jsonl     (append-only journal)
//   - <prefix>.marks.snapshot.json
//   - <prefix>.marks.journal.jsonl
//
// Journals are periodically compacted into their snapshots.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	kvSnapshotPath string
	kvJournalFile  *os.File
	kv             map[string]string
	kvWrites       int

	markSnapshotPath string
	markJournalFile  *os.File
	marks            map[string]markState
	markWrites       int
}

type kvRecord struct {
	Op    string `json:"op"` // "put" | "del"
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

type markRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Until int64  `json:"until"` // unix milli
}

type markState struct {
	Value string `json:"value"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	kvSnapPath := prefix + ".kv.snapshot.json"
	kvJournalPath := prefix + ".kv.journal.jsonl"
	markSnapPath := prefix + ".marks.snapshot.json"
	markJournalPath := prefix + ".marks.journal.jsonl"

	kv := map[string]string{}
	_ = loadKVSnapshot(kvSnapPath, kv)
	_ = replayKVJournal(kvJournalPath, kv)

	marks := map[string]markState{}
	_ = loadMarkSnapshot(markSnapPath, marks)
	_ = replayMarkJournal(markJournalPath, marks)
	pruneExpiredMarks(marks)

	kj, err := os.OpenFile(kvJournalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	mj, err := os.OpenFile(markJournalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = kj.Close()
		return nil, err
	}

	return &fileStore{
		log:              log,
		kvSnapshotPath:   kvSnapPath,
		kvJournalFile:    kj,
		kv:               kv,
		markSnapshotPath: markSnapPath,
		markJournalFile:  mj,
		marks:            marks,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.kvJournalFile != nil {
		err1 = s.kvJournalFile.Close()
		s.kvJournalFile = nil
	}
	if s.markJournalFile != nil {
		err2 = s.markJournalFile.Close()
		s.markJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) Put(ctx context.Context, key, value string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kvJournalFile == nil {
		return errors.New("kv journal closed")
	}
	if s.kv == nil {
		s.kv = map[string]string{}
	}
	s.kv[key] = value
	return s.appendKVLocked(kvRecord{Op: "put", Key: key, Value: value})
}

func (s *fileStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kvJournalFile == nil {
		return errors.New("kv journal closed")
	}
	if _, ok := s.kv[key]; !ok {
		return nil
	}
	delete(s.kv, key)
	return s.appendKVLocked(kvRecord{Op: "del", Key: key})
}

func (s *fileStore) List(ctx context.Context, prefix string) (map[string]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for k, v := range s.kv {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (s *fileStore) appendKVLocked(r kvRecord) error {
	enc := json.NewEncoder(s.kvJournalFile)
	if err := enc.Encode(r); err != nil {
		return err
	}
	s.kvWrites++
	if s.kvWrites%1000 == 0 {
		if err := s.compactKVLocked(); err != nil {
			s.log.Debug("kv compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) PutMark(ctx context.Context, key, value string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markJournalFile == nil {
		return errors.New("mark journal closed")
	}
	if s.marks == nil {
		s.marks = map[string]markState{}
	}
	s.marks[key] = markState{Value: value, Until: ms}

	enc := json.NewEncoder(s.markJournalFile)
	if err := enc.Encode(markRecord{Key: key, Value: value, Until: ms}); err != nil {
		return err
	}
	s.markWrites++
	if s.markWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactMarksLocked(); err != nil {
			s.log.Debug("mark compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) GetMark(ctx context.Context, key string) (string, time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return "", time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.marks[key]
	if !ok {
		return "", time.Time{}, false, nil
	}
	return st.Value, time.UnixMilli(st.Until), true, nil
}

func (s *fileStore) compactKVLocked() error {
	if err := writeSnapshot(s.kvSnapshotPath, s.kv); err != nil {
		return err
	}
	if err := s.kvJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.kvJournalFile.Seek(0, 2)
	return err
}

func (s *fileStore) compactMarksLocked() error {
	if s.marks == nil {
		return nil
	}
	pruneExpiredMarks(s.marks)
	if err := writeSnapshot(s.markSnapshotPath, s.marks); err != nil {
		return err
	}
	if err := s.markJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.markJournalFile.Seek(0, 2)
	return err
}

func writeSnapshot(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadKVSnapshot(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayKVJournal(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r kvRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		switch r.Op {
		case "put":
			out[r.Key] = r.Value
		case "del":
			delete(out, r.Key)
		}
	}
	return sc.Err()
}

func loadMarkSnapshot(path string, out map[string]markState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]markState
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayMarkJournal(path string, out map[string]markState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r markRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = markState{Value: r.Value, Until: r.Until}
	}
	return sc.Err()
}

func pruneExpiredMarks(m map[string]markState) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v.Until < now {
			delete(m, k)
		}
	}
}
