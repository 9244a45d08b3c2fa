package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/ecoscan/internal/scan"
)

const (
	// Key is the fixed name the history snapshot is stored under
	Key = "scan-history"

	// DefaultCap is the retention limit used when Options.Cap is negative
	DefaultCap = 500
)

// ErrClosed is returned by Record after Close
var ErrClosed = errors.New("history store closed")

// ScanEntry is one recorded scan
type ScanEntry struct {
	ID         string        `json:"id"`
	RecordedAt time.Time     `json:"recorded_at"`
	Response   scan.Response `json:"response"`
}

// Options configure a Store
type Options struct {
	// Cap is the maximum number of entries kept; 0 keeps everything and a
	// negative value selects DefaultCap.
	Cap   int
	Now   func() time.Time
	NewID func() string
}

// Store is the newest-first list of past scans. All mutations go through a
// single writer goroutine so each read-modify-write of the snapshot is applied
// in order.
type Store struct {
	storage Storage
	cap     int
	now     func() time.Time
	newID   func() string

	mu      sync.RWMutex
	entries []ScanEntry

	writes    chan writeRequest
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type writeRequest struct {
	response scan.Response
	reply    chan writeResult
}

type writeResult struct {
	entry ScanEntry
	err   error
}

// Open loads the persisted snapshot and starts the writer. A missing or
// unreadable snapshot yields an empty history; it is never fatal.
func Open(storage Storage, opts Options) *Store {
	if opts.Cap < 0 {
		opts.Cap = DefaultCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}

	s := &Store{
		storage: storage,
		cap:     opts.Cap,
		now:     opts.Now,
		newID:   opts.NewID,
		writes:  make(chan writeRequest),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.entries = s.load()

	go s.run()
	return s
}

func (s *Store) load() []ScanEntry {
	data, err := s.storage.Load(Key)
	if errors.Is(err, ErrNotFound) {
		slog.Info("No scan history found, starting empty")
		return []ScanEntry{}
	}
	if err != nil {
		slog.Warn("Failed to load scan history, starting empty", "error", &PersistenceError{Op: "load", Err: err})
		return []ScanEntry{}
	}

	entries, err := s.decode(data)
	if err != nil {
		slog.Warn("Discarding unreadable scan history", "error", err)
		return []ScanEntry{}
	}
	if s.cap > 0 && len(entries) > s.cap {
		slog.Info("Trimming scan history to cap", "entries", len(entries), "cap", s.cap)
		entries = entries[:s.cap]
	}
	slog.Info("Loaded scan history", "entries", len(entries))
	return entries
}

// decode reads the stored snapshot. Elements without a "response" member are
// bare responses written by older versions and are wrapped in a new entry;
// elements that fail to decode are dropped individually.
func (s *Store) decode(data []byte) ([]ScanEntry, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling history: %w", err)
	}

	entries := make([]ScanEntry, 0, len(raw))
	for i, item := range raw {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			slog.Warn("Dropping history element", "index", i, "error", "null element")
			continue
		}

		var shape struct {
			Response json.RawMessage `json:"response"`
		}
		if err := json.Unmarshal(item, &shape); err != nil {
			slog.Warn("Dropping history element", "index", i, "error", err)
			continue
		}

		if shape.Response == nil {
			var resp scan.Response
			if err := json.Unmarshal(item, &resp); err != nil {
				slog.Warn("Dropping history element", "index", i, "error", err)
				continue
			}
			entries = append(entries, ScanEntry{ID: s.newID(), Response: resp})
			continue
		}

		var entry ScanEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			slog.Warn("Dropping history element", "index", i, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) run() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.writes:
			req.reply <- s.apply(req.response)
		case <-s.done:
			return
		}
	}
}

// apply runs on the writer goroutine only
func (s *Store) apply(resp scan.Response) writeResult {
	entry := ScanEntry{
		ID:         s.newID(),
		RecordedAt: s.now().UTC().Round(0),
		Response:   resp,
	}

	s.mu.Lock()
	next := make([]ScanEntry, 0, len(s.entries)+1)
	next = append(next, entry)
	next = append(next, s.entries...)
	if s.cap > 0 && len(next) > s.cap {
		next = next[:s.cap]
	}
	s.entries = next
	s.mu.Unlock()

	data, err := json.Marshal(next)
	if err != nil {
		return writeResult{entry: entry, err: &PersistenceError{Op: "encode", Err: err}}
	}
	if err := s.storage.Save(Key, data); err != nil {
		return writeResult{entry: entry, err: &PersistenceError{Op: "save", Err: err}}
	}
	return writeResult{entry: entry}
}

// Record prepends resp and persists the full history. When persisting fails
// the in-memory history still holds the new entry and a *PersistenceError is
// returned.
func (s *Store) Record(ctx context.Context, resp scan.Response) (ScanEntry, error) {
	req := writeRequest{response: resp, reply: make(chan writeResult, 1)}

	select {
	case s.writes <- req:
	case <-s.done:
		return ScanEntry{}, ErrClosed
	case <-ctx.Done():
		return ScanEntry{}, ctx.Err()
	}

	result := <-req.reply
	if result.err != nil {
		slog.Warn("Scan history not persisted", "entry", result.entry.ID, "error", result.err)
	}
	return result.entry, result.err
}

// Entries returns a newest-first copy of the history
func (s *Store) Entries() []ScanEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScanEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the writer. The underlying storage is left open for its owner
// to close.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
	return nil
}
