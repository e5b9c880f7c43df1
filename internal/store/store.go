// Package store persists merged scorecards in a local BoltDB file. One
// record holds the latest aggregate per login, one a bounded history of
// prior aggregates, plus freshness timestamps and small UI flags.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

const (
	scorecardBucket = "scorecards"
	historyBucket   = "history"
	metaBucket      = "meta"

	// DefaultHistoryLimit bounds the per-login history list.
	DefaultHistoryLimit = 10

	// DefaultSettleDelay is how long Save waits after committing before
	// reporting the write as observable. Readers polling the file see the
	// new value reliably once Save returns.
	DefaultSettleDelay = 100 * time.Millisecond
)

// Snapshot is one historical aggregate with the time it was saved.
type Snapshot struct {
	SavedAt time.Time            `json:"saved_at"`
	Card    *scorecard.Scorecard `json:"card"`
}

// Store is a BoltDB-backed scorecard store.
type Store struct {
	db           *bbolt.DB
	historyLimit int
	settle       time.Duration
	sleep        func(time.Duration)
	now          func() time.Time
}

type Option func(*Store)

// WithHistoryLimit overrides how many prior aggregates are kept per login.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithSettleDelay overrides the post-write settling delay. Zero disables it.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Store) {
		s.settle = d
	}
}

// Open opens (creating if needed) the store file at path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	s := &Store{
		db:           db,
		historyLimit: DefaultHistoryLimit,
		settle:       DefaultSettleDelay,
		sleep:        time.Sleep,
		now:          time.Now,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(s)
		}
	}

	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{scorecardBucket, historyBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// Save writes card as the latest aggregate for its login, stamps the
// freshness time, and pushes the previous aggregate onto the bounded
// history list. All three writes commit in one transaction; Save returns
// only after the settling delay, at which point readers may safely
// observe the new value.
func (s *Store) Save(ctx context.Context, card *scorecard.Scorecard) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not configured")
	}
	if card == nil {
		return fmt.Errorf("scorecard is required")
	}
	login := normalizeLogin(card.Login)
	if login == "" {
		return fmt.Errorf("scorecard login is required")
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal scorecard: %w", err)
	}
	now := s.now()

	err = s.db.Update(func(tx *bbolt.Tx) error {
		cards := tx.Bucket([]byte(scorecardBucket))
		history := tx.Bucket([]byte(historyBucket))
		meta := tx.Bucket([]byte(metaBucket))
		if cards == nil || history == nil || meta == nil {
			return fmt.Errorf("store buckets are missing")
		}

		if prev := cards.Get([]byte(login)); prev != nil {
			if err := pushHistory(history, login, prev, s.historyLimit); err != nil {
				return err
			}
		}
		if err := cards.Put([]byte(login), payload); err != nil {
			return fmt.Errorf("put scorecard: %w", err)
		}
		stamp, err := now.MarshalText()
		if err != nil {
			return fmt.Errorf("marshal freshness: %w", err)
		}
		if err := meta.Put(freshnessKey(login), stamp); err != nil {
			return fmt.Errorf("put freshness: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.settle > 0 {
		s.sleep(s.settle)
	}
	return nil
}

func pushHistory(bucket *bbolt.Bucket, login string, prevPayload []byte, limit int) error {
	var prev scorecard.Scorecard
	if err := json.Unmarshal(prevPayload, &prev); err != nil {
		// A corrupt prior record should not block the new write.
		return nil
	}

	var snapshots []Snapshot
	if raw := bucket.Get([]byte(login)); raw != nil {
		_ = json.Unmarshal(raw, &snapshots)
	}

	snapshots = append([]Snapshot{{SavedAt: prev.GeneratedAt, Card: &prev}}, snapshots...)
	if len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}

	payload, err := json.Marshal(snapshots)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := bucket.Put([]byte(login), payload); err != nil {
		return fmt.Errorf("put history: %w", err)
	}
	return nil
}

// Load fetches the latest aggregate for login.
func (s *Store) Load(ctx context.Context, login string) (*scorecard.Scorecard, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not configured")
	}
	login = normalizeLogin(login)
	if login == "" {
		return nil, fmt.Errorf("login is required")
	}

	var card scorecard.Scorecard
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(scorecardBucket))
		if bucket == nil {
			return fmt.Errorf("scorecard bucket is missing")
		}
		payload := bucket.Get([]byte(login))
		if payload == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(payload, &card); err != nil {
			return fmt.Errorf("unmarshal scorecard: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// History fetches the bounded list of prior aggregates for login, newest
// first. A login with no history yields an empty list, not ErrNotFound.
func (s *Store) History(ctx context.Context, login string) ([]Snapshot, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not configured")
	}
	login = normalizeLogin(login)
	if login == "" {
		return nil, fmt.Errorf("login is required")
	}

	var snapshots []Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("history bucket is missing")
		}
		raw := bucket.Get([]byte(login))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &snapshots); err != nil {
			return fmt.Errorf("unmarshal history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// Freshness reports when the latest aggregate for login was saved.
func (s *Store) Freshness(ctx context.Context, login string) (time.Time, error) {
	if err := ctxErr(ctx); err != nil {
		return time.Time{}, err
	}
	if s == nil || s.db == nil {
		return time.Time{}, fmt.Errorf("store is not configured")
	}
	login = normalizeLogin(login)
	if login == "" {
		return time.Time{}, fmt.Errorf("login is required")
	}

	var at time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		if bucket == nil {
			return fmt.Errorf("meta bucket is missing")
		}
		raw := bucket.Get(freshnessKey(login))
		if raw == nil {
			return ErrNotFound
		}
		if err := at.UnmarshalText(raw); err != nil {
			return fmt.Errorf("unmarshal freshness: %w", err)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// SetDismissed records whether the named notice has been dismissed.
func (s *Store) SetDismissed(ctx context.Context, name string, dismissed bool) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not configured")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("flag name is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		if bucket == nil {
			return fmt.Errorf("meta bucket is missing")
		}
		if !dismissed {
			return bucket.Delete(dismissedKey(name))
		}
		return bucket.Put(dismissedKey(name), []byte("1"))
	})
}

// Dismissed reports whether the named notice has been dismissed.
func (s *Store) Dismissed(ctx context.Context, name string) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	if s == nil || s.db == nil {
		return false, fmt.Errorf("store is not configured")
	}
	if strings.TrimSpace(name) == "" {
		return false, fmt.Errorf("flag name is required")
	}

	var dismissed bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		if bucket == nil {
			return fmt.Errorf("meta bucket is missing")
		}
		dismissed = bucket.Get(dismissedKey(name)) != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return dismissed, nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("nil context")
	}
	return ctx.Err()
}

func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

func freshnessKey(login string) []byte {
	return []byte("freshness:" + login)
}

func dismissedKey(name string) []byte {
	return []byte("dismissed:" + name)
}
