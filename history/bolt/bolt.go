// Package bolt persists conversations in an embedded bbolt database. Each
// thread gets its own message bucket with lexically sortable keys, so the
// last-N chronological read is a short reverse cursor walk. Summaries live
// in a flat bucket keyed by thread id. CommitTurn runs the message append
// and the summary upsert inside a single write transaction.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/threadline-ai/threadline/core"
)

var (
	bucketMessages  = []byte("messages")
	bucketSummaries = []byte("summaries")
)

// Store is a core.ConversationStore backed by a bbolt file.
type Store struct {
	db *bbolt.DB
}

var _ core.ConversationStore = (*Store)(nil)

// Open opens (creating if absent) the database at path and prepares the
// top-level buckets. The file lock is single-writer; a second process
// holding it surfaces as ErrResourceExhausted after a brief bounded wait.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, &core.StorageError{Op: "bolt.open", Err: core.ErrResourceExhausted}
		}
		return nil, &core.StorageError{Op: "bolt.open", Err: err}
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketSummaries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, &core.StorageError{Op: "bolt.init", Err: err}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// AppendMessage implements core.HistoryStore.
func (s *Store) AppendMessage(ctx context.Context, msg core.Message) (string, error) {
	var id string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = appendMessage(tx, msg)
		return err
	})
	if err != nil {
		return "", &core.StorageError{Op: "bolt.append", Err: err}
	}
	return id, nil
}

// ThreadMessages implements core.HistoryStore. The reverse cursor walk
// collects the newest limit entries, then the slice is flipped back to
// chronological order before returning.
func (s *Store) ThreadMessages(ctx context.Context, threadID string, limit int) ([]core.Message, error) {
	msgs := []core.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages).Bucket([]byte(threadID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(msgs) == limit {
				break
			}
			var m core.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode message %q: %w", k, err)
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, &core.StorageError{Op: "bolt.read", Err: err}
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Summary implements core.SummaryStore.
func (s *Store) Summary(ctx context.Context, threadID string) (core.MemorySummary, error) {
	var sum core.MemorySummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSummaries).Get([]byte(threadID))
		if v == nil {
			return core.ErrNoSummary
		}
		return json.Unmarshal(v, &sum)
	})
	if errors.Is(err, core.ErrNoSummary) {
		return core.MemorySummary{}, core.ErrNoSummary
	}
	if err != nil {
		return core.MemorySummary{}, &core.StorageError{Op: "bolt.summary", Err: err}
	}
	return sum, nil
}

// PutSummary implements core.SummaryStore.
func (s *Store) PutSummary(ctx context.Context, summary core.MemorySummary) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putSummary(tx, summary)
	})
	if err != nil {
		return &core.StorageError{Op: "bolt.put_summary", Err: err}
	}
	return nil
}

// CommitTurn implements core.TurnCommitter. Both writes share one
// transaction, so a crash between them cannot leave a half-committed turn.
func (s *Store) CommitTurn(ctx context.Context, msg core.Message, summary core.MemorySummary) (string, error) {
	var id string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if id, err = appendMessage(tx, msg); err != nil {
			return err
		}
		return putSummary(tx, summary)
	})
	if err != nil {
		return "", &core.StorageError{Op: "bolt.commit_turn", Err: err}
	}
	return id, nil
}

func appendMessage(tx *bbolt.Tx, msg core.Message) (string, error) {
	b, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(msg.ThreadID))
	if err != nil {
		return "", err
	}
	seq, err := b.NextSequence()
	if err != nil {
		return "", err
	}
	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	msg.Seq = seq

	buf, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return msg.ID, b.Put(messageKey(msg), buf)
}

func putSummary(tx *bbolt.Tx, summary core.MemorySummary) error {
	buf, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSummaries).Put([]byte(summary.ThreadID), buf)
}

// messageKey builds a fixed-width key that sorts lexically in timestamp
// order, with the store sequence breaking same-nanosecond ties.
func messageKey(msg core.Message) []byte {
	return []byte(fmt.Sprintf("%020d#%012d", msg.Timestamp.UnixNano(), msg.Seq))
}
