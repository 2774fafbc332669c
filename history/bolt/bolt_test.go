package bolt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/threadline-ai/threadline/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := core.NewMessage("t1", core.RoleUser, "hello", 0)
	id, err := s.AppendMessage(ctx, msg)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == "" {
		t.Fatal("expected message id")
	}

	msgs, err := s.ThreadMessages(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[0].Role != core.RoleUser {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
	if msgs[0].Seq == 0 {
		t.Fatal("expected store-assigned seq")
	}
}

func TestLastNChronological(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 6; i++ {
		msg := core.NewMessage("t1", core.RoleUser, fmt.Sprintf("msg-%d", i), 0)
		msg.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
		if _, err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := s.ThreadMessages(ctx, "t1", 4)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	for i, want := range []string{"msg-2", "msg-3", "msg-4", "msg-5"} {
		if msgs[i].Content != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, msgs[i].Content)
		}
	}
}

func TestSameTimestampOrderedBySeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	for i := 0; i < 3; i++ {
		msg := core.NewMessage("t1", core.RoleUser, fmt.Sprintf("burst-%d", i), 0)
		msg.Timestamp = ts
		if _, err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := s.ThreadMessages(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, m := range msgs {
		want := fmt.Sprintf("burst-%d", i)
		if m.Content != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, m.Content)
		}
	}
}

func TestThreadsAreIsolated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendMessage(ctx, core.NewMessage("a", core.RoleUser, "for a", 0)); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if _, err := s.AppendMessage(ctx, core.NewMessage("b", core.RoleUser, "for b", 0)); err != nil {
		t.Fatalf("append b: %v", err)
	}

	msgs, err := s.ThreadMessages(ctx, "a", 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "for a" {
		t.Fatalf("thread a leaked: %+v", msgs)
	}
}

func TestSummaryLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Summary(ctx, "t1"); !errors.Is(err, core.ErrNoSummary) {
		t.Fatalf("expected ErrNoSummary, got %v", err)
	}

	first := core.NewMemorySummary("t1", "likes road bikes")
	if err := s.PutSummary(ctx, first); err != nil {
		t.Fatalf("put: %v", err)
	}
	second := core.NewMemorySummary("t1", "likes road bikes and lives in Sydney")
	if err := s.PutSummary(ctx, second); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := s.Summary(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != second.Text {
		t.Fatalf("expected latest summary, got %q", got.Text)
	}
}

func TestCommitTurnAtomicPair(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := core.NewMessage("t1", core.RoleAgent, "your order shipped", 0)
	sum := core.NewMemorySummary("t1", "asked about an order")
	id, err := s.CommitTurn(ctx, msg, sum)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	msgs, err := s.ThreadMessages(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("read messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != id {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	got, err := s.Summary(ctx, "t1")
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if got.Text != sum.Text {
		t.Fatalf("summary text %q != %q", got.Text, sum.Text)
	}
}

func TestOpenWhileHeldReportsExhausted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threads.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	start := time.Now()
	_, err = Open(path)
	if !errors.Is(err, core.ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}
	var storeErr *core.StorageError
	if !errors.As(err, &storeErr) || storeErr.Op != "bolt.open" {
		t.Fatalf("expected bolt.open storage error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("lock wait was not bounded: %v", elapsed)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "threads.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.CommitTurn(ctx, core.NewMessage("t1", core.RoleAgent, "persisted", 0), core.NewMemorySummary("t1", "durable")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	msgs, err := s2.ThreadMessages(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "persisted" {
		t.Fatalf("lost message after reopen: %+v", msgs)
	}
	if _, err := s2.Summary(ctx, "t1"); err != nil {
		t.Fatalf("lost summary after reopen: %v", err)
	}
}
