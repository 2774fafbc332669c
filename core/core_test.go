package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSortMessages_TimestampThenSeq(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", Timestamp: base.Add(time.Second), Seq: 1},
		{ID: "b", Timestamp: base, Seq: 2},
		{ID: "a", Timestamp: base, Seq: 1},
	}

	SortMessages(msgs)

	got := []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestTopicList_UnmarshalStringAndArray(t *testing.T) {
	var fromString TopicList
	if err := json.Unmarshal([]byte(`"bikes"`), &fromString); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if len(fromString) != 1 || fromString[0] != "bikes" {
		t.Fatalf("unexpected topics from string: %#v", fromString)
	}

	var fromArray TopicList
	if err := json.Unmarshal([]byte(`["bikes","stores"]`), &fromArray); err != nil {
		t.Fatalf("array form: %v", err)
	}
	if len(fromArray) != 2 || fromArray[1] != "stores" {
		t.Fatalf("unexpected topics from array: %#v", fromArray)
	}

	var fromNull TopicList
	if err := json.Unmarshal([]byte(`null`), &fromNull); err != nil {
		t.Fatalf("null form: %v", err)
	}
	if fromNull != nil {
		t.Fatalf("expected nil topics, got %#v", fromNull)
	}

	var bad TopicList
	if err := json.Unmarshal([]byte(`42`), &bad); err == nil {
		t.Fatal("expected error for numeric topic")
	}
}

func TestTopicList_MarshalRoundTrip(t *testing.T) {
	single, _ := json.Marshal(TopicList{"bikes"})
	if string(single) != `"bikes"` {
		t.Fatalf("single topic should marshal as string, got %s", single)
	}
	many, _ := json.Marshal(TopicList{"a", "b"})
	if string(many) != `["a","b"]` {
		t.Fatalf("multiple topics should marshal as array, got %s", many)
	}
}

func TestMemoryContext_RenderAndPlaceholder(t *testing.T) {
	empty := MemoryContext{}
	if !empty.IsEmpty() {
		t.Fatal("expected empty context")
	}
	if empty.Render() != NoPriorContext {
		t.Fatalf("empty context should render placeholder, got %q", empty.Render())
	}

	ctx := MemoryContext{
		Summary: "Customer asked about the Sydney store.",
		Messages: []Message{
			{Role: RoleAgent, Content: "The Sydney store opens at 9am."},
		},
	}
	rendered := ctx.Render()
	if rendered == NoPriorContext {
		t.Fatal("context with history must not render the placeholder")
	}
	if !strings.Contains(rendered, "Sydney store") || !strings.Contains(rendered, "agent:") {
		t.Fatalf("unexpected rendering: %q", rendered)
	}
}

func TestNewMessage_Defaults(t *testing.T) {
	m := NewMessage("t1", RoleUser, "hello", 3)
	if m.ID == "" {
		t.Fatal("expected generated id")
	}
	if m.Timestamp.Location() != time.UTC {
		t.Fatal("expected UTC timestamp")
	}
	if m.Seq != 0 {
		t.Fatal("seq assignment belongs to the store")
	}
}

func TestNewMemorySummary_WordCount(t *testing.T) {
	s := NewMemorySummary("t1", "three  word   summary")
	if s.WordCount != 3 {
		t.Fatalf("expected 3 words, got %d", s.WordCount)
	}
}

func TestErrorTaxonomy_WrappingAndMessages(t *testing.T) {
	cause := errors.New("boom")

	var pe error = &ProviderError{Agent: "analyst", Retryable: true, Err: cause}
	if !errors.Is(pe, cause) {
		t.Fatal("ProviderError must unwrap to its cause")
	}

	var se error = &StorageError{Op: "append_message", Err: cause}
	if !errors.Is(se, cause) {
		t.Fatal("StorageError must unwrap to its cause")
	}

	uw := &UnknownWorkflowError{Name: "nope", Known: []string{"classification-agent"}}
	if !strings.Contains(uw.Error(), "classification-agent") {
		t.Fatalf("unknown workflow error must list valid names: %q", uw.Error())
	}

	ce := &ConfigurationError{Missing: []string{"models.api_key", "storage.table"}}
	if !strings.Contains(ce.Error(), "models.api_key") {
		t.Fatalf("configuration error must name missing keys: %q", ce.Error())
	}
}
