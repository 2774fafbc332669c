// Package dynamo persists conversations in a single DynamoDB table.
//
// Layout: PK = THREAD#<id>; messages under SK = MSG#<fixed-width ts>#<msgid>
// and the memory summary under SK = SUMMARY#. The fixed-width sort key keeps
// lexical order identical to chronological order, with the message id breaking
// same-nanosecond ties so keys stay unique across writers and restarts. The
// last-N read is a reverse Query flipped in place. CommitTurn uses
// TransactWriteItems so the message append and summary upsert land together
// or not at all.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/threadline-ai/threadline/core"
)

const (
	pkPrefix  = "THREAD#"
	skMsg     = "MSG#"
	skSummary = "SUMMARY#"
)

// dynamoAPI is the minimal DynamoDB interface required by Store. Defined
// here for testability.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store is a core.ConversationStore over a single DynamoDB table.
type Store struct {
	api       dynamoAPI
	tableName string
	seq       atomic.Uint64
}

var _ core.ConversationStore = (*Store)(nil)

// New creates a Store over an existing table.
func New(api dynamoAPI, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	s := &Store{api: api, tableName: tableName}
	// Seed from the clock so seq values stay monotonic across process
	// restarts and distinct between writers sharing a table.
	s.seq.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

func threadPK(threadID string) string {
	return pkPrefix + threadID
}

// msgSK builds a fixed-width sort key. RFC3339Nano trims trailing zeros and
// would break lexical ordering, so the timestamp is a zero-padded nanosecond
// count. The message id (a fixed-width UUID) breaks same-nanosecond ties;
// unlike a process-local counter it cannot collide across writers or after
// a restart.
func msgSK(ts time.Time, id string) string {
	return fmt.Sprintf("%s%020d#%s", skMsg, ts.UTC().UnixNano(), id)
}

// AppendMessage implements core.HistoryStore. The conditional put rejects
// sort-key collisions instead of silently overwriting.
func (s *Store) AppendMessage(ctx context.Context, msg core.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	msg.Seq = s.seq.Add(1)

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                messageItem(msg),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return "", &core.StorageError{Op: "dynamo.append", Err: err}
	}
	return msg.ID, nil
}

// ThreadMessages implements core.HistoryStore. Reads newest first so Limit
// favors the most recent context, then flips to chronological order.
func (s *Store) ThreadMessages(ctx context.Context, threadID string, limit int) ([]core.Message, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: threadPK(threadID)},
			":prefix": &types.AttributeValueMemberS{Value: skMsg},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, &core.StorageError{Op: "dynamo.read", Err: err}
	}

	msgs := make([]core.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, &core.StorageError{Op: "dynamo.read", Err: err}
		}
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Summary implements core.SummaryStore.
func (s *Store) Summary(ctx context.Context, threadID string) (core.MemorySummary, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: threadPK(threadID)},
			"SK": &types.AttributeValueMemberS{Value: skSummary},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return core.MemorySummary{}, &core.StorageError{Op: "dynamo.summary", Err: err}
	}
	if out == nil || len(out.Item) == 0 {
		return core.MemorySummary{}, core.ErrNoSummary
	}
	return itemToSummary(threadID, out.Item)
}

// PutSummary implements core.SummaryStore.
func (s *Store) PutSummary(ctx context.Context, summary core.MemorySummary) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      summaryItem(summary),
	})
	if err != nil {
		return &core.StorageError{Op: "dynamo.put_summary", Err: err}
	}
	return nil
}

// CommitTurn implements core.TurnCommitter via a write transaction.
func (s *Store) CommitTurn(ctx context.Context, msg core.Message, summary core.MemorySummary) (string, error) {
	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	msg.Seq = s.seq.Add(1)

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                messageItem(msg),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      summaryItem(summary),
				},
			},
		},
	})
	if err != nil {
		return "", &core.StorageError{Op: "dynamo.commit_turn", Err: err}
	}
	return msg.ID, nil
}

func messageItem(msg core.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: threadPK(msg.ThreadID)},
		"SK":         &types.AttributeValueMemberS{Value: msgSK(msg.Timestamp, msg.ID)},
		"messageId":  &types.AttributeValueMemberS{Value: msg.ID},
		"threadId":   &types.AttributeValueMemberS{Value: msg.ThreadID},
		"role":       &types.AttributeValueMemberS{Value: string(msg.Role)},
		"content":    &types.AttributeValueMemberS{Value: msg.Content},
		"timestamp":  &types.AttributeValueMemberS{Value: msg.Timestamp.UTC().Format(time.RFC3339Nano)},
		"seq":        &types.AttributeValueMemberN{Value: strconv.FormatUint(msg.Seq, 10)},
		"tokenCount": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(msg.TokenCount), 10)},
	}
}

func summaryItem(summary core.MemorySummary) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: threadPK(summary.ThreadID)},
		"SK":        &types.AttributeValueMemberS{Value: skSummary},
		"threadId":  &types.AttributeValueMemberS{Value: summary.ThreadID},
		"text":      &types.AttributeValueMemberS{Value: summary.Text},
		"wordCount": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(summary.WordCount), 10)},
	}
}

func itemToMessage(item map[string]types.AttributeValue) (core.Message, error) {
	id, err := strAttr(item, "messageId")
	if err != nil {
		return core.Message{}, err
	}
	threadID, err := strAttr(item, "threadId")
	if err != nil {
		return core.Message{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return core.Message{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return core.Message{}, err
	}
	tsRaw, err := strAttr(item, "timestamp")
	if err != nil {
		return core.Message{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return core.Message{}, fmt.Errorf("dynamo: parse timestamp: %w", err)
	}
	seq, err := intAttr(item, "seq")
	if err != nil {
		return core.Message{}, err
	}
	tokens, err := intAttr(item, "tokenCount")
	if err != nil {
		return core.Message{}, err
	}

	return core.Message{
		ID:         id,
		ThreadID:   threadID,
		Role:       core.Role(role),
		Content:    content,
		Timestamp:  ts,
		Seq:        uint64(seq),
		TokenCount: uint32(tokens),
	}, nil
}

func itemToSummary(threadID string, item map[string]types.AttributeValue) (core.MemorySummary, error) {
	text, err := strAttr(item, "text")
	if err != nil {
		return core.MemorySummary{}, &core.StorageError{Op: "dynamo.summary", Err: err}
	}
	words, err := intAttr(item, "wordCount")
	if err != nil {
		return core.MemorySummary{}, &core.StorageError{Op: "dynamo.summary", Err: err}
	}
	return core.MemorySummary{ThreadID: threadID, Text: text, WordCount: uint32(words)}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("dynamo: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamo: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("dynamo: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamo: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamo: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
