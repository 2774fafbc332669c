// Package s3 stores artifacts as objects in an S3 bucket, keyed by
// <prefix>/<path>/<name>. S3 object puts are already atomic, so readers
// never observe partial contents.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/threadline-ai/threadline/artifact"
	"github.com/threadline-ai/threadline/core"
)

// s3API is the minimal S3 interface required by Store. Defined here for
// testability.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store is a core.ArtifactStore over an S3 bucket.
type Store struct {
	api    s3API
	bucket string
	prefix string
}

var _ core.ArtifactStore = (*Store)(nil)

// New creates a Store. prefix may be empty; it scopes all keys under a
// common root in the bucket.
func New(api s3API, bucket, prefix string) (*Store, error) {
	if api == nil {
		return nil, errors.New("s3: api must not be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3: bucket must not be empty")
	}
	return &Store{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Read implements core.ArtifactStore.
func (s *Store) Read(ctx context.Context, name, path string) (string, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path, name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", fmt.Errorf("artifact %s/%s: %w", path, name, artifact.ErrNotFound)
		}
		return "", fmt.Errorf("s3: get %s/%s: %w", path, name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("s3: read body %s/%s: %w", path, name, err)
	}
	return string(data), nil
}

// Write implements core.ArtifactStore.
func (s *Store) Write(ctx context.Context, contents, name, path string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path, name)),
		Body:        bytes.NewReader([]byte(contents)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s/%s: %w", path, name, err)
	}
	return nil
}

// List implements core.ArtifactStore. It returns artifact names directly
// under path, sorted; deeper keys are skipped.
func (s *Store) List(ctx context.Context, path string) ([]string, error) {
	prefix := s.key(path, "")
	names := []string{}
	var token *string
	for {
		out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: list %s: %w", path, err)
		}
		for _, obj := range out.Contents {
			rest := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if rest == "" || strings.Contains(rest, "/") {
				continue
			}
			names = append(names, rest)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) key(path, name string) string {
	parts := make([]string, 0, 3)
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	if p := strings.Trim(path, "/"); p != "" {
		parts = append(parts, p)
	}
	joined := strings.Join(parts, "/") + "/"
	if name == "" {
		return joined
	}
	return joined + name
}
