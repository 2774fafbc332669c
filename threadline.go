// Package threadline provides a high-level façade over the conversation
// orchestration core (workflows, patterns, memory and stores). Most
// applications interact with this package by:
//  1. Creating a Threadline via New() from a config.Config (defaults are safe
//     for local development: in-process storage, no artifacts)
//  2. Registering one or more conversation workflows with their pattern
//     factories
//  3. Dispatching turns with Chat()
//
// The façade delegates turn execution to orchestrator.Orchestrator while
// handling backend wiring: the storage and artifact sum types in the config
// select between in-process, bbolt, DynamoDB, filesystem and S3 backends,
// and ${ssm:/path} workflow settings are resolved through AWS Parameter
// Store at startup.
package threadline

import (
	"context"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/threadline-ai/threadline/artifact"
	artifacts3 "github.com/threadline-ai/threadline/artifact/s3"
	"github.com/threadline-ai/threadline/config"
	"github.com/threadline-ai/threadline/core"
	"github.com/threadline-ai/threadline/history"
	"github.com/threadline-ai/threadline/history/bolt"
	"github.com/threadline-ai/threadline/history/dynamo"
	"github.com/threadline-ai/threadline/logging"
	"github.com/threadline-ai/threadline/memory"
	"github.com/threadline-ai/threadline/orchestrator"
	"github.com/threadline-ai/threadline/workflow"
)

// Options configures a Threadline instance.
type Options struct {
	// Config drives backend selection, limits and workflow settings.
	Config config.Config

	// Store overrides the conversation store selected by Config.Storage.
	Store core.ConversationStore

	// Artifacts overrides the artifact store selected by Config.Artifacts.
	Artifacts core.ArtifactStore

	// Secrets overrides the ${ssm:/path} resolver. Defaults to AWS Parameter
	// Store when any workflow setting carries a reference.
	Secrets config.SecretGetter

	// Logger receives structured diagnostics. Defaults to a JSON logger.
	Logger *logging.ChatLogger
}

// Threadline is the high-level façade aggregating the orchestrator and its
// collaborators.
type Threadline struct {
	cfg       config.Config
	registry  *workflow.Registry
	store     core.ConversationStore
	artifacts core.ArtifactStore
	orch      *orchestrator.Orchestrator
	closers   []io.Closer
}

// New creates a Threadline instance with optional overrides. Any unset
// collaborator is built from the config; the zero config selects in-process
// storage and no artifacts.
func New(ctx context.Context, optFns ...func(o *Options)) (*Threadline, error) {
	opts := Options{Config: config.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg, err := resolveSecrets(ctx, cfg, opts.Secrets)
	if err != nil {
		return nil, err
	}

	t := &Threadline{cfg: cfg, registry: workflow.NewRegistry()}

	t.store = opts.Store
	if t.store == nil {
		if t.store, err = t.openStore(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}

	t.artifacts = opts.Artifacts
	if t.artifacts == nil {
		if t.artifacts, err = openArtifacts(ctx, cfg.Artifacts); err != nil {
			t.Close()
			return nil, err
		}
	}

	mem := memory.NewManager(t.store, cfg.MaxMemoryWords)
	t.orch = orchestrator.New(t.registry, t.store, mem, cfg, opts.Logger)
	return t, nil
}

// RegisterWorkflow binds a conversation flow name (and its aliases) to a
// pattern factory.
func (t *Threadline) RegisterWorkflow(desc workflow.Descriptor, factory workflow.Factory) {
	t.registry.Register(desc, factory)
}

// Chat dispatches one conversation turn.
func (t *Threadline) Chat(ctx context.Context, req core.ChatRequest) (core.ChatResponse, error) {
	return t.orch.Dispatch(ctx, req)
}

// ThreadMessages returns the last limit messages of a thread in
// chronological order. limit <= 0 returns all of them.
func (t *Threadline) ThreadMessages(ctx context.Context, threadID string, limit int) ([]core.Message, error) {
	return t.orch.ThreadMessages(ctx, threadID, limit)
}

// Diagnose reports configuration readiness for a registered flow without
// executing it.
func (t *Threadline) Diagnose(flow string) (workflow.Diagnosis, error) {
	return t.orch.Diagnose(flow)
}

// Workflows lists the registered workflow descriptors sorted by name.
func (t *Threadline) Workflows() []workflow.Descriptor { return t.registry.List() }

// Artifacts exposes the wired artifact store, or nil when artifacts are
// disabled.
func (t *Threadline) Artifacts() core.ArtifactStore { return t.artifacts }

// Store exposes the wired conversation store.
func (t *Threadline) Store() core.ConversationStore { return t.store }

// Close releases any backends holding external resources.
func (t *Threadline) Close() error {
	var firstErr error
	for _, c := range t.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Threadline) openStore(ctx context.Context, sc config.StorageConfig) (core.ConversationStore, error) {
	switch sc.Kind {
	case config.StorageMemory:
		return history.NewStore(), nil
	case config.StorageBolt:
		store, err := bolt.Open(sc.Bolt.Path)
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, store)
		return store, nil
	case config.StorageDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(sc.Dynamo.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return dynamo.New(dynamodb.NewFromConfig(awsCfg), sc.Dynamo.Table)
	default:
		return nil, fmt.Errorf("unsupported storage kind %q", sc.Kind)
	}
}

func openArtifacts(ctx context.Context, ac config.ArtifactConfig) (core.ArtifactStore, error) {
	var (
		store core.ArtifactStore
		err   error
	)
	switch ac.Kind {
	case config.ArtifactNone:
		return nil, nil
	case config.ArtifactFS:
		store, err = artifact.NewFS(ac.FS.Root)
	case config.ArtifactS3:
		cfg, loadErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(ac.S3.Region))
		if loadErr != nil {
			return nil, fmt.Errorf("load aws config: %w", loadErr)
		}
		store, err = artifacts3.New(awss3.NewFromConfig(cfg), ac.S3.Bucket, ac.S3.Prefix)
	default:
		return nil, fmt.Errorf("unsupported artifact kind %q", ac.Kind)
	}
	if err != nil {
		return nil, err
	}
	if ac.CacheBytes > 0 {
		return artifact.NewCached(store, ac.CacheBytes)
	}
	return store, nil
}

// resolveSecrets expands ${ssm:/path} workflow settings. The AWS client is
// only constructed when the config actually carries a reference and no
// custom getter was supplied.
func resolveSecrets(ctx context.Context, cfg config.Config, getter config.SecretGetter) (config.Config, error) {
	if !hasSecretRefs(cfg) {
		return cfg, nil
	}
	if getter == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return config.Config{}, fmt.Errorf("load aws config for secret resolution: %w", err)
		}
		ps, err := config.NewParamStore(ssm.NewFromConfig(awsCfg))
		if err != nil {
			return config.Config{}, err
		}
		getter = ps
	}
	return config.ResolveSecrets(ctx, cfg, getter)
}

func hasSecretRefs(cfg config.Config) bool {
	for _, wc := range cfg.Workflows {
		for _, v := range wc.Settings {
			if strings.HasPrefix(v, "${ssm:") {
				return true
			}
		}
	}
	return false
}
