// Package config defines the explicit configuration value consumed by the
// orchestration core. The value is constructed once at startup (from a YAML
// file, environment, or code) and passed by injection into the orchestrator,
// the workflow registry and the store implementations; there is no process
// wide singleton. Storage and artifact backend selection is a sum type over
// the supported kinds, each carrying only the fields it needs, validated at
// startup rather than at first use.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/threadline-ai/threadline/core"
)

// Duration wraps time.Duration so YAML scalars like "30s" or "2m" parse
// directly. Bare integers are treated as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(dur)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration node: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StorageKind discriminates the conversation store backends.
type StorageKind string

const (
	// StorageMemory selects the in-process store (tests, demos).
	StorageMemory StorageKind = "memory"
	// StorageBolt selects the embedded single-writer bbolt store.
	StorageBolt StorageKind = "bolt"
	// StorageDynamo selects the DynamoDB document store.
	StorageDynamo StorageKind = "dynamodb"
)

// ArtifactKind discriminates the artifact store backends.
type ArtifactKind string

const (
	// ArtifactNone disables artifact storage; patterns fall back to their
	// inline default prompts.
	ArtifactNone ArtifactKind = "none"
	// ArtifactFS selects the local filesystem store.
	ArtifactFS ArtifactKind = "fs"
	// ArtifactS3 selects the S3 blob store.
	ArtifactS3 ArtifactKind = "s3"
)

// BoltConfig carries the embedded store's settings.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// DynamoConfig carries the DynamoDB store's settings. Credentials come from
// the ambient AWS config chain (environment, shared config, instance role).
type DynamoConfig struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
}

// StorageConfig is the backend selection sum type: Kind names the variant
// and exactly the matching field must be populated.
type StorageConfig struct {
	Kind   StorageKind   `yaml:"kind"`
	Bolt   *BoltConfig   `yaml:"bolt,omitempty"`
	Dynamo *DynamoConfig `yaml:"dynamodb,omitempty"`
}

// FSConfig carries the filesystem artifact store's settings.
type FSConfig struct {
	Root string `yaml:"root"`
}

// S3Config carries the S3 artifact store's settings.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// ArtifactConfig selects and configures the artifact backend. A positive
// CacheBytes enables the in-process read-through cache sized to that many
// bytes of artifact text.
type ArtifactConfig struct {
	Kind       ArtifactKind `yaml:"kind"`
	FS         *FSConfig    `yaml:"fs,omitempty"`
	S3         *S3Config    `yaml:"s3,omitempty"`
	CacheBytes int64        `yaml:"cache_bytes"`
}

// WorkflowConfig holds the settings supplied for one registered workflow.
// Keys are matched against the workflow descriptor's RequiredConfig by the
// readiness diagnostics. Values may use the ${ssm:/path} indirection
// resolved by ResolveSecrets.
type WorkflowConfig struct {
	Settings map[string]string `yaml:"settings"`
}

// RetryConfig bounds the retry/backoff behavior for transient operations.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
}

// Config is the full configuration surface consumed by the core.
type Config struct {
	Workflows map[string]WorkflowConfig `yaml:"workflows"`
	Storage   StorageConfig             `yaml:"storage"`
	Artifacts ArtifactConfig            `yaml:"artifacts"`
	// TurnTimeout is the per-turn deadline.
	TurnTimeout Duration `yaml:"turn_timeout"`
	// HistoryLimit is how many recent messages feed context derivation.
	HistoryLimit int `yaml:"history_limit"`
	// MaxMemoryWords bounds the thread memory summary.
	MaxMemoryWords int `yaml:"max_memory_words"`
	// ThreadBusyWait bounds how long a second request for a busy thread
	// queues before failing. Zero fails fast.
	ThreadBusyWait Duration    `yaml:"thread_busy_wait"`
	Retry          RetryConfig `yaml:"retry"`
}

// Default returns a configuration safe for local development: in-process
// storage, no artifacts, moderate limits.
func Default() Config {
	return Config{
		Workflows:      map[string]WorkflowConfig{},
		Storage:        StorageConfig{Kind: StorageMemory},
		Artifacts:      ArtifactConfig{Kind: ArtifactNone},
		TurnTimeout:    Duration(2 * time.Minute),
		HistoryLimit:   10,
		MaxMemoryWords: 150,
		ThreadBusyWait: 0,
		Retry:          RetryConfig{MaxAttempts: 3, BaseDelay: Duration(500 * time.Millisecond)},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the backend sum types and limits. Missing settings are
// reported together as a *core.ConfigurationError so callers can self-correct
// in one pass.
func (c Config) Validate() error {
	var missing []string

	switch c.Storage.Kind {
	case StorageMemory:
	case StorageBolt:
		if c.Storage.Bolt == nil || c.Storage.Bolt.Path == "" {
			missing = append(missing, "storage.bolt.path")
		}
	case StorageDynamo:
		if c.Storage.Dynamo == nil || c.Storage.Dynamo.Table == "" {
			missing = append(missing, "storage.dynamodb.table")
		}
	default:
		return fmt.Errorf("unsupported storage kind %q", c.Storage.Kind)
	}

	switch c.Artifacts.Kind {
	case ArtifactNone:
	case ArtifactFS:
		if c.Artifacts.FS == nil || c.Artifacts.FS.Root == "" {
			missing = append(missing, "artifacts.fs.root")
		}
	case ArtifactS3:
		if c.Artifacts.S3 == nil || c.Artifacts.S3.Bucket == "" {
			missing = append(missing, "artifacts.s3.bucket")
		}
	default:
		return fmt.Errorf("unsupported artifact kind %q", c.Artifacts.Kind)
	}

	if len(missing) > 0 {
		return &core.ConfigurationError{Missing: missing}
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be >= 0, got %d", c.HistoryLimit)
	}
	if c.MaxMemoryWords <= 0 {
		return fmt.Errorf("max_memory_words must be > 0, got %d", c.MaxMemoryWords)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// WorkflowSettings returns the settings map for a workflow, never nil.
func (c Config) WorkflowSettings(name string) map[string]string {
	if wc, ok := c.Workflows[name]; ok && wc.Settings != nil {
		return wc.Settings
	}
	return map[string]string{}
}
