package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const ssmRefPrefix = "${ssm:"

// ssmAPI is the minimal AWS SSM interface required by ParamStore.
// *ssm.Client from aws-sdk-go-v2 satisfies it.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretGetter resolves a named secret. Consumers depend on this interface
// rather than the concrete client so they stay testable without AWS calls.
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ParamStore wraps AWS SSM Parameter Store for secret retrieval.
type ParamStore struct {
	api ssmAPI
}

// NewParamStore creates a ParamStore over the given SSM API implementation.
func NewParamStore(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &ParamStore{api: api}, nil
}

// GetParameter fetches a decrypted parameter value by name.
func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}
	withDecryption := true
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// ResolveSecrets replaces every ${ssm:/path} workflow setting value with the
// parameter fetched through getter. Non-reference values pass through
// untouched. The input config is not mutated.
func ResolveSecrets(ctx context.Context, cfg Config, getter SecretGetter) (Config, error) {
	resolved := cfg
	resolved.Workflows = make(map[string]WorkflowConfig, len(cfg.Workflows))
	for name, wc := range cfg.Workflows {
		settings := make(map[string]string, len(wc.Settings))
		for key, value := range wc.Settings {
			ref, ok := secretRef(value)
			if !ok {
				settings[key] = value
				continue
			}
			secret, err := getter.GetParameter(ctx, ref)
			if err != nil {
				return Config{}, fmt.Errorf("resolve %s.%s: %w", name, key, err)
			}
			settings[key] = secret
		}
		resolved.Workflows[name] = WorkflowConfig{Settings: settings}
	}
	return resolved, nil
}

// secretRef extracts the parameter path from a ${ssm:/path} value.
func secretRef(value string) (string, bool) {
	if !strings.HasPrefix(value, ssmRefPrefix) || !strings.HasSuffix(value, "}") {
		return "", false
	}
	return value[len(ssmRefPrefix) : len(value)-1], true
}
