package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-ai/threadline/core"
)

type noopPattern struct{ name string }

func (p *noopPattern) Name() string { return p.name }

func (p *noopPattern) Run(context.Context, core.Turn) (core.TurnResult, error) {
	return core.TurnResult{State: core.TurnCompleted}, nil
}

func register(r *Registry, desc Descriptor) {
	r.Register(desc, func() core.Pattern { return &noopPattern{name: desc.Name} })
}

func TestRegistry_ResolveIsSeparatorAndCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	register(r, Descriptor{Name: "classification-agent", Aliases: []string{"classification_agent"}})

	for _, name := range []string{
		"classification-agent",
		"classification_agent",
		"Classification_Agent",
		"CLASSIFICATION-AGENT",
		" classification-agent ",
	} {
		factory, desc, err := r.Resolve(name)
		require.NoError(t, err, "resolving %q", name)
		assert.Equal(t, "classification-agent", desc.Name)
		assert.Equal(t, "classification-agent", factory().Name())
	}
}

func TestRegistry_ResolveIsIdempotentAcrossAliases(t *testing.T) {
	r := NewRegistry()
	register(r, Descriptor{Name: "classification-agent"})

	_, descHyphen, err := r.Resolve("classification-agent")
	require.NoError(t, err)
	_, descUnderscore, err := r.Resolve("classification_agent")
	require.NoError(t, err)
	assert.Equal(t, descHyphen, descUnderscore)
}

func TestRegistry_UnknownFlowListsValidNames(t *testing.T) {
	r := NewRegistry()
	register(r, Descriptor{Name: "classification-agent"})
	register(r, Descriptor{Name: "bike-insights"})

	_, _, err := r.Resolve("not-a-real-flow")
	var uw *core.UnknownWorkflowError
	require.True(t, errors.As(err, &uw))
	assert.Equal(t, "not-a-real-flow", uw.Name)
	assert.Contains(t, uw.Known, "classification-agent")
	assert.Contains(t, uw.Known, "bike-insights")
	assert.Contains(t, err.Error(), "classification-agent")
}

func TestRegistry_LegacyAliases(t *testing.T) {
	r := NewRegistry()
	register(r, Descriptor{
		Name:    "sql-manipulation-agent",
		Aliases: []string{"sql_manipulation_agent", "sql-agent"},
	})

	_, desc, err := r.Resolve("sql-agent")
	require.NoError(t, err)
	assert.Equal(t, "sql-manipulation-agent", desc.Name)
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	register(r, Descriptor{Name: "zeta"})
	register(r, Descriptor{Name: "alpha"})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
}

func TestRegistry_Diagnose(t *testing.T) {
	r := NewRegistry()
	register(r, Descriptor{
		Name:             "knowledge-base-agent",
		RequiredConfig:   []string{"models.api_key", "search.endpoint"},
		ExternalServices: []string{"model_provider", "search_service"},
	})

	diag, err := r.Diagnose("knowledge_base_agent", map[string]string{
		"models.api_key": "sk-test",
	})
	require.NoError(t, err)
	assert.False(t, diag.Ready)
	assert.False(t, diag.Configured)
	assert.Equal(t, []string{"search.endpoint"}, diag.MissingConfig)
	assert.Equal(t, []string{"models.api_key", "search.endpoint"}, diag.RequiredConfig)

	diag, err = r.Diagnose("knowledge-base-agent", map[string]string{
		"models.api_key":  "sk-test",
		"search.endpoint": "https://search.local",
	})
	require.NoError(t, err)
	assert.True(t, diag.Ready)
	assert.Empty(t, diag.MissingConfig)

	_, err = r.Diagnose("missing-flow", nil)
	assert.Error(t, err)
}

func TestBuiltinDescriptors(t *testing.T) {
	r := NewRegistry()
	for _, desc := range Builtin() {
		register(r, desc)
	}
	_, desc, err := r.Resolve("classification_agent")
	require.NoError(t, err)
	assert.Equal(t, "classification-agent", desc.Name)

	_, desc, err = r.Resolve("bike_insights")
	require.NoError(t, err)
	assert.Equal(t, "bike-insights", desc.Name)
}
