//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khizarrm/outreach/internal/config"
	"github.com/khizarrm/outreach/internal/enrich"
	"github.com/khizarrm/outreach/internal/store"
)

// useTestConfig loads defaults from an empty temp dir and installs them as
// the command config.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	orig, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) }) //nolint:errcheck

	c, err := config.Load()
	require.NoError(t, err)
	c.Anthropic.Key = "sk-ant-test"
	c.Exa.Key = "exa-test"
	c.Jina.Key = "jina-test"
	c.Domain.Resolve = false
	c.Store.DatabaseURL = filepath.Join(dir, "outreach.db")

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return c
}

func TestInitStore_None(t *testing.T) {
	c := useTestConfig(t)
	c.Store.Driver = "none"

	st, err := initStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = requireStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver is none")
}

func TestInitStore_SQLite(t *testing.T) {
	useTestConfig(t)

	st, err := requireStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*store.SQLiteStore)
	assert.True(t, ok)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInitStore_Unsupported(t *testing.T) {
	c := useTestConfig(t)
	c.Store.Driver = "mysql"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitModels(t *testing.T) {
	c := useTestConfig(t)

	agentModel, extractModel := initModels()
	assert.Equal(t, c.Anthropic.AgentModel, agentModel.Name())
	assert.Equal(t, c.Anthropic.ExtractModel, extractModel.Name())

	c.LLM.Provider = "openai"
	c.OpenAI.Key = "sk-openai"
	agentModel, extractModel = initModels()
	assert.Equal(t, "gpt-4o", agentModel.Name())
	assert.Equal(t, "gpt-4o-mini", extractModel.Name())
}

func TestInitEnricher(t *testing.T) {
	useTestConfig(t)

	e, err := initEnricher(context.Background())
	require.NoError(t, err)
	assert.IsType(t, enrich.Noop{}, e)
}

func TestInitPolicy(t *testing.T) {
	c := useTestConfig(t)

	h, err := initPolicy()
	require.NoError(t, err)
	assert.NotEmpty(t, h.Current().Version)

	c.Pipeline.PolicyPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = initPolicy()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load policy")
}

func TestInitEnv_ValidatesConfig(t *testing.T) {
	c := useTestConfig(t)
	c.Anthropic.Key = ""

	_, err := initEnv(context.Background(), "research")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestInitEnv_WiresPipeline(t *testing.T) {
	useTestConfig(t)

	env, err := initEnv(context.Background(), "research")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Search)
	assert.NotNil(t, env.Store)
	assert.Nil(t, env.Index)
}

func TestInitEnv_WithoutStore(t *testing.T) {
	c := useTestConfig(t)
	c.Store.Driver = "none"

	env, err := initEnv(context.Background(), "research")
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Store)
	assert.NotNil(t, env.Pipeline)
}
