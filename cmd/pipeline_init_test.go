//go:build !integration

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-migrator/internal/config"
)

func twentyConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{}
	c.Destination.Kind = config.DestinationTwenty
	c.Destination.BaseURL = baseURL
	c.Destination.Token = "token"
	c.Migration.LogsDir = dir
	c.Migration.Concurrency = 2
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(dir, "runs.db")
	return c
}

func TestPipelineEnv_Close_Nil(t *testing.T) {
	pe := &pipelineEnv{}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestInitDestination_Twenty(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"people":[]}}`))
	}))
	defer ts.Close()

	cfg = twentyConfig(t, ts.URL)

	dest, err := initDestination()
	require.NoError(t, err)
	assert.Equal(t, "twenty", dest.Dest.Name())
	require.NoError(t, dest.Ping(context.Background()))
	assert.Equal(t, "Bearer token", auth)
}

func TestInitDestination_SalesforceMissingKey(t *testing.T) {
	cfg = &config.Config{}
	cfg.Destination.Kind = config.DestinationSalesforce
	cfg.Salesforce.KeyPath = filepath.Join(t.TempDir(), "missing.pem")

	dest, err := initDestination()
	assert.Nil(t, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init salesforce")
}

func TestInitDestination_Unknown(t *testing.T) {
	cfg = &config.Config{}
	cfg.Destination.Kind = "hubspot"

	_, err := initDestination()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported destination")
}

func TestInitPipeline_WithLedger(t *testing.T) {
	cfg = twentyConfig(t, "https://crm.example.com")

	env, err := initPipeline(context.Background(), false)
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Store)
}

func TestInitPipeline_LedgerUnavailable(t *testing.T) {
	cfg = twentyConfig(t, "https://crm.example.com")
	cfg.Store.Driver = "mysql"

	env, err := initPipeline(context.Background(), true)
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.Nil(t, env.Store)
}
