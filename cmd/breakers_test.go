package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-search/internal/config"
	"github.com/sells-group/company-search/internal/resilience"
)

func TestFetchBreakers(t *testing.T) {
	env := newTestEnv(t, nil, &stubProvider{name: "google", available: true, fn: returning()})
	for i := 0; i < 3; i++ {
		env.Breakers.RecordFailure("google")
	}
	srv := httptest.NewServer(buildRouter(env, config.ServerConfig{}, nil))
	defer srv.Close()

	views, err := fetchBreakers(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "google", views[0].Provider)
	assert.Equal(t, resilience.CircuitOpen, views[0].State.Status)
	require.NotNil(t, views[0].State.LastFailureAt)
}

func TestFetchBreakers_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fetchBreakers(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPrintBreakers(t *testing.T) {
	var buf bytes.Buffer
	err := printBreakers(&buf, []breakerView{
		{Provider: "jina", Available: true, State: resilience.CircuitState{Status: resilience.CircuitHalfOpen, ConsecutiveFailures: 4}},
		{Provider: "google", Available: false},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "PROVIDER")
	assert.Contains(t, out, "half_open")
	assert.Regexp(t, `google\s+false\s+closed\s+0\s+-`, out)
}
