package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireSharedBackend(t *testing.T) {
	for _, backend := range []string{"", "memory"} {
		err := requireSharedBackend(backend, "clear")
		require.Error(t, err, backend)
		assert.Contains(t, err.Error(), "per-process")
	}
	for _, backend := range []string{"redis", "postgres", "sqlite", "badger"} {
		assert.NoError(t, requireSharedBackend(backend, "clear"), backend)
	}
}

func TestCacheClear_RejectsMemoryBackend(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = testConfig()

	for _, c := range []struct {
		name string
		run  func() error
	}{
		{"clear", func() error { return cacheClearCmd.RunE(cacheClearCmd, nil) }},
		{"sweep", func() error { return cacheSweepCmd.RunE(cacheSweepCmd, nil) }},
	} {
		t.Run(c.name, func(t *testing.T) {
			var out bytes.Buffer
			cacheClearCmd.SetOut(&out)
			cacheSweepCmd.SetOut(&out)
			err := c.run()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "cache "+c.name)
			assert.Empty(t, out.String(), "nothing reported as cleared")
		})
	}
}
