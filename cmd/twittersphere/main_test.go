package main

import (
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"twittersphere/internal/config"
	"twittersphere/internal/ingest"
)

func TestPrepareOptionsFromConfig(t *testing.T) {
	ac := config.Default()
	ac.Prepare.Workers = 3
	ac.Prepare.StagingSize = "64MiB"
	ac.Prepare.OnError = "skip"

	opts, err := prepareOptions(ac, []string{"a.jsonl", "b.jsonl.gz"}, "out.db")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jsonl", "b.jsonl.gz"}, opts.Inputs)
	assert.Equal(t, "out.db", opts.DatabasePath)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, int64(1<<20), opts.BatchBytes)
	assert.Equal(t, int64(64<<20), opts.StagingBytes)
	assert.Equal(t, ingest.PolicySkip, opts.OnError)
}

func TestPrepareOptionsRejectsBadValues(t *testing.T) {
	tests := map[string]func(*config.AppConfig){
		"batch size":   func(ac *config.AppConfig) { ac.Prepare.BatchSize = "huge" },
		"staging size": func(ac *config.AppConfig) { ac.Prepare.StagingSize = "0" },
		"policy":       func(ac *config.AppConfig) { ac.Prepare.OnError = "retry" },
		"workers":      func(ac *config.AppConfig) { ac.Prepare.Workers = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			ac := config.Default()
			mutate(&ac)
			_, err := prepareOptions(ac, []string{"a.jsonl"}, "out.db")
			assert.Error(t, err)
		})
	}
}

func TestServeMetrics(t *testing.T) {
	_, err := serveMetrics("256.0.0.1:99999", zap.NewNop())
	assert.Error(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	stop, err := serveMetrics(addr, zap.NewNop())
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "twittersphere_"+ingest.MetricFlushes)
}
