package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/aretw0/novella/internal/runtime"
	"github.com/aretw0/novella/pkg/dsl"
	"github.com/aretw0/novella/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func play(t *testing.T, engine *runtime.Engine) {
	t.Helper()
	b := dsl.New("pier")
	b.Start("start").Go("dock")
	b.Scene("dock").Text("Fog.").Go("ask")
	b.Choice("ask").Option("stay", "Stay", "home").Option("sail", "Sail", "sea")
	b.Ending("home", "home", "NORMAL")
	b.Ending("sea", "sea", "GOOD")
	store, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{PlaythroughID: "p"})
	require.NoError(t, err)
	resp, err = engine.Resume(ctx, store, resp.State, "")
	require.NoError(t, err)
	resp, err = engine.Resume(ctx, store, resp.State, "sail")
	require.NoError(t, err)
	require.NotNil(t, resp.Ending)
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	play(t, runtime.NewEngine(runtime.WithLifecycleHooks(metrics.Hooks())))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NodeVisits.WithLabelValues("pier", "scene")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NodeVisits.WithLabelValues("pier", "ending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Choices.WithLabelValues("pier", "ask", "sail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Endings.WithLabelValues("pier", "sea", "GOOD")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.Turns))
}

func TestMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	second, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	second.Endings.WithLabelValues("s", "e", "").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(first.Endings.WithLabelValues("s", "e", "")))
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	play(t, runtime.NewEngine(runtime.WithLifecycleHooks(observability.LogHooks(logger))))

	out := buf.String()
	assert.Contains(t, out, `"msg":"node_enter"`)
	assert.Contains(t, out, `"option_id":"sail"`)
	assert.Contains(t, out, `"ending_id":"sea"`)
}
