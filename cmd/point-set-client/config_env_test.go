package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := &appConfig{
		addr:            "127.0.0.1:9000",
		room:            "room-1",
		player:          "player-1",
		conv:            1,
		logFormat:       "text",
		logLevel:        "info",
		connectTimeout:  10 * time.Second,
		startTimeout:    20 * time.Second,
		updateTimeout:   7 * time.Second,
		finishTimeout:   5 * time.Second,
		logMetricsEvery: 0,
	}

	os.Setenv("POINT_SET_CLIENT_CONV", "42")
	os.Setenv("POINT_SET_CLIENT_DISCOVER", "true")
	os.Setenv("POINT_SET_CLIENT_UPDATE_TIMEOUT", "3s")
	os.Setenv("POINT_SET_CLIENT_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("POINT_SET_CLIENT_CONV")
		os.Unsetenv("POINT_SET_CLIENT_DISCOVER")
		os.Unsetenv("POINT_SET_CLIENT_UPDATE_TIMEOUT")
		os.Unsetenv("POINT_SET_CLIENT_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.conv != 42 {
		t.Fatalf("expected conv override, got %d", base.conv)
	}
	if !base.discover {
		t.Fatalf("expected discover true")
	}
	if base.updateTimeout != 3*time.Second {
		t.Fatalf("expected updateTimeout 3s got %v", base.updateTimeout)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{conv: 1}
	os.Setenv("POINT_SET_CLIENT_CONV", "42")
	t.Cleanup(func() { os.Unsetenv("POINT_SET_CLIENT_CONV") })
	if err := applyEnvOverrides(base, map[string]struct{}{"conv": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.conv != 1 {
		t.Fatalf("expected conv unchanged 1, got %d", base.conv)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{conv: 1}
	os.Setenv("POINT_SET_CLIENT_CONV", "notanumber")
	t.Cleanup(func() { os.Unsetenv("POINT_SET_CLIENT_CONV") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
