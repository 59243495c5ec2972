package main

import (
	"testing"
	"time"
)

func validConfig() *appConfig {
	return &appConfig{
		addr:           "127.0.0.1:9000",
		room:           "room-1",
		player:         "player-1",
		logFormat:      "text",
		logLevel:       "info",
		connectTimeout: time.Second,
		startTimeout:   time.Second,
		updateTimeout:  time.Second,
		finishTimeout:  time.Second,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_DiscoverSkipsAddrRoom(t *testing.T) {
	c := validConfig()
	c.addr = ""
	c.room = ""
	c.discover = true
	if err := c.validate(); err != nil {
		t.Fatalf("expected ok with discover set, got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"missingAddr", func(c *appConfig) { c.addr = "" }},
		{"missingRoom", func(c *appConfig) { c.room = "" }},
		{"missingPlayer", func(c *appConfig) { c.player = "" }},
		{"badConnectTO", func(c *appConfig) { c.connectTimeout = 0 }},
		{"badStartTO", func(c *appConfig) { c.startTimeout = 0 }},
		{"badUpdateTO", func(c *appConfig) { c.updateTimeout = 0 }},
		{"badFinishTO", func(c *appConfig) { c.finishTimeout = 0 }},
	}
	for _, tc := range tests {
		c := validConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
