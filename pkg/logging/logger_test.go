package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestForEnvironment(t *testing.T) {
	dev := ForEnvironment("dev")
	if dev.Format != "console" || !dev.Development {
		t.Errorf("Expected console development config for dev, got %+v", dev)
	}

	prod := ForEnvironment("prod")
	if prod.Format != "json" || prod.Development {
		t.Errorf("Expected json production config for prod, got %+v", prod)
	}
	if prod.Environment != "prod" {
		t.Errorf("Expected env field prod, got %q", prod.Environment)
	}
}

func TestNewLogger(t *testing.T) {
	config := DefaultConfig()
	config.OutputPaths = []string{"stderr"}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Named("test").Info("hello")
}

func TestGlobal(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	custom := NewNoOpLogger()
	SetGlobal(custom)
	if Global() != custom {
		t.Error("Expected global logger to be replaced")
	}

	SetGlobal(nil)
	if Global() == nil {
		t.Error("Expected nil to reset to a no-op logger")
	}

	if OrGlobal(custom, "x") != custom {
		t.Error("Expected OrGlobal to return the explicit logger")
	}
	if OrGlobal(nil, "x") == nil {
		t.Error("Expected OrGlobal to fall back to the global logger")
	}
}
