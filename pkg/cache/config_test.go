package cache

import (
	"testing"
	"time"
)

func TestLayerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LayerConfig
		wantErr bool
	}{
		{"valid", LayerConfig{Name: "L1", DefaultTTL: time.Minute, MaxTTL: time.Hour}, false},
		{"uncapped", LayerConfig{Name: "L1", DefaultTTL: time.Minute}, false},
		{"empty name", LayerConfig{DefaultTTL: time.Minute}, true},
		{"negative default", LayerConfig{Name: "L1", DefaultTTL: -time.Second}, true},
		{"negative max", LayerConfig{Name: "L1", MaxTTL: -time.Second}, true},
		{"default above max", LayerConfig{Name: "L1", DefaultTTL: time.Hour, MaxTTL: time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLayerConfig_EffectiveTTL(t *testing.T) {
	config := LayerConfig{Name: "L1", DefaultTTL: 2 * time.Minute, MaxTTL: 5 * time.Minute}

	tests := []struct {
		name     string
		ttl      time.Duration
		expected time.Duration
	}{
		{"zero uses default", 0, 2 * time.Minute},
		{"negative uses default", -time.Second, 2 * time.Minute},
		{"within range", 3 * time.Minute, 3 * time.Minute},
		{"capped", time.Hour, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := config.EffectiveTTL(tt.ttl); got != tt.expected {
				t.Errorf("EffectiveTTL(%v) = %v, want %v", tt.ttl, got, tt.expected)
			}
		})
	}
}
