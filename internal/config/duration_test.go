package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"minutes", "ttl: 30m", 30 * time.Minute, false},
		{"hours", "ttl: 2h", 2 * time.Hour, false},
		{"compound", "ttl: 1h30m", 90 * time.Minute, false},
		{"integer nanoseconds", "ttl: 1000000000", time.Second, false},
		{"garbage", "ttl: soonish", 0, true},
		{"empty string", `ttl: ""`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				TTL Duration `yaml:"ttl"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &out)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Unmarshal(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%q) failed: %v", tt.input, err)
			}
			if out.TTL.Std() != tt.want {
				t.Errorf("TTL = %v, want %v", out.TTL.Std(), tt.want)
			}
		})
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(struct {
		TTL Duration `yaml:"ttl"`
	}{TTL: Duration(90 * time.Minute)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != "ttl: 1h30m0s\n" {
		t.Errorf("Marshal = %q", out)
	}
}
