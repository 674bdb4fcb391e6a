package mqtt

import (
	"strings"
	"testing"
)

func TestValidateTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		topic    string
		errorMsg string
	}{
		{name: "data topic", topic: "sk2a22/data"},
		{name: "single segment", topic: "control"},
		{name: "empty", topic: "", errorMsg: "topic cannot be empty"},
		{name: "blank", topic: "  ", errorMsg: "topic cannot be empty"},
		{name: "leading slash", topic: "/sk2a22/data", errorMsg: "leading slash"},
		{name: "trailing slash", topic: "sk2a22/data/", errorMsg: "trailing slash"},
		{name: "empty segment", topic: "sk2a22//data", errorMsg: "empty segments"},
		{name: "multi-level wildcard", topic: "sk2a22/#", errorMsg: "'#'"},
		{name: "single-level wildcard", topic: "sk2a22/+/data", errorMsg: "'+'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateTopic(tt.topic)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("ValidateTopic(%q) error = %v, want nil", tt.topic, err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("ValidateTopic(%q) error = %v, want containing %q", tt.topic, err, tt.errorMsg)
			}
		})
	}
}

func TestSessionConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := SessionConfig{Broker: "wss://broker.emqx.io:8084/mqtt", DataTopic: "sk2a22/data", ControlTopic: "sk2a22/control"}

	tests := []struct {
		name    string
		mutate  func(c *SessionConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*SessionConfig) {}},
		{name: "tcp broker", mutate: func(c *SessionConfig) { c.Broker = "tcp://127.0.0.1:1883" }},
		{name: "empty broker", mutate: func(c *SessionConfig) { c.Broker = "" }, wantErr: true},
		{name: "http scheme", mutate: func(c *SessionConfig) { c.Broker = "http://example.com" }, wantErr: true},
		{name: "no host", mutate: func(c *SessionConfig) { c.Broker = "tcp://:1883" }, wantErr: true},
		{name: "empty data topic", mutate: func(c *SessionConfig) { c.DataTopic = "" }, wantErr: true},
		{name: "wildcard control", mutate: func(c *SessionConfig) { c.ControlTopic = "sk2a22/#" }, wantErr: true},
		{name: "same topics", mutate: func(c *SessionConfig) { c.ControlTopic = c.DataTopic }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid
			tt.mutate(&c)

			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTLSConfigFor(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"wss://broker.emqx.io:8084/mqtt", "ssl://h:8883", "mqtts://h:8883"} {
		u, err := parseBrokerURL(raw)
		if err != nil {
			t.Fatalf("parseBrokerURL(%q) error = %v", raw, err)
		}

		if cfg := tlsConfigFor(u); cfg == nil || cfg.ServerName != u.Hostname() {
			t.Errorf("tlsConfigFor(%q) = %v, want config for %s", raw, cfg, u.Hostname())
		}
	}

	u, _ := parseBrokerURL("tcp://h:1883")
	if cfg := tlsConfigFor(u); cfg != nil {
		t.Errorf("tlsConfigFor(tcp) = %v, want nil", cfg)
	}
}

func TestConnState_Text(t *testing.T) {
	t.Parallel()

	for _, s := range []ConnState{Disconnected, Connecting, Connected} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText() error = %v", err)
		}

		var got ConnState
		if err := got.UnmarshalText(b); err != nil || got != s {
			t.Errorf("UnmarshalText(%s) = %v, %v, want %v", b, got, err, s)
		}
	}
}
