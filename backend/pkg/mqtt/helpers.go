package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidateTopic validates a concrete MQTT topic name used for both subscribing and publishing.
// Wildcards are rejected since a topic has to be matched exactly on receipt.
func ValidateTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("topic cannot be empty")
	}

	if strings.HasPrefix(topic, "/") {
		return errors.New("leading slash is not allowed")
	}

	if strings.HasSuffix(topic, "/") {
		return errors.New("trailing slash is not allowed")
	}

	for segment := range strings.SplitSeq(topic, "/") {
		if segment == "" {
			return errors.New("empty segments are not allowed")
		}

		if strings.Contains(segment, "#") {
			return errors.New("multi-level wildcard '#' is not allowed")
		}

		if strings.Contains(segment, "+") {
			return errors.New("wildcard '+' is not allowed")
		}
	}

	return nil
}

// parseBrokerURL accepts the schemes the paho client can dial.
func parseBrokerURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("broker URL is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}

	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, errors.New("broker URL has no host")
	}

	return u, nil
}

func isSecureScheme(scheme string) bool {
	switch scheme {
	case "ssl", "tls", "mqtts", "wss":
		return true
	default:
		return false
	}
}

func tlsConfigFor(u *url.URL) *tls.Config {
	if !isSecureScheme(u.Scheme) {
		return nil
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: u.Hostname(),
	}
}
