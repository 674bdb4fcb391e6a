// Package brokertest starts throwaway in-process brokers for tests.
package brokertest

import (
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/tringuyenminh209/mimamori/backend/pkg/broker"
)

// Start runs a broker on a free loopback port and closes it when the test ends.
func Start(tb testing.TB) *broker.Broker {
	tb.Helper()

	return StartAt(tb, FreeAddr(tb))
}

// StartAt runs a broker on addr and closes it when the test ends. Tests use it to
// bring a broker back on an address a client is already dialing.
func StartAt(tb testing.TB, addr string) *broker.Broker {
	tb.Helper()

	b, err := broker.New(slog.New(slog.NewTextHandler(io.Discard, nil)), addr)
	if err != nil {
		tb.Fatalf("broker.New() error = %v", err)
	}

	if err := b.Serve(); err != nil {
		tb.Fatalf("Serve() error = %v", err)
	}

	tb.Cleanup(func() { _ = b.Close() })

	return b
}

// FreeAddr returns a loopback address nothing is listening on.
func FreeAddr(tb testing.TB) string {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("net.Listen() error = %v", err)
	}

	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		tb.Fatalf("Close() error = %v", err)
	}

	return addr
}
