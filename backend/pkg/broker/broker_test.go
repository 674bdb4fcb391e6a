package broker_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/pkg/broker"
	"github.com/tringuyenminh209/mimamori/backend/pkg/broker/brokertest"
)

func TestNew_RequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := broker.New(slog.New(slog.NewTextHandler(io.Discard, nil)), ""); err == nil {
		t.Error("New() error = nil, want error for empty address")
	}
}

func TestBroker_InlinePublishSubscribe(t *testing.T) {
	t.Parallel()

	b := brokertest.Start(t)

	if !strings.HasPrefix(b.URL(), "tcp://127.0.0.1:") {
		t.Errorf("URL() = %v, want tcp loopback URL", b.URL())
	}

	got := make(chan string, 1)
	if err := b.Subscribe("sk2a22/+", 1, func(topic string, payload []byte) {
		got <- topic + " " + string(payload)
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Publish("sk2a22/control", []byte("LED_ON")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-got:
		if msg != "sk2a22/control LED_ON" {
			t.Errorf("received %q, want sk2a22/control LED_ON", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("inline subscriber received nothing")
	}

	if n := b.Clients(); n != 0 {
		t.Errorf("Clients() = %d, want 0", n)
	}
}

func TestBroker_CloseTwice(t *testing.T) {
	t.Parallel()

	b := brokertest.Start(t)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}
