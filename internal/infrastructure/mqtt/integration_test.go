//go:build integration

package mqtt

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/mqttlog/internal/infrastructure/config"
)

// Integration tests require a running broker at 127.0.0.1:1883, or the
// host:port in MQTTLOG_TEST_BROKER.
//
//	go test -tags integration ./internal/infrastructure/mqtt/...

func brokerConfig(t *testing.T) config.MQTTConfig {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = ""
	if addr := os.Getenv("MQTTLOG_TEST_BROKER"); addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			t.Fatalf("MQTTLOG_TEST_BROKER = %q: %v", addr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			t.Fatalf("MQTTLOG_TEST_BROKER port %q: %v", port, err)
		}
		cfg.Broker.Host = host
		cfg.Broker.Port = p
	}
	return cfg
}

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := New(brokerConfig(t))
	received := make(chan Message, 3)
	client.SetOnMessage(func(m Message) { received <- m })

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Disconnect()

	topic := "mqttlog/test/" + client.ClientID()
	if err := client.Subscribe(ctx, topic, 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, p := range []string{"a", "b", "c"} {
		if err := client.Publish(ctx, topic, []byte(p), 1, false); err != nil {
			t.Fatalf("Publish(%q) error = %v", p, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		select {
		case m := <-received:
			if string(m.Payload) != want {
				t.Errorf("payload = %q, want %q", m.Payload, want)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := brokerConfig(t)
	cfg.Broker.Port = 19998

	err := New(cfg).Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
