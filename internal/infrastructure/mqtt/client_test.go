package mqtt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-adapters-test",
		},
		QoS:              1,
		ConnectTimeoutMs: 500,
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := BrokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("BrokerURL() = %q, want tcp://127.0.0.1:1883", got)
	}
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := BrokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("BrokerURL() = %q, want ssl://127.0.0.1:8883", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if opts.ClientID != "graylogic-adapters-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q, want user/pass", opts.Username, opts.Password)
	}
	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
	if opts.ConnectTimeout.Milliseconds() != 500 {
		t.Errorf("ConnectTimeout = %v, want 500ms", opts.ConnectTimeout)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without broker.tls")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v, want MinVersion TLS1.2", opts.TLSConfig)
	}
}

func TestBuildClientOptions_BadCAFile(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	cfg.Broker.CAFile = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := buildClientOptions(cfg); err == nil {
		t.Error("buildClientOptions() with missing CA file should fail")
	}

	empty := filepath.Join(t.TempDir(), "empty.pem")
	if err := os.WriteFile(empty, []byte("not a cert"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg.Broker.CAFile = empty
	if _, err := buildClientOptions(cfg); err == nil {
		t.Error("buildClientOptions() with certificate-less CA file should fail")
	}
}

func TestConnect_Cancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, cfg, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	var nilClient *Client
	if nilClient.IsConnected() {
		t.Error("IsConnected() should be false for nil client")
	}
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{filters: make(map[string]byte)}

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"wildcard topic", "a/+/b", 1, nil, ErrInvalidTopic},
		{"invalid qos", "a/b", 3, nil, ErrInvalidQoS},
		{"oversized", "a/b", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"disconnected", "a/b", 1, []byte("x"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{filters: make(map[string]byte)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("a/#/b", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(misplaced #) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("a/b", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 5) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.Subscribe("a/b", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v, want ErrNotConnected", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestDispatch_RecoversPanics(t *testing.T) {
	client := &Client{}
	logger := &recordingLogger{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	client.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

	if len(logger.errors) != 1 {
		t.Errorf("panic logs = %d, want 1", len(logger.errors))
	}
	if len(logger.warns) != 1 {
		t.Errorf("error logs = %d, want 1", len(logger.warns))
	}
}

func TestConnectionLost(t *testing.T) {
	lost := errors.New("EOF")
	tests := []struct {
		name       string
		closeFirst bool
		drops      int
		wantCalls  int
	}{
		{name: "single drop", drops: 1, wantCalls: 1},
		{name: "repeated drops report once", drops: 3, wantCalls: 1},
		{name: "deliberate close stays quiet", closeFirst: true, drops: 1, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			var got error
			client := &Client{
				paho:      pahomqtt.NewClient(pahomqtt.NewClientOptions()),
				connected: true,
				onLost: func(err error) {
					calls++
					got = err
				},
			}
			if tt.closeFirst {
				if err := client.Close(); err != nil {
					t.Fatalf("Close() error = %v", err)
				}
			}
			for range tt.drops {
				client.connectionLost(lost)
			}

			if calls != tt.wantCalls {
				t.Errorf("onLost calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantCalls > 0 && !errors.Is(got, lost) {
				t.Errorf("onLost error = %v, want %v", got, lost)
			}
			if client.IsConnected() {
				t.Error("IsConnected() = true after connection loss")
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/+/c", "a/b/c", true},
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"#", "a/b", true},
		{"#", "$SYS/broker", false},
		{"zigbee2mqtt/bridge/#", "zigbee2mqtt/bridge/devices", true},
		{"zigbee2mqtt/bridge/#", "zigbee2mqtt/lamp", false},
		{"a/b/c", "a/b", false},
	}
	for _, tt := range tests {
		if got := Match(tt.filter, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
