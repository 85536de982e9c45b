package mqtt

import (
	"context"

	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	mqttclient "github.com/nerrad567/gray-logic-adapters/internal/infrastructure/mqtt"
)

// commandQoS is the QoS used for every command publish.
const commandQoS = 1

// Client is the broker session the adapter drives. *mqttclient.Client
// satisfies it; tests substitute an in-memory broker.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqttclient.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	Close() error
}

// Dialer opens a broker session. onLost is invoked at most once, when an
// established session drops.
type Dialer func(ctx context.Context, cfg config.MQTTConfig, onLost func(error)) (Client, error)

// DialBroker is the production Dialer.
func DialBroker(ctx context.Context, cfg config.MQTTConfig, onLost func(error)) (Client, error) {
	c, err := mqttclient.Connect(ctx, cfg, onLost)
	if err != nil {
		return nil, err
	}
	return c, nil
}
