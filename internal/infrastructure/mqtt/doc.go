// Package mqtt provides the MQTT broker client used by the MQTT and
// Zigbee2MQTT adapters.
//
// This package manages:
//   - Connection to a broker from one adapter's config block
//   - Message publishing with QoS and payload-size checks
//   - Topic subscriptions with wildcard support and panic-safe handlers
//   - Connection-loss notification
//
// Each adapter owns its own Client. Paho auto-reconnect is disabled; the
// adapter lifecycle redials with exponential backoff and subscribes again
// on the fresh Client.
//
// # Security Considerations
//
//   - Set broker.tls and broker.ca_file for anything beyond a loopback broker
//   - Credentials are best supplied via GRAYLOGIC_ADAPTER_<ID>_PASSWORD
//   - insecure_skip_verify exists for self-signed lab brokers only
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.Adapters[0].MQTT.MQTTConfig, onLost)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("zigbee2mqtt/bridge/#", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
