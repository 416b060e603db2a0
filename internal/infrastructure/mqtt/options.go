package mqtt

import (
	"crypto/tls"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/damaru/doorbell/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout applies when the session config leaves it unset.
	defaultConnectTimeout = 3 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive applies when the session config leaves it unset.
	defaultKeepAlive = 60 * time.Second

	// maxReconnectInterval caps the library's own backoff when auto-reconnect is on.
	maxReconnectInterval = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from relay config.
//
// When auto_reconnect is set the library owns reconnection, including
// retries of the very first connect. Otherwise a failed connect completes
// its token with an error and the caller decides whether to try again.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(cfg.Session.CleanSession)

	opts.SetAutoReconnect(cfg.Session.AutoReconnect)
	opts.SetConnectRetry(cfg.Session.AutoReconnect)
	if cfg.Session.AutoReconnect {
		opts.SetConnectRetryInterval(cfg.RetryDelay())
		opts.SetMaxReconnectInterval(maxReconnectInterval)
	}

	// Subscriptions are re-established by the owner on every connect.
	opts.SetResumeSubs(false)

	connectTimeout := cfg.ConnectTimeout()
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.KeepAliveInterval()
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// brokerURL returns tcp:// or ssl:// depending on the TLS setting.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return scheme + "://" + b.Addr()
}

// configureLWT registers an offline will on the status topic.
//
// The broker publishes it if the relay drops without a graceful
// disconnect. Nothing is registered when no status topic is configured.
func configureLWT(opts *pahomqtt.ClientOptions, cfg config.MQTTConfig) {
	if cfg.Topics.Status == "" {
		return
	}
	opts.SetWill(cfg.Topics.Status, buildWillPayload(cfg.Broker.ClientID), byte(cfg.QoS), true)
}
