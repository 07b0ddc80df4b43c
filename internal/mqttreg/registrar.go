// Package mqttreg registers and removes registry entries by publishing
// descriptors over MQTT, the registry's second registration channel.
package mqttreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"regcheck/internal/descriptor"
	"regcheck/pkg/logging"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	DefaultRegTopic  = "LS/regcheck/1/SER/1.0/REG"
	DefaultWillTopic = "LS/regcheck/1/SER/1.0/WILL"

	defaultConnectTimeout = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultRetryDelay     = time.Second
	defaultConnectRetries = 10

	qos = 1
)

// ErrNotConnected is returned by publishes before a successful Connect.
var ErrNotConnected = errors.New("mqtt registrar is not connected")

// Config describes the broker and topics used for registration.
type Config struct {
	Broker    string
	RegTopic  string
	WillTopic string
	ClientID  string

	ConnectTimeout time.Duration
	ConnectRetries int
	RetryDelay     time.Duration
	PublishTimeout time.Duration

	// Lazy defers dialling the broker to the first publish.
	Lazy bool
}

// Registrar publishes registration and will messages for services.
type Registrar struct {
	cfg Config

	mu     sync.Mutex
	client mqtt.Client
	// dial serialises lazy connects.
	dial sync.Mutex

	// newClient and sleep are replaced in tests.
	newClient func(*mqtt.ClientOptions) mqtt.Client
	sleep     func(ctx context.Context, d time.Duration) error
}

// New validates cfg and fills in defaults. It does not connect.
func New(cfg Config) (*Registrar, error) {
	if cfg.Broker == "" {
		return nil, &descriptor.ConfigurationError{
			Option: "mqtt_broker",
			Err:    errors.New("a broker URL is required for the mqtt transport"),
		}
	}
	if cfg.RegTopic == "" {
		cfg.RegTopic = DefaultRegTopic
	}
	if cfg.WillTopic == "" {
		cfg.WillTopic = DefaultWillTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "regcheck-" + uuid.NewString()[:8]
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = defaultConnectRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	return &Registrar{
		cfg:       cfg,
		newClient: mqtt.NewClient,
		sleep:     sleepCtx,
	}, nil
}

// Config returns the effective configuration.
func (r *Registrar) Config() Config {
	return r.cfg
}

// Connect dials the broker, retrying up to ConnectRetries times.
func (r *Registrar) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().AddBroker(r.cfg.Broker)
	opts.SetClientID(r.cfg.ClientID)
	opts.SetConnectTimeout(r.cfg.ConnectTimeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn("MQTT", "%s: connection lost: %v", r.cfg.Broker, err)
	})

	client := r.newClient(opts)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.ConnectRetries; attempt++ {
		token := client.Connect()
		if !token.WaitTimeout(r.cfg.ConnectTimeout) {
			lastErr = fmt.Errorf("timed out after %v", r.cfg.ConnectTimeout)
		} else {
			lastErr = token.Error()
		}
		if lastErr == nil {
			logging.Info("MQTT", "connected to %s as %s", r.cfg.Broker, r.cfg.ClientID)
			r.mu.Lock()
			r.client = client
			r.mu.Unlock()
			return nil
		}

		logging.Debug("MQTT", "connect to %s failed (attempt %d/%d): %v", r.cfg.Broker, attempt, r.cfg.ConnectRetries, lastErr)
		if attempt < r.cfg.ConnectRetries {
			if err := r.sleep(ctx, r.cfg.RetryDelay); err != nil {
				return fmt.Errorf("connect to %s: %w", r.cfg.Broker, err)
			}
		}
	}
	return fmt.Errorf("connect to %s after %d attempts: %w", r.cfg.Broker, r.cfg.ConnectRetries, lastErr)
}

// Register publishes svc on the registration topic. svc.ID must be set.
func (r *Registrar) Register(ctx context.Context, svc *descriptor.Service) error {
	return r.publish(ctx, r.cfg.RegTopic, svc)
}

// Deregister publishes svc on the will topic, which removes the entry.
func (r *Registrar) Deregister(ctx context.Context, svc *descriptor.Service) error {
	return r.publish(ctx, r.cfg.WillTopic, svc)
}

func (r *Registrar) publish(ctx context.Context, topic string, svc *descriptor.Service) error {
	if svc == nil || svc.ID == "" {
		return errors.New("publish: service id is required")
	}

	client, err := r.connected(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(svc)
	if err != nil {
		return fmt.Errorf("encode service %s: %w", svc.ID, err)
	}

	token := client.Publish(topic, qos, false, payload)
	timer := time.NewTimer(r.cfg.PublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s on %s: %w", svc.ID, topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("publish %s on %s: timed out after %v", svc.ID, topic, r.cfg.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s on %s: %w", svc.ID, topic, err)
	}

	logging.Debug("MQTT", "published %s on %s", svc.ID, topic)
	return nil
}

func (r *Registrar) connected(ctx context.Context) (mqtt.Client, error) {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client != nil {
		return client, nil
	}
	if !r.cfg.Lazy {
		return nil, ErrNotConnected
	}

	r.dial.Lock()
	defer r.dial.Unlock()
	r.mu.Lock()
	client = r.client
	r.mu.Unlock()
	if client != nil {
		return client, nil
	}
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client, nil
}

// Close disconnects from the broker. It is safe to call more than once.
func (r *Registrar) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.Disconnect(250)
		r.client = nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
