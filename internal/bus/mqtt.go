package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/cenkalti/backoff/v4"

	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
	"github.com/owulveryck/symbion-kernel/internal/observability"
)

// sendBufferCapacity bounds the outbound queue; Publish fails fast once it
// fills rather than blocking the caller (spec.md §4.1).
const sendBufferCapacity = 256

// incomingBufferCapacity bounds the inbound delivery channel. A slow
// consumer backs up the broker's own flow control, not this process.
const incomingBufferCapacity = 256

type outboundMessage struct {
	topic   string
	qos     byte
	payload []byte
}

// MQTTClient is the Client backing the kernel's production deployment,
// built on Eclipse Paho (see SPEC_FULL.md's DOMAIN STACK note on why this
// dependency is named rather than pack-grounded).
type MQTTClient struct {
	logger  *slog.Logger
	metrics *observability.MetricsManager

	client mqtt.Client

	mu           sync.Mutex
	filters      map[string]byte
	firstConnect bool

	outbound chan outboundMessage
	incoming chan Message
	reconnects atomic64

	closeOnce sync.Once
	done      chan struct{}
}

// atomic64 is a minimal mutex-guarded counter; the reconnect count is
// written only on a reconnect and read once per health snapshot, so a
// mutex-free approach isn't worth pulling in sync/atomic's awkward
// alignment rules for a single uint64 field.
type atomic64 struct {
	mu  sync.Mutex
	val uint64
}

func (a *atomic64) inc() {
	a.mu.Lock()
	a.val++
	a.mu.Unlock()
}

func (a *atomic64) load() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.val
}

// NewMQTTClient dials broker (e.g. "tcp://localhost:1883") with the given
// client id and starts the connect/reconnect loop. Failed connection
// attempts are retried with capped exponential backoff; it returns once
// an attempt succeeds or the context is cancelled.
func NewMQTTClient(ctx context.Context, broker, clientID string, logger *slog.Logger, metrics *observability.MetricsManager) (*MQTTClient, error) {
	c := &MQTTClient{
		logger:   logger,
		metrics:  metrics,
		filters:  make(map[string]byte),
		outbound: make(chan outboundMessage, sendBufferCapacity),
		incoming: make(chan Message, incomingBufferCapacity),
		done:     make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetCleanSession(false).
		SetConnectionLostHandler(c.onConnectionLost).
		SetOnConnectHandler(c.onConnect)

	c.client = mqtt.NewClient(opts)

	if err := c.connectWithBackoff(ctx); err != nil {
		return nil, kernelerrors.BusUnavailable("initial bus connect failed", err)
	}

	go c.sendLoop()

	return c, nil
}

func (c *MQTTClient) connectWithBackoff(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // retry indefinitely; the caller's ctx bounds the wait

	return backoff.Retry(func() error {
		token := c.client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.WarnContext(ctx, "bus connect attempt failed", "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

func (c *MQTTClient) onConnect(_ mqtt.Client) {
	c.mu.Lock()
	filters := make(map[string]byte, len(c.filters))
	for topic, qos := range c.filters {
		filters[topic] = qos
	}
	first := !c.firstConnect
	c.firstConnect = true
	c.mu.Unlock()

	if !first {
		c.reconnects.inc()
		if c.metrics != nil {
			c.metrics.BusReconnectsTotal.Inc()
		}
		c.logger.Info("bus reconnected", "reconnect_count", c.reconnects.load())
	}

	for topic, qos := range filters {
		if err := c.doSubscribe(topic, qos); err != nil {
			c.logger.Error("bus re-subscribe failed", "topic", topic, "error", err)
		}
	}
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("bus connection lost", "error", err)
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		select {
		case <-c.done:
			return
		default:
		}
		if connErr := c.connectWithBackoff(ctx); connErr != nil {
			c.logger.Error("bus reconnect loop aborted", "error", connErr)
		}
	}()
}

func (c *MQTTClient) doSubscribe(topicFilter string, qos byte) error {
	token := c.client.Subscribe(topicFilter, qos, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case c.incoming <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
		case <-c.done:
		}
	})
	token.Wait()
	return token.Error()
}

func (c *MQTTClient) Subscribe(topicFilter string) error {
	const qos = 1
	c.mu.Lock()
	c.filters[topicFilter] = qos
	c.mu.Unlock()
	return c.doSubscribe(topicFilter, qos)
}

func (c *MQTTClient) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	msg := outboundMessage{topic: topic, qos: qos, payload: payload}
	select {
	case c.outbound <- msg:
		if c.metrics != nil {
			c.metrics.BusMessagesTotal.WithLabelValues(topic, "out").Inc()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return kernelerrors.BusUnavailable(fmt.Sprintf("send buffer full publishing to %s", topic), nil)
	}
}

func (c *MQTTClient) sendLoop() {
	for {
		select {
		case msg := <-c.outbound:
			token := c.client.Publish(msg.topic, msg.qos, false, msg.payload)
			token.Wait()
			if err := token.Error(); err != nil {
				c.logger.Error("bus publish failed", "topic", msg.topic, "error", err)
			}
		case <-c.done:
			return
		}
	}
}

func (c *MQTTClient) Incoming() <-chan Message {
	return c.incoming
}

func (c *MQTTClient) Reconnects() uint64 {
	return c.reconnects.load()
}

func (c *MQTTClient) Close(_ context.Context) error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.client.Disconnect(250)
		close(c.incoming)
	})
	return nil
}
