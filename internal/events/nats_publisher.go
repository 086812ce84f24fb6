package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	// StreamName is the JetStream stream holding recovery events.
	StreamName = "RECOVERY"

	// SubjectPrefix prefixes every recovery event subject.
	SubjectPrefix = "recovery"
)

// NATSConfig holds connection settings.
type NATSConfig struct {
	URL   string
	Token string
}

// NATSPublisher mirrors domain events to a JetStream stream.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// ConnectNATS dials the server and ensures the stream exists.
func ConnectNATS(ctx context.Context, cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("recovery-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	p := &NATSPublisher{conn: nc, js: js, logger: logger}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *NATSPublisher) ensureStream(ctx context.Context) error {
	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Recovery case lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	return nil
}

// Subject returns the subject for an event.
func Subject(event Event) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, event.BusinessID, event.Type)
}

// Handle publishes the event. It is meant to be subscribed on a Dispatcher.
func (p *NATSPublisher) Handle(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, Subject(event), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// SubscribeAll registers the publisher for every recovery event type.
func (p *NATSPublisher) SubscribeAll(d Dispatcher) {
	for _, t := range []EventType{EventRecoveryCaseOpened, EventRecoveryMessageAdded, EventRecoveryCaseClosed} {
		d.Subscribe(t, p.Handle)
	}
}

// IsConnected reports connection state.
func (p *NATSPublisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Ping reports an error when the connection is down.
func (p *NATSPublisher) Ping(context.Context) error {
	if !p.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p != nil && p.conn != nil {
		_ = p.conn.Drain()
	}
}
