// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/nats-io/nats.go"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/constants"
)

// INatsConn is the subset of a NATS connection the publisher needs.
type INatsConn interface {
	IsConnected() bool
	Publish(subj string, data []byte) error
}

// ErrNotConnected is returned when publishing without a live connection.
var ErrNotConnected = errors.New("nats connection is not established")

// MessageBuilder builds storage event messages and sends them to the NATS server.
type MessageBuilder struct {
	NatsConn INatsConn
}

var _ domain.StorageEventPublisher = (*MessageBuilder)(nil)

// NewMessageBuilder creates a new MessageBuilder.
func NewMessageBuilder(natsConn INatsConn) *MessageBuilder {
	return &MessageBuilder{
		NatsConn: natsConn,
	}
}

// Connect dials the NATS server at url with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("lfx-v2-meeting-scheduler"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("disconnected from NATS", logging.ErrKey, err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
}

// PublisherReady reports whether the underlying connection is usable.
func (m *MessageBuilder) PublisherReady() bool {
	return m.NatsConn != nil && m.NatsConn.IsConnected()
}

// publish sends the message to the NATS server.
func (m *MessageBuilder) publish(ctx context.Context, subject string, data []byte) error {
	err := m.NatsConn.Publish(subject, data)
	if err != nil {
		slog.ErrorContext(ctx, "error sending message to NATS", logging.ErrKey, err, "subject", subject)
		return err
	}
	slog.DebugContext(ctx, "sent message to NATS", "subject", subject)
	return nil
}

// PublishStorageEvent publishes event on lfx.meeting_scheduler.<collection>.<type>.
// Record payloads are flattened to JSON objects so subscribers never depend
// on Go types.
func (m *MessageBuilder) PublishStorageEvent(ctx context.Context, event domain.StorageEvent) error {
	if !m.PublisherReady() {
		return ErrNotConnected
	}

	subject := models.StorageEventSubject(event.Collection, string(event.Type))

	payload, err := eventPayload(event.Data)
	if err != nil {
		slog.ErrorContext(ctx, "error converting event data", logging.ErrKey, err, "subject", subject)
		return err
	}

	message := models.StorageEventMessage{
		Type:       string(event.Type),
		Collection: event.Collection,
		ID:         event.ID,
		Data:       payload,
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if requestID, ok := ctx.Value(constants.RequestIDContextID).(string); ok {
		message.RequestID = requestID
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling message into JSON", logging.ErrKey, err, "subject", subject)
		return err
	}

	return m.publish(ctx, subject, messageBytes)
}

// eventPayload converts a record into the generic JSON shape published on
// the bus. Deletions carry no payload.
func eventPayload(data any) (any, error) {
	if data == nil {
		return nil, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err != nil {
		return nil, err
	}

	var payload map[string]any
	config := mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &payload,
	}
	decoder, err := mapstructure.NewDecoder(&config)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(jsonData); err != nil {
		return nil, err
	}
	return payload, nil
}

// Forward subscribes to storage events and republishes them over NATS.
// subscribe is typically a storage factory's Subscribe method.
func (m *MessageBuilder) Forward(subscribe func(collection string, listener domain.EventListener) func(), collections ...string) func() {
	return Forward(m, subscribe, collections...)
}

// Forward subscribes to storage events of collections and hands each one to
// publisher. Publish failures are logged and never reach the writer that
// caused the event. The returned function unsubscribes every listener.
func Forward(publisher domain.StorageEventPublisher, subscribe func(collection string, listener domain.EventListener) func(), collections ...string) func() {
	unsubscribers := make([]func(), 0, len(collections))
	for _, collection := range collections {
		unsubscribers = append(unsubscribers, subscribe(collection, func(event domain.StorageEvent) {
			ctx := context.Background()
			if err := publisher.PublishStorageEvent(ctx, event); err != nil {
				slog.WarnContext(ctx, "failed to forward storage event",
					logging.ErrKey, err,
					"collection", event.Collection,
					"event_type", string(event.Type),
					"record_id", event.ID,
				)
			}
		}))
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}
