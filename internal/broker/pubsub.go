package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/johndosdos/claudespark/internal/metrics"
	"github.com/johndosdos/claudespark/internal/model"
)

// Feed carries insert notifications of persisted messages. Delivery is
// at-least-once and unordered across viewers.
type Feed interface {
	Publish(ctx context.Context, msg model.Message) error
	// Subscribe calls handler for every message published after the call,
	// until ctx is done.
	Subscribe(ctx context.Context, handler func(model.Message)) error
}

// Publisher publishes payload on its viewer's subject. The message ID is the
// JetStream dedupe key, so a retried publish is stored once.
func Publisher(ctx context.Context, js jetstream.JetStream, payload model.Message) (uint64, error) {
	if js == nil {
		return 0, fmt.Errorf("jetstream interface is nil")
	}
	if !payload.Confirmed() {
		return 0, fmt.Errorf("refusing to publish unpersisted message")
	}

	p, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("could not encode payload to JSON: %w", err)
	}

	subject := SubjectForViewer(payload.ViewerID)
	pubAck, err := js.Publish(ctx,
		subject,
		p,
		jetstream.WithMsgID(strconv.FormatInt(payload.ID, 10)),
	)
	if err != nil {
		metrics.FeedPublishes.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to publish to stream [%s]: %w", subject, err)
	}
	metrics.FeedPublishes.WithLabelValues("ok").Inc()

	return pubAck.Sequence, nil
}

// Subscriber consumes every viewer subject from now on and hands each
// decoded message to handler.
func Subscriber(ctx context.Context, stream jetstream.Stream, handler func(model.Message)) error {
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject:     SubjectAllViewers,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		InactiveThreshold: 5 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update consumer: %w", err)
	}

	consumeHandler := func(msg jetstream.Msg) {
		var payload model.Message

		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			_ = msg.Term()
			slog.Warn("could not decode payload",
				slog.String("subject", msg.Subject()),
				slog.Any("error", err))
			return
		}

		_ = msg.Ack()

		handler(payload)
	}

	optErrHandler := jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		slog.Warn("consumer error", slog.Any("error", err))
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func(ctx context.Context, consumeCtx jetstream.ConsumeContext) {
		<-ctx.Done()
		consumeCtx.Drain()
	}(ctx, consumeCtx)

	return nil
}

// JetStream is a Feed backed by a NATS JetStream stream.
type JetStream struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewJetStream creates or updates the message stream.
func NewJetStream(ctx context.Context, js jetstream.JetStream) (*JetStream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAllViewers},
		MaxBytes: 1 << 30, // 1GB max storage
		MaxAge:   24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &JetStream{js: js, stream: stream}, nil
}

func (j *JetStream) Publish(ctx context.Context, msg model.Message) error {
	_, err := Publisher(ctx, j.js, msg)
	return err
}

func (j *JetStream) Subscribe(ctx context.Context, handler func(model.Message)) error {
	return Subscriber(ctx, j.stream, handler)
}
