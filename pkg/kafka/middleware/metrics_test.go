package kafka_middleware

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"deskhive/pkg/kafka"
	"deskhive/pkg/logger"
)

func testMessage() kafka.Message {
	return kafka.Message{
		Key:     "branch-1",
		Value:   []byte(`{"ok":true}`),
		Headers: map[string]string{},
		Topic:   "test-topic",
	}
}

func publishOK(_ context.Context, _ kafka.Message) error { return nil }

func TestMetricsCountPublishes(t *testing.T) {
	m := NewMetrics()
	mw := m.ProducerMiddleware()

	slowOK := func(_ context.Context, _ kafka.Message) error {
		time.Sleep(time.Millisecond)
		return nil
	}
	if err := mw(context.Background(), testMessage(), slowOK); err != nil {
		t.Fatalf("middleware failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := mw(context.Background(), testMessage(), publishOK); err != nil {
			t.Fatalf("middleware failed: %v", err)
		}
	}

	failure := errors.New("broker down")
	err := mw(context.Background(), testMessage(), func(_ context.Context, _ kafka.Message) error {
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the publish error back, got %v", err)
	}

	if got := atomic.LoadInt64(&m.MessagesPublished); got != 3 {
		t.Errorf("expected 3 published, got %d", got)
	}
	if got := atomic.LoadInt64(&m.MessagesPublishedFailed); got != 1 {
		t.Errorf("expected 1 failed publish, got %d", got)
	}
	if m.AvgPublishDuration() <= 0 {
		t.Error("expected a positive average publish duration")
	}
}

func TestMetricsCountDeliveries(t *testing.T) {
	m := NewMetrics()
	mw := m.ConsumerMiddleware()

	handled := func(_ context.Context, _ kafka.Message) error { return nil }
	failing := func(_ context.Context, _ kafka.Message) error { return errors.New("bad payload") }

	if err := mw(context.Background(), testMessage(), handled); err != nil {
		t.Fatalf("middleware failed: %v", err)
	}
	if err := mw(context.Background(), testMessage(), failing); err == nil {
		t.Fatal("expected the handler error back")
	}

	if got := atomic.LoadInt64(&m.MessagesConsumed); got != 1 {
		t.Errorf("expected 1 consumed, got %d", got)
	}
	if got := atomic.LoadInt64(&m.MessagesConsumedFailed); got != 1 {
		t.Errorf("expected 1 failed delivery, got %d", got)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	mw := m.ProducerMiddleware()

	if err := mw(context.Background(), testMessage(), publishOK); err != nil {
		t.Fatalf("middleware failed: %v", err)
	}
	m.Reset()

	if got := atomic.LoadInt64(&m.MessagesPublished); got != 0 {
		t.Errorf("expected counters back at zero, got %d", got)
	}
	if m.AvgPublishDuration() != 0 {
		t.Errorf("expected zero average after reset, got %v", m.AvgPublishDuration())
	}
}

func TestLoggingMiddlewarePassesErrorsThrough(t *testing.T) {
	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Output: io.Discard})

	failure := errors.New("broker down")
	prodErr := LoggingProducerMiddleware(log)(context.Background(), testMessage(), func(_ context.Context, _ kafka.Message) error {
		return failure
	})
	if !errors.Is(prodErr, failure) {
		t.Errorf("expected the publish error back, got %v", prodErr)
	}

	consErr := LoggingConsumerMiddleware(log)(context.Background(), testMessage(), func(_ context.Context, _ kafka.Message) error {
		return failure
	})
	if !errors.Is(consErr, failure) {
		t.Errorf("expected the handler error back, got %v", consErr)
	}
}
