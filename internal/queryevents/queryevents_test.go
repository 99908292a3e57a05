package queryevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/meteo-query/internal/logger"
	"github.com/mohammed-shakir/meteo-query/pkg/meteo"
)

func decodeEvent(msg *sarama.ProducerMessage) (Event, error) {
	var ev Event
	b, err := msg.Value.Encode()
	if err != nil {
		return ev, err
	}
	return ev, json.Unmarshal(b, &ev)
}

func TestHook_PublishesQueryEvent(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "meteo-queries" {
			return fmt.Errorf("topic = %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != meteo.ShapeTimeSeries {
			return fmt.Errorf("key = %q", key)
		}
		ev, err := decodeEvent(msg)
		if err != nil {
			return err
		}
		if _, err := uuid.Parse(ev.ID); err != nil {
			return fmt.Errorf("id %q: %w", ev.ID, err)
		}
		if ev.Outcome != "ok" || ev.Bytes != 42 || ev.RequestID != "req-7" || ev.Scenario != "cache" || ev.DurationMS != 12.5 {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})

	p := newPublisher(mp, "meteo-queries", 4, nil)
	ctx := logger.WithRequestID(context.Background(), "req-7")
	p.Hook("cache")(ctx, meteo.QueryEvent{
		Shape:    meteo.ShapeTimeSeries,
		Target:   "/2024-01-01T00:00:00Z/t_2m:C/52.52,13.405/csv",
		Duration: 12500 * time.Microsecond,
		Bytes:    42,
	})

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestHook_FailureCarriesOutcomeAndError(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		ev, err := decodeEvent(msg)
		if err != nil {
			return err
		}
		if ev.Outcome != "decode_error" || ev.Error == "" {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})

	p := newPublisher(mp, "meteo-queries", 4, nil)
	p.Hook("")(context.Background(), meteo.QueryEvent{
		Shape: meteo.ShapeGridPivoted,
		Err:   fmt.Errorf("%w: bad header", meteo.ErrDecode),
	})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPublish_ProducerErrorDoesNotBlock(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputAndFail(errors.New("broker down"))
	mp.ExpectInputAndSucceed()

	p := newPublisher(mp, "meteo-queries", 4, nil)
	p.Publish(Event{Shape: meteo.ShapeRoute})
	p.Publish(Event{Shape: meteo.ShapeRoute})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewPublisher_RequiresBrokers(t *testing.T) {
	if _, err := NewPublisher(nil, "meteo-queries", 0, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
