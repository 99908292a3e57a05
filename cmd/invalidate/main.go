// Command invalidate publishes one cache invalidation event to Kafka, for
// operators and for driving the invalidation path in experiments.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
	"github.com/mohammed-shakir/meteo-query/internal/invalidation"
	"github.com/mohammed-shakir/meteo-query/internal/logger"
)

type options struct {
	brokers string
	topic   string
	op      string
	source  string
	version uint64
	shapes  string
	key     string
	cells   string
	bbox    string
	points  string
}

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func main() {
	var o options
	flag.StringVar(&o.brokers, "brokers", getenv("INVALIDATION_BROKERS", getenv("KAFKA_BROKERS", "localhost:9092")), "comma separated Kafka brokers")
	flag.StringVar(&o.topic, "topic", getenv("INVALIDATION_TOPIC", "meteo-invalidation"), "invalidation topic")
	flag.StringVar(&o.op, "op", invalidation.OpRefresh, "refresh|purge")
	flag.StringVar(&o.source, "source", "manual", "event source, versions are ordered per source")
	flag.Uint64Var(&o.version, "version", 0, "event version (0 skips ordering)")
	flag.StringVar(&o.shapes, "shapes", "", "comma separated query shapes (empty means all)")
	flag.StringVar(&o.key, "key", "", "exact cache key")
	flag.StringVar(&o.cells, "cells", "", "comma separated H3 cells")
	flag.StringVar(&o.bbox, "bbox", "", "lat_min,lon_min,lat_max,lon_max")
	flag.StringVar(&o.points, "points", "", "lat,lon pairs joined with +")
	flag.Parse()

	zl := logger.Build(logger.Config{Level: "info", Component: "invalidate", Console: true}, os.Stderr)
	ev, err := buildEvent(o, time.Now())
	if err != nil {
		zl.Fatal().Err(err).Msg("invalid event")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "meteo-query-invalidate"
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	prod, err := sarama.NewSyncProducer(splitList(o.brokers, ","), cfg)
	if err != nil {
		zl.Fatal().Err(err).Msg("producer create")
	}
	err = publish(prod, o.topic, ev, zl)
	_ = prod.Close()
	if err != nil {
		zl.Fatal().Err(err).Msg("publish failed")
	}
}

// publish sends ev keyed by its source so one source's events stay ordered
// within a partition.
func publish(prod sarama.SyncProducer, topic string, ev invalidation.Event, log zerolog.Logger) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.Source),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := prod.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	log.Info().
		Str("topic", topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Str("op", ev.Op).
		Str("source", ev.Source).
		Uint64("version", ev.Version).
		Msg("published invalidation")
	return nil
}

func buildEvent(o options, now time.Time) (invalidation.Event, error) {
	ev := invalidation.Event{
		Version: o.version,
		Op:      strings.ToLower(strings.TrimSpace(o.op)),
		Source:  strings.TrimSpace(o.source),
		TS:      now.UTC(),
		Shapes:  splitList(o.shapes, ","),
		Key:     strings.TrimSpace(o.key),
		Cells:   splitList(o.cells, ","),
	}
	if o.bbox != "" {
		v, err := floats(o.bbox, 4)
		if err != nil {
			return invalidation.Event{}, fmt.Errorf("bbox: %w", err)
		}
		ev.BBox = &invalidation.BBox{LatMin: v[0], LonMin: v[1], LatMax: v[2], LonMax: v[3]}
	}
	for _, raw := range splitList(o.points, "+") {
		v, err := floats(raw, 2)
		if err != nil {
			return invalidation.Event{}, fmt.Errorf("point %q: %w", raw, err)
		}
		ev.Points = append(ev.Points, model.Point{Lat: v[0], Lon: v[1]})
	}
	if err := ev.Validate(); err != nil {
		return invalidation.Event{}, err
	}
	return ev, nil
}

func floats(raw string, n int) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated numbers, got %q", n, raw)
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", p, err)
		}
		out[i] = f
	}
	return out, nil
}

func splitList(raw, sep string) []string {
	var out []string
	for p := range strings.SplitSeq(raw, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
