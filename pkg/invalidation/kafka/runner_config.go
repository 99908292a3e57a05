package kafka

import (
	"os"
	"strings"
	"time"
)

type Driver string

const (
	DriverNone  Driver = "none"
	DriverKafka Driver = "kafka"
)

type InvalidationConfig struct {
	Enabled bool
	Driver  Driver

	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
}

// Active reports whether a runner built from c consumes anything.
func (c InvalidationConfig) Active() bool {
	return c.Enabled && c.Driver == DriverKafka
}

func FromEnv() InvalidationConfig {
	enabled := strings.ToLower(os.Getenv("INVALIDATION_ENABLED")) == "true"
	driver := Driver(strings.TrimSpace(os.Getenv("INVALIDATION_DRIVER")))
	if driver == "" {
		driver = DriverKafka
	}
	brokers := strings.TrimSpace(os.Getenv("INVALIDATION_BROKERS"))
	if brokers == "" {
		brokers = strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	}
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := strings.TrimSpace(os.Getenv("INVALIDATION_TOPIC"))
	if topic == "" {
		topic = "meteo-invalidation"
	}
	group := strings.TrimSpace(os.Getenv("INVALIDATION_GROUP_ID"))
	if group == "" {
		group = "meteo-gateway"
	}

	return InvalidationConfig{
		Enabled:          enabled,
		Driver:           driver,
		Brokers:          split(brokers),
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    false,
	}
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
