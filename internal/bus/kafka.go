package bus

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/xray-tech/xorc-gateway/internal/metrics"
)

// Kafka publishes batches to the event log topic. Records for the same
// device land on the same partition; records without a device identity
// are keyed nil and spread round-robin.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// NewKafka connects to the brokers.
func NewKafka(brokers []string, topic string, logger *zap.Logger) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	return &Kafka{client: client, topic: topic, logger: logger}, nil
}

// Name implements Publisher.
func (k *Kafka) Name() string { return "kafka" }

// PartitionKey renders the record key: "<app_id>|<cleartext device id>",
// or nil without a device identity.
func PartitionKey(msg Message) []byte {
	if msg.DeviceID == nil {
		return nil
	}
	return []byte(msg.AppID + "|" + msg.DeviceID.Cleartext)
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, msg Message) error {
	record := &kgo.Record{
		Topic: k.topic,
		Key:   PartitionKey(msg),
		Value: msg.Payload,
	}

	start := time.Now()
	err := k.client.ProduceSync(ctx, record).FirstErr()
	metrics.KafkaLatency.Observe(time.Since(start).Seconds())
	return err
}

// Close flushes buffered records and drops the connection.
func (k *Kafka) Close() {
	k.client.Close()
}
