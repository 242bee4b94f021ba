package bus

import (
	"context"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xray-tech/xorc-gateway/internal/metrics"
)

// RabbitMQ publishes batches to the delivery exchange. The routing key
// shards devices into 256 buckets derived from the device id.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewRabbitMQ dials the broker and declares the exchange.
func NewRabbitMQ(url, exchange string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQ{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

// Name implements Publisher.
func (r *RabbitMQ) Name() string { return "rabbitmq" }

// RoutingKey maps a cleartext device UUID to one of 256 buckets by taking
// the four hex digits at positions 24 to 27 modulo 256. The second return
// is false when the id does not parse; such ids route to bucket "0".
func RoutingKey(deviceID string) (string, bool) {
	if len(deviceID) < 28 {
		return "0", false
	}
	bucket, err := strconv.ParseUint(deviceID[24:28], 16, 64)
	if err != nil {
		return "0", false
	}
	return strconv.FormatUint(bucket%256, 10), true
}

func (r *RabbitMQ) routingKey(msg Message) string {
	if msg.DeviceID == nil {
		return "0"
	}
	key, ok := RoutingKey(msg.DeviceID.Cleartext)
	if !ok {
		r.logger.Warn("unroutable device id, using bucket 0",
			zap.String("app_id", msg.AppID),
			zap.String("device_id", msg.DeviceID.Cleartext))
	}
	return key
}

// Publish implements Publisher.
func (r *RabbitMQ) Publish(ctx context.Context, msg Message) error {
	start := time.Now()
	err := r.channel.PublishWithContext(ctx, r.exchange, r.routingKey(msg), false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        msg.Payload,
	})
	metrics.RabbitMQLatency.Observe(time.Since(start).Seconds())
	return err
}

// Close shuts the channel and connection down.
func (r *RabbitMQ) Close() {
	_ = r.channel.Close()
	_ = r.conn.Close()
}
