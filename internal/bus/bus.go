// Package bus publishes encoded batches to the two downstream systems:
// the Kafka event log and the RabbitMQ delivery exchange. A batch is
// published to both in parallel.
package bus

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xray-tech/xorc-gateway/internal/apperr"
	"github.com/xray-tech/xorc-gateway/internal/event"
)

// Message is one encoded batch with the identity the brokers key on.
type Message struct {
	AppID    string
	DeviceID *event.DeviceID
	Payload  []byte
}

// Publisher sends a message to one downstream system.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Name() string
}

// Dual fans a message out to the event log and the delivery exchange in
// parallel. With RequireBoth any failure fails the batch; without it the
// event log is best effort and only a delivery-exchange failure fails it.
type Dual struct {
	log         Publisher
	delivery    Publisher
	timeout     time.Duration
	requireBoth bool
	logger      *zap.Logger
}

// NewDual wires the fan-out.
func NewDual(log, delivery Publisher, timeout time.Duration, requireBoth bool, logger *zap.Logger) *Dual {
	return &Dual{
		log:         log,
		delivery:    delivery,
		timeout:     timeout,
		requireBoth: requireBoth,
		logger:      logger,
	}
}

// Publish sends to both buses within the configured timeout.
func (d *Dual) Publish(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var logErr, deliveryErr error
	g := &errgroup.Group{}
	g.Go(func() error {
		logErr = d.publish(ctx, d.log, msg)
		return nil
	})
	g.Go(func() error {
		deliveryErr = d.publish(ctx, d.delivery, msg)
		return nil
	})
	_ = g.Wait()

	if deliveryErr != nil || (d.requireBoth && logErr != nil) {
		return apperr.Unavailable("bus publish failed")
	}
	return nil
}

func (d *Dual) publish(ctx context.Context, pub Publisher, msg Message) error {
	err := pub.Publish(ctx, msg)
	if err != nil {
		d.logger.Error("bus publish failed",
			zap.String("bus", pub.Name()),
			zap.String("app_id", msg.AppID),
			zap.Error(err))
	}
	return err
}
