// Package service runs the ingest pipeline: admission, identity
// resolution, enrichment, encoding and the dual-bus publish.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/xray-tech/xorc-gateway/internal/apperr"
	"github.com/xray-tech/xorc-gateway/internal/bus"
	"github.com/xray-tech/xorc-gateway/internal/cors"
	"github.com/xray-tech/xorc-gateway/internal/crypto"
	"github.com/xray-tech/xorc-gateway/internal/event"
	"github.com/xray-tech/xorc-gateway/internal/metrics"
	"github.com/xray-tech/xorc-gateway/internal/registry"
	"github.com/xray-tech/xorc-gateway/internal/wire"
)

// DeviceResolver yields the stable device identity for a batch.
type DeviceResolver interface {
	Resolve(ctx context.Context, evctx *event.Context, device *event.Device, registering bool) (*event.DeviceID, error)
}

// Publisher sends the encoded batch downstream.
type Publisher interface {
	Publish(ctx context.Context, msg bus.Message) error
}

// IngestService processes one event batch end to end.
type IngestService struct {
	registry     *registry.Registry
	resolver     DeviceResolver
	encoder      *wire.Encoder
	publisher    Publisher
	cors         *cors.Policy
	cipher       *crypto.Cipher
	registerName string
	defaultToken string
	logger       *zap.Logger
}

// NewIngestService wires the pipeline.
func NewIngestService(
	reg *registry.Registry,
	resolver DeviceResolver,
	encoder *wire.Encoder,
	publisher Publisher,
	corsPolicy *cors.Policy,
	cipher *crypto.Cipher,
	registerName string,
	defaultToken string,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		registry:     reg,
		resolver:     resolver,
		encoder:      encoder,
		publisher:    publisher,
		cors:         corsPolicy,
		cipher:       cipher,
		registerName: registerName,
		defaultToken: defaultToken,
		logger:       logger,
	}
}

// Ingest validates, enriches, encodes and publishes the raw batch. The
// returned context is always usable for response headers and logging,
// even when the request fails early.
func (s *IngestService) Ingest(ctx context.Context, headers http.Header, raw []byte) (*event.Context, *event.Response, error) {
	// UseNumber keeps untyped property numbers as json.Number so values a
	// float64 cannot hold are dropped per property instead of failing the
	// whole batch.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var batch event.Batch
	if err := dec.Decode(&batch); err != nil || dec.More() {
		evctx := event.NewContext(headers, s.cipher, "", event.PlatformUnknown)
		return evctx, nil, apperr.ErrInvalidPayload
	}

	platform := batch.Device.ResolvePlatform()
	evctx := event.NewContext(headers, s.cipher, batch.Environment.AppID, platform)

	if platform == event.PlatformWeb && !s.cors.ValidOrigin(evctx.AppID, evctx.Origin) {
		return evctx, nil, apperr.ErrUnknownOrigin
	}

	if err := s.registry.Validate(evctx, raw, len(batch.Events)); err != nil {
		return evctx, nil, err
	}

	batch.Normalize()

	// Results acknowledge events in the order the SDK sent them, not in
	// the sorted wire order.
	inputOrder := make([]event.Event, len(batch.Events))
	copy(inputOrder, batch.Events)

	registering := batch.HasEvent(s.registerName)
	deviceID, err := s.resolver.Resolve(ctx, evctx, &batch.Device, registering)
	if err != nil {
		return evctx, nil, err
	}

	batch.SortEvents()
	payload := s.encoder.Encode(evctx, &batch, deviceID)

	msg := bus.Message{AppID: evctx.AppID, DeviceID: deviceID, Payload: payload}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		return evctx, nil, err
	}

	metrics.Events.Add(float64(len(batch.Events)))
	s.logger.Info("batch processed", append(evctx.ZapFields(),
		zap.Int("events", len(batch.Events)),
		zap.Bool("registration", registering))...)

	return evctx, s.response(evctx, inputOrder, deviceID), nil
}

// response acknowledges every event; the first register event carries the
// registration material exactly once.
func (s *IngestService) response(evctx *event.Context, events []event.Event, deviceID *event.DeviceID) *event.Response {
	resp := &event.Response{EventsStatus: make([]event.EventResult, 0, len(events))}

	registered := false
	for _, ev := range events {
		result := event.EventResult{ID: ev.ID, Status: event.StatusSuccess}

		if !registered && ev.Name == s.registerName && deviceID != nil {
			token := evctx.APIToken
			if token == "" {
				token = s.registry.TokenFor(evctx.AppID)
			}
			if token == "" {
				token = s.defaultToken
			}
			result.RegistrationData = &event.RegistrationData{
				APIToken: token,
				DeviceID: deviceID.Ciphertext,
			}
			registered = true
		}

		resp.EventsStatus = append(resp.EventsStatus, result)
	}

	return resp
}
