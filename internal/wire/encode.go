// Package wire encodes enriched event batches into the protobuf messages
// the downstream buses consume. The schema lives in proto/events; the
// encoder writes it field by field with protowire so the repo carries no
// generated code.
package wire

import (
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xray-tech/xorc-gateway/internal/config"
	"github.com/xray-tech/xorc-gateway/internal/crypto"
	"github.com/xray-tech/xorc-gateway/internal/event"
	"github.com/xray-tech/xorc-gateway/internal/geo"
)

// batchType tags every published message for downstream consumers.
const batchType = "events.SDKEventBatch"

// Field numbers from proto/events. Keep in sync with the schema files.
const (
	batchHeader      = 1
	batchEnvironment = 2
	batchDevice      = 3
	batchEvent       = 4

	headerCreatedAt   = 1
	headerSource      = 2
	headerType        = 3
	headerFeed        = 4
	headerRecipientID = 5

	envAppID         = 1
	envSDKVersion    = 2
	envAppVersion    = 3
	envAppStoreID    = 4
	envAppInstanceID = 5

	devicePlatform         = 1
	deviceLocale           = 2
	deviceLanguage         = 3
	deviceTimezone         = 4
	deviceManufacturer     = 5
	deviceModel            = 6
	deviceOSV              = 7
	deviceOS               = 8
	deviceConnectionType   = 9
	deviceIFA              = 10
	deviceIDFV             = 11
	deviceNotifTypes       = 12
	deviceOrientation      = 13
	deviceH                = 14
	deviceW                = 15
	deviceIFATracking      = 16
	deviceNotifRegistered  = 17
	deviceCarrier          = 18
	deviceBrowser          = 19
	deviceIPHash           = 20
	deviceCountry          = 21
	deviceName             = 22

	carrierNameField = 1
	carrierMCC       = 2

	browserNameField    = 1
	browserUAField      = 2
	browserVersionField = 3

	eventID             = 1
	eventSessionID      = 2
	eventTimestamp      = 3
	eventName           = 4
	eventExternalUserID = 5
	eventReferenceID    = 6
	eventControlGroup   = 7
	eventProperties     = 8

	propKey         = 1
	propStringValue = 2
	propNumberValue = 3
	propBoolValue   = 4
)

// Encoder turns a validated batch plus its resolved identity into the
// downstream wire image, applying the documented enrichment on the way.
type Encoder struct {
	feed           string
	legacyDeeplink string
	deeplinkName   string
	geo            geo.Resolver
	logger         *zap.Logger
	now            func() time.Time
}

// NewEncoder builds an encoder with the configured feed tag and reserved
// event names.
func NewEncoder(events config.Events, resolver geo.Resolver, logger *zap.Logger) *Encoder {
	return &Encoder{
		feed:           events.Feed,
		legacyDeeplink: events.LegacyDeeplinkName,
		deeplinkName:   events.DeeplinkName,
		geo:            resolver,
		logger:         logger,
		now:            time.Now,
	}
}

// Encode renders the batch. Events must already be normalized and sorted.
func (e *Encoder) Encode(evctx *event.Context, batch *event.Batch, deviceID *event.DeviceID) []byte {
	var b []byte
	b = appendSubmessage(b, batchHeader, e.encodeHeader(evctx, deviceID))
	b = appendSubmessage(b, batchEnvironment, encodeEnvironment(&batch.Environment))
	b = appendSubmessage(b, batchDevice, e.encodeDevice(evctx, &batch.Device))
	for i := range batch.Events {
		b = appendSubmessage(b, batchEvent, e.encodeEvent(&batch.Events[i]))
	}
	return b
}

func (e *Encoder) encodeHeader(evctx *event.Context, deviceID *event.DeviceID) []byte {
	var b []byte
	b = appendInt64(b, headerCreatedAt, e.now().UnixMilli())
	b = appendString(b, headerSource, evctx.AppID)
	b = appendString(b, headerType, batchType)
	b = appendString(b, headerFeed, e.feed)
	if deviceID != nil {
		b = appendString(b, headerRecipientID, deviceID.Cleartext)
	}
	return b
}

func encodeEnvironment(env *event.Environment) []byte {
	var b []byte
	b = appendString(b, envAppID, env.AppID)
	b = appendOptString(b, envSDKVersion, env.SDKVersion)
	b = appendOptString(b, envAppVersion, env.AppVersion)
	b = appendOptString(b, envAppStoreID, env.AppStoreID)
	b = appendOptString(b, envAppInstanceID, env.AppInstanceID)
	return b
}

func (e *Encoder) encodeDevice(evctx *event.Context, device *event.Device) []byte {
	var b []byte
	b = appendString(b, devicePlatform, device.ResolvePlatform().String())
	b = appendOptString(b, deviceLocale, device.Locale)
	b = appendOptString(b, deviceLanguage, device.ResolveLanguage())
	b = appendOptString(b, deviceTimezone, device.TimeZone)
	b = appendOptString(b, deviceManufacturer, device.Manufacturer)
	b = appendOptString(b, deviceModel, device.Model)
	b = appendOptString(b, deviceOSV, device.OSVersion)
	b = appendOptString(b, deviceOS, device.OSName)
	b = appendOptString(b, deviceConnectionType, device.NetworkConnectionType)
	b = appendOptString(b, deviceIFA, device.IFA)
	b = appendOptString(b, deviceIDFV, device.IDFV)
	if device.NotificationTypes != nil {
		b = appendInt32(b, deviceNotifTypes, *device.NotificationTypes)
	}
	b = appendOptString(b, deviceOrientation, device.Orientation)
	b = appendInt32(b, deviceH, orNegativeOne(device.H))
	b = appendInt32(b, deviceW, orNegativeOne(device.W))
	b = appendBool(b, deviceIFATracking, device.IFATrackingEnabled)
	b = appendBool(b, deviceNotifRegistered, device.NotificationRegistered)

	if device.CarrierName != "" || device.CarrierCountry != "" {
		var carrier []byte
		carrier = appendOptString(carrier, carrierNameField, device.CarrierName)
		carrier = appendOptString(carrier, carrierMCC, device.CarrierCountry)
		b = appendSubmessage(b, deviceCarrier, carrier)
	}

	if device.BrowserName != "" || device.BrowserUA != "" || device.BrowserVersion != "" {
		var browser []byte
		browser = appendOptString(browser, browserNameField, device.BrowserName)
		browser = appendOptString(browser, browserUAField, device.BrowserUA)
		browser = appendOptString(browser, browserVersionField, device.BrowserVersion)
		b = appendSubmessage(b, deviceBrowser, browser)
	}

	if evctx.IP.IsValid() {
		b = appendString(b, deviceIPHash, crypto.HashIP(evctx.IP.String()))
		b = appendOptString(b, deviceCountry, e.geo.Country(evctx.IP))
	}

	b = appendOptString(b, deviceName, device.DeviceName)
	return b
}

func (e *Encoder) encodeEvent(ev *event.Event) []byte {
	name := ev.Name
	if name == e.legacyDeeplink {
		name = e.deeplinkName
	}

	var b []byte
	b = appendString(b, eventID, ev.ID)
	b = appendOptString(b, eventSessionID, ev.SessionID)
	b = appendOptString(b, eventTimestamp, ev.Timestamp)
	b = appendOptString(b, eventName, name)
	b = appendOptString(b, eventExternalUserID, ev.ExternalUserID)
	b = appendOptString(b, eventReferenceID, ev.ReferenceID)
	if ev.IsInControlGroup != nil {
		b = appendInt32(b, eventControlGroup, *ev.IsInControlGroup)
	}

	for _, prop := range event.FlattenProperties(ev.Properties, e.logger) {
		var p []byte
		p = appendString(p, propKey, prop.Key)
		switch prop.Kind {
		case event.PropertyString:
			p = appendString(p, propStringValue, prop.String)
		case event.PropertyNumber:
			p = appendTag(p, propNumberValue, protowire.Fixed64Type)
			p = protowire.AppendFixed64(p, math.Float64bits(prop.Number))
		case event.PropertyBool:
			p = appendBool(p, propBoolValue, prop.Bool)
		}
		b = appendSubmessage(b, eventProperties, p)
	}
	return b
}

func orNegativeOne(v *int32) int32 {
	if v == nil {
		return -1
	}
	return *v
}

func appendTag(b []byte, num protowire.Number, typ protowire.Type) []byte {
	return protowire.AppendTag(b, num, typ)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = appendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendOptString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	return appendString(b, num, s)
}

func appendSubmessage(b []byte, num protowire.Number, sub []byte) []byte {
	b = appendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	b = appendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendInt64(b, num, int64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	b = appendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}
