package wire

import (
	"math"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xray-tech/xorc-gateway/internal/config"
	"github.com/xray-tech/xorc-gateway/internal/crypto"
	"github.com/xray-tech/xorc-gateway/internal/event"
)

// field is a decoded protowire field: either a scalar or raw bytes.
type field struct {
	varint uint64
	fixed  uint64
	bytes  []byte
}

// decodeFields parses a wire message into field-number-keyed slices.
func decodeFields(t *testing.T, b []byte) map[protowire.Number][]field {
	t.Helper()

	out := map[protowire.Number][]field{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.NoError(t, protowire.ParseError(n))
		b = b[n:]

		var f field
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			require.NoError(t, protowire.ParseError(n))
			f.varint = v
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			require.NoError(t, protowire.ParseError(n))
			f.fixed = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			require.NoError(t, protowire.ParseError(n))
			f.bytes = v
			b = b[n:]
		default:
			t.Fatalf("unexpected wire type %v", typ)
		}
		out[num] = append(out[num], f)
	}
	return out
}

func str(t *testing.T, fields map[protowire.Number][]field, num protowire.Number) string {
	t.Helper()
	require.Len(t, fields[num], 1, "field %d", num)
	return string(fields[num][0].bytes)
}

type staticGeo struct{ country string }

func (g staticGeo) Country(netip.Addr) string { return g.country }

func testEncoder(t *testing.T, country string) *Encoder {
	t.Helper()

	enc := NewEncoder(config.Events{
		Feed:               "360dialog",
		RegisterName:       "d360_register",
		LegacyDeeplinkName: "d360_DeeplinkOpened",
		DeeplinkName:       "d360_deeplink_opened",
	}, staticGeo{country: country}, zaptest.NewLogger(t))
	enc.now = func() time.Time { return time.UnixMilli(1527092525607) }
	return enc
}

func testContext(t *testing.T, headers map[string]string) *event.Context {
	t.Helper()

	cipher, err := crypto.NewCipher(crypto.DevSecret())
	require.NoError(t, err)

	h := http.Header{}
	for key, value := range headers {
		h.Set(key, value)
	}
	return event.NewContext(h, cipher, "1", event.PlatformIOS)
}

func TestEncodeHeader(t *testing.T) {
	enc := testEncoder(t, "")
	evctx := testContext(t, nil)

	batch := &event.Batch{Environment: event.Environment{AppID: "1"}}
	deviceID := &event.DeviceID{Cleartext: "8f7f5c07-5eb2-4695-870c-065d886cdc9e"}

	fields := decodeFields(t, enc.Encode(evctx, batch, deviceID))
	header := decodeFields(t, fields[batchHeader][0].bytes)

	assert.Equal(t, uint64(1527092525607), header[headerCreatedAt][0].varint)
	assert.Equal(t, "1", str(t, header, headerSource))
	assert.Equal(t, "events.SDKEventBatch", str(t, header, headerType))
	assert.Equal(t, "360dialog", str(t, header, headerFeed))
	assert.Equal(t, "8f7f5c07-5eb2-4695-870c-065d886cdc9e", str(t, header, headerRecipientID))
}

func TestEncodeHeaderWithoutDevice(t *testing.T) {
	enc := testEncoder(t, "")
	fields := decodeFields(t, enc.Encode(testContext(t, nil), &event.Batch{}, nil))
	header := decodeFields(t, fields[batchHeader][0].bytes)

	assert.Empty(t, header[headerRecipientID])
	assert.Equal(t, "1", str(t, header, headerSource))
}

func TestEncodeEnvironment(t *testing.T) {
	enc := testEncoder(t, "")
	batch := &event.Batch{Environment: event.Environment{
		AppID:      "420",
		SDKVersion: "1.2.3",
		AppVersion: "4.5.6",
	}}

	fields := decodeFields(t, enc.Encode(testContext(t, nil), batch, nil))
	env := decodeFields(t, fields[batchEnvironment][0].bytes)

	assert.Equal(t, "420", str(t, env, envAppID))
	assert.Equal(t, "1.2.3", str(t, env, envSDKVersion))
	assert.Equal(t, "4.5.6", str(t, env, envAppVersion))
	assert.Empty(t, env[envAppStoreID])
}

func TestEncodeDeviceDefaults(t *testing.T) {
	enc := testEncoder(t, "")
	fields := decodeFields(t, enc.Encode(testContext(t, nil), &event.Batch{}, nil))
	device := decodeFields(t, fields[batchDevice][0].bytes)

	// Missing dimensions encode as -1, never zero.
	assert.Equal(t, int64(-1), int64(device[deviceH][0].varint))
	assert.Equal(t, int64(-1), int64(device[deviceW][0].varint))
	assert.Equal(t, uint64(0), device[deviceIFATracking][0].varint)
	assert.Empty(t, device[deviceLanguage])
	assert.Empty(t, device[deviceIPHash])
	assert.Empty(t, device[deviceCountry])
}

func TestEncodeDeviceEnrichment(t *testing.T) {
	enc := testEncoder(t, "DE")
	evctx := testContext(t, map[string]string{event.HeaderRealIP: "109.68.226.154"})

	h, w := int32(1334), int32(750)
	batch := &event.Batch{Device: event.Device{
		IFATrackingEnabled: true,
		H:                  &h,
		W:                  &w,
		Locale:             "fi_FI",
		OSName:             "iOS",
		CarrierName:        "Elisa",
		CarrierCountry:     "244",
		BrowserName:        "Firefox",
		BrowserVersion:     "61.0",
	}}

	fields := decodeFields(t, enc.Encode(evctx, batch, nil))
	device := decodeFields(t, fields[batchDevice][0].bytes)

	assert.Equal(t, "ios", str(t, device, devicePlatform))
	assert.Equal(t, "fi", str(t, device, deviceLanguage))
	assert.Equal(t, "fi_FI", str(t, device, deviceLocale))
	assert.Equal(t, int64(1334), int64(device[deviceH][0].varint))
	assert.Equal(t, int64(750), int64(device[deviceW][0].varint))
	assert.Equal(t, uint64(1), device[deviceIFATracking][0].varint)

	assert.Equal(
		t,
		"KOx83wHFu0JCTyitEEfU0+J0GWN5OxtXgMeIzDUinonr8ya0IY5VyYtrbDu8tRlBSo/a1T70lQ3uYcnSRYiR8w==",
		str(t, device, deviceIPHash),
	)
	assert.Equal(t, "DE", str(t, device, deviceCountry))

	carrier := decodeFields(t, device[deviceCarrier][0].bytes)
	assert.Equal(t, "Elisa", str(t, carrier, carrierNameField))
	assert.Equal(t, "244", str(t, carrier, carrierMCC))

	browser := decodeFields(t, device[deviceBrowser][0].bytes)
	assert.Equal(t, "Firefox", str(t, browser, browserNameField))
	assert.Equal(t, "61.0", str(t, browser, browserVersionField))
}

func TestEncodeEvents(t *testing.T) {
	enc := testEncoder(t, "")
	control := int32(1)
	batch := &event.Batch{Events: []event.Event{
		{
			ID:        "5",
			Name:      "d360_register",
			Timestamp: "1527092525607",
			SessionID: "session-1",
			Properties: map[string]interface{}{
				"foo": "bar",
				"nested": map[string]interface{}{
					"depth": float64(2),
					"leaf":  true,
				},
			},
		},
		{
			ID:               "6",
			Name:             "d360_DeeplinkOpened",
			IsInControlGroup: &control,
		},
	}}

	fields := decodeFields(t, enc.Encode(testContext(t, nil), batch, nil))
	require.Len(t, fields[batchEvent], 2)

	first := decodeFields(t, fields[batchEvent][0].bytes)
	assert.Equal(t, "5", str(t, first, eventID))
	assert.Equal(t, "d360_register", str(t, first, eventName))
	assert.Equal(t, "1527092525607", str(t, first, eventTimestamp))
	assert.Equal(t, "session-1", str(t, first, eventSessionID))

	require.Len(t, first[eventProperties], 3)
	props := map[string]field{}
	for _, raw := range first[eventProperties] {
		p := decodeFields(t, raw.bytes)
		props[str(t, p, propKey)] = field{
			varint: varintOrZero(p, propBoolValue),
			fixed:  fixedOrZero(p, propNumberValue),
			bytes:  bytesOrNil(p, propStringValue),
		}
	}
	assert.Equal(t, "bar", string(props["foo"].bytes))
	assert.Equal(t, 2.0, math.Float64frombits(props["nested__depth"].fixed))
	assert.Equal(t, uint64(1), props["nested__leaf"].varint)

	// The legacy deeplink name is rewritten on the wire.
	second := decodeFields(t, fields[batchEvent][1].bytes)
	assert.Equal(t, "d360_deeplink_opened", str(t, second, eventName))
	assert.Equal(t, uint64(1), second[eventControlGroup][0].varint)
}

func varintOrZero(fields map[protowire.Number][]field, num protowire.Number) uint64 {
	if len(fields[num]) == 0 {
		return 0
	}
	return fields[num][0].varint
}

func fixedOrZero(fields map[protowire.Number][]field, num protowire.Number) uint64 {
	if len(fields[num]) == 0 {
		return 0
	}
	return fields[num][0].fixed
}

func bytesOrNil(fields map[protowire.Number][]field, num protowire.Number) []byte {
	if len(fields[num]) == 0 {
		return nil
	}
	return fields[num][0].bytes
}
