package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestResolvePlatform(t *testing.T) {
	tests := []struct {
		name     string
		device   Device
		expected Platform
	}{
		{"explicit ios", Device{Platform: "ios"}, PlatformIOS},
		{"explicit android", Device{Platform: "android"}, PlatformAndroid},
		{"explicit web", Device{Platform: "web"}, PlatformWeb},
		{"explicit wins over os_name", Device{Platform: "web", OSName: "iOS"}, PlatformWeb},
		{"os_name iOS", Device{OSName: "iOS"}, PlatformIOS},
		{"os_name iPhone OS", Device{OSName: "iPhone OS"}, PlatformIOS},
		{"os_name Android", Device{OSName: "Android"}, PlatformAndroid},
		{"os_name unknown", Device{OSName: "Symbian"}, PlatformUnknown},
		{"nothing", Device{}, PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.device.ResolvePlatform())
		})
	}
}

func TestResolveLanguage(t *testing.T) {
	assert.Equal(t, "fi", (&Device{Language: "fi"}).ResolveLanguage())
	assert.Equal(t, "fi", (&Device{Locale: "fi_FI"}).ResolveLanguage())
	assert.Equal(t, "de", (&Device{Language: "de", Locale: "fi_FI"}).ResolveLanguage())
	assert.Equal(t, "", (&Device{Locale: "kulli"}).ResolveLanguage())
	assert.Equal(t, "", (&Device{}).ResolveLanguage())
}

func TestNormalizeDefaultsEventID(t *testing.T) {
	batch := Batch{Events: []Event{{Name: "a"}, {ID: "E1", Name: "b"}}}
	batch.Normalize()

	assert.Equal(t, "0", batch.Events[0].ID)
	assert.Equal(t, "E1", batch.Events[1].ID)
}

func TestSortEventsStable(t *testing.T) {
	batch := Batch{Events: []Event{
		{ID: "c", Timestamp: "3000"},
		{ID: "a1", Timestamp: "1000"},
		{ID: "a2", Timestamp: "1000"},
		{ID: "b", Timestamp: "2000"},
		{ID: "x", Timestamp: "not-a-number"},
	}}

	batch.SortEvents()

	ids := make([]string, 0, len(batch.Events))
	for _, ev := range batch.Events {
		ids = append(ids, ev.ID)
	}

	// Unparsable timestamps sort first as zero; equal timestamps keep input order.
	assert.Equal(t, []string{"x", "a1", "a2", "b", "c"}, ids)
}

func TestHasEvent(t *testing.T) {
	batch := Batch{Events: []Event{{Name: "d360_app_open"}, {Name: "d360_register"}}}

	assert.True(t, batch.HasEvent("d360_register"))
	assert.False(t, batch.HasEvent("d360_app_close"))
}

func TestBatchJSONDecoding(t *testing.T) {
	body := `{
		"environment": {"app_id": "420", "sdk_version": "1.0.1"},
		"device": {"platform": "android", "ifa_tracking_enabled": true, "h": 1920},
		"events": [{"id": "E1", "timestamp": "1500000000000", "name": "d360_app_open", "properties": {"cold_start": true}}]
	}`

	var batch Batch
	require.NoError(t, json.Unmarshal([]byte(body), &batch))

	assert.Equal(t, "420", batch.Environment.AppID)
	assert.True(t, batch.Device.IFATrackingEnabled)
	require.NotNil(t, batch.Device.H)
	assert.Equal(t, int32(1920), *batch.Device.H)
	assert.Nil(t, batch.Device.W)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, "d360_app_open", batch.Events[0].Name)
}

func TestFlattenProperties(t *testing.T) {
	log := zaptest.NewLogger(t)

	props := map[string]interface{}{
		"foo":   "bar",
		"count": float64(420),
		"flag":  true,
		"nested": map[string]interface{}{
			"inner": map[string]interface{}{
				"leaf": "lol",
			},
			"n": float64(1.5),
		},
		"dropped_array": []interface{}{"a", "b"},
		"dropped_null":  nil,
	}

	flat := FlattenProperties(props, log)

	byKey := map[string]Property{}
	for _, p := range flat {
		byKey[p.Key] = p
	}

	require.Len(t, flat, 5)
	assert.Equal(t, "bar", byKey["foo"].String)
	assert.Equal(t, float64(420), byKey["count"].Number)
	assert.True(t, byKey["flag"].Bool)
	assert.Equal(t, "lol", byKey["nested__inner__leaf"].String)
	assert.Equal(t, 1.5, byKey["nested__n"].Number)
	assert.NotContains(t, byKey, "dropped_array")
	assert.NotContains(t, byKey, "dropped_null")
}

func TestFlattenPropertiesJSONNumber(t *testing.T) {
	log := zaptest.NewLogger(t)

	flat := FlattenProperties(map[string]interface{}{
		"big":      json.Number("9007199254740993"),
		"bad":      json.Number("not-a-number"),
		"overflow": json.Number("1e999"),
	}, log)

	require.Len(t, flat, 1)
	assert.Equal(t, "big", flat[0].Key)
	assert.Equal(t, PropertyNumber, flat[0].Kind)
}
