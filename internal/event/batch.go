// Package event models the SDK's JSON wire format: the incoming event batch,
// the typed request context built from headers, and the per-event response.
package event

import (
	"sort"
	"strconv"
)

// Batch is the JSON body of an ingest POST.
type Batch struct {
	Environment Environment `json:"environment"`
	Device      Device      `json:"device"`
	Events      []Event     `json:"events"`
}

// Environment describes the emitting application build.
type Environment struct {
	AppID         string `json:"app_id"`
	AppVersion    string `json:"app_version,omitempty"`
	AppStoreID    string `json:"app_store_id,omitempty"`
	AppInstanceID string `json:"app_instance_id,omitempty"`
	SDKVersion    string `json:"sdk_version,omitempty"`
}

// Device carries everything the SDK knows about the handset or browser.
// Pointer fields distinguish "absent" from zero values; the encoder applies
// the documented defaults.
type Device struct {
	IFATrackingEnabled     bool    `json:"ifa_tracking_enabled"`
	NotificationRegistered bool    `json:"notification_registered"`
	H                      *int32  `json:"h,omitempty"`
	W                      *int32  `json:"w,omitempty"`
	Locale                 string  `json:"locale,omitempty"`
	Language               string  `json:"language,omitempty"`
	TimeZone               string  `json:"time_zone,omitempty"`
	Manufacturer           string  `json:"manufacturer,omitempty"`
	Model                  string  `json:"model,omitempty"`
	OSVersion              string  `json:"os_version,omitempty"`
	OSName                 string  `json:"os_name,omitempty"`
	NetworkConnectionType  string  `json:"network_connection_type,omitempty"`
	DeviceName             string  `json:"device_name,omitempty"`
	IFA                    string  `json:"ifa,omitempty"`
	IDFV                   string  `json:"idfv,omitempty"`
	CarrierName            string  `json:"carrier_name,omitempty"`
	CarrierCountry         string  `json:"carrier_country,omitempty"`
	BrowserName            string  `json:"browser_name,omitempty"`
	BrowserVersion         string  `json:"browser_version,omitempty"`
	BrowserUA              string  `json:"browser_ua,omitempty"`
	NotificationTypes      *int32  `json:"notification_types,omitempty"`
	Orientation            string  `json:"orientation,omitempty"`
	Platform               string  `json:"platform,omitempty"`
}

// ResolvePlatform picks the platform: an explicit platform string wins,
// os_name is the fallback.
func (d *Device) ResolvePlatform() Platform {
	switch d.Platform {
	case "ios":
		return PlatformIOS
	case "android":
		return PlatformAndroid
	case "web":
		return PlatformWeb
	}

	switch d.OSName {
	case "iOS", "iPhone OS":
		return PlatformIOS
	case "Android":
		return PlatformAndroid
	}

	return PlatformUnknown
}

// ResolveLanguage returns the explicit language, or the language part of a
// "xx_YY" locale, or empty.
func (d *Device) ResolveLanguage() string {
	if d.Language != "" {
		return d.Language
	}
	for i := 0; i < len(d.Locale); i++ {
		if d.Locale[i] == '_' {
			return d.Locale[:i]
		}
	}
	return ""
}

// Event is a single SDK event inside a batch. Timestamp is epoch millis sent
// as a numeric string.
type Event struct {
	ID               string                 `json:"id"`
	Properties       map[string]interface{} `json:"properties"`
	SessionID        string                 `json:"session_id,omitempty"`
	Timestamp        string                 `json:"timestamp,omitempty"`
	Name             string                 `json:"name,omitempty"`
	ExternalUserID   string                 `json:"external_user_id,omitempty"`
	IsInControlGroup *int32                 `json:"is_in_control_group,omitempty"`
	ReferenceID      string                 `json:"reference_id,omitempty"`
}

// timestampMillis parses the numeric-string timestamp; unparsable values
// sort first without disturbing input order.
func (e *Event) timestampMillis() int64 {
	ts, err := strconv.ParseInt(e.Timestamp, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// Normalize fills defaulted event ids. The SDK may omit the id entirely.
func (b *Batch) Normalize() {
	for i := range b.Events {
		if b.Events[i].ID == "" {
			b.Events[i].ID = "0"
		}
	}
}

// SortEvents orders the batch non-decreasingly by timestamp. The sort is
// stable: same-timestamp events keep their input order.
func (b *Batch) SortEvents() {
	sort.SliceStable(b.Events, func(i, j int) bool {
		return b.Events[i].timestampMillis() < b.Events[j].timestampMillis()
	})
}

// HasEvent reports whether any event in the batch has the given name.
func (b *Batch) HasEvent(name string) bool {
	for i := range b.Events {
		if b.Events[i].Name == name {
			return true
		}
	}
	return false
}
