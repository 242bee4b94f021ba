package event

import (
	"net/http"
	"net/netip"

	"go.uber.org/zap"

	"github.com/xray-tech/xorc-gateway/internal/crypto"
)

// Header names the SDKs send.
const (
	HeaderAPIToken  = "X-Api-Token"
	HeaderSignature = "X-Signature"
	HeaderDeviceID  = "X-Device-Id"
	HeaderRealIP    = "X-Real-IP"
)

// DeviceID pairs the sealed cookie with its cleartext UUID.
type DeviceID struct {
	Ciphertext string
	Cleartext  string
}

// Context is the typed, immutable view of a request's headers plus the
// identifying fields pulled out of the parsed batch. It is built once and
// passed read-only through the pipeline; every terminal log line carries it.
type Context struct {
	AppID     string
	Platform  Platform
	APIToken  string
	DeviceID  *DeviceID
	Signature string
	IP        netip.Addr
	Origin    string

	// DeviceHeaderSent records that the cookie header was present even if it
	// failed to decrypt; the resolver turns that into a bad-device-id error.
	DeviceHeaderSent bool
}

// NewContext builds the request context. A cookie that decrypts populates
// DeviceID; one that does not leaves DeviceID nil, which only becomes an
// error if the flow needs the device identity.
func NewContext(headers http.Header, cipher *crypto.Cipher, appID string, platform Platform) *Context {
	ctx := &Context{
		AppID:     appID,
		Platform:  platform,
		APIToken:  headers.Get(HeaderAPIToken),
		Signature: headers.Get(HeaderSignature),
		Origin:    headers.Get("Origin"),
	}

	if raw := headers.Get(HeaderDeviceID); raw != "" {
		ctx.DeviceHeaderSent = true
		if cleartext, err := cipher.Open(raw); err == nil {
			ctx.DeviceID = &DeviceID{Ciphertext: raw, Cleartext: cleartext}
		}
	}

	if ip, err := netip.ParseAddr(headers.Get(HeaderRealIP)); err == nil {
		ctx.IP = ip
	}

	return ctx
}

// ZapFields renders the context for structured logging.
func (c *Context) ZapFields() []zap.Field {
	fields := []zap.Field{
		zap.String("app_id", c.AppID),
		zap.String("platform", c.Platform.String()),
	}
	if c.APIToken != "" {
		fields = append(fields, zap.String("api_token", c.APIToken))
	}
	if c.DeviceID != nil {
		fields = append(fields,
			zap.String("device_id", c.DeviceID.Cleartext),
			zap.String("encrypted_device_id", c.DeviceID.Ciphertext),
		)
	}
	if c.Signature != "" {
		fields = append(fields, zap.String("signature", c.Signature))
	}
	if c.IP.IsValid() {
		fields = append(fields, zap.String("ip", c.IP.String()))
	}
	if c.Origin != "" {
		fields = append(fields, zap.String("origin", c.Origin))
	}
	return fields
}
