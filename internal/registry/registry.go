// Package registry holds the set of known applications and runs the
// admission checks for incoming batches. The live application map is
// immutable; refreshes swap the whole map atomically so request handling
// never takes a lock.
package registry

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xray-tech/xorc-gateway/internal/apperr"
	"github.com/xray-tech/xorc-gateway/internal/crypto"
	"github.com/xray-tech/xorc-gateway/internal/event"
	"github.com/xray-tech/xorc-gateway/internal/metrics"
)

// Application is one registered app with its authentication material.
// Signature keys are raw bytes, decoded from hex at load time; a nil key
// means the platform is not enabled for the app.
type Application struct {
	ID         string
	Token      string
	IOSKey     []byte
	AndroidKey []byte
	WebKey     []byte
}

// KeyFor returns the signature key for the platform, or nil when the app
// has no key for it.
func (a *Application) KeyFor(platform event.Platform) []byte {
	switch platform {
	case event.PlatformIOS:
		return a.IOSKey
	case event.PlatformAndroid:
		return a.AndroidKey
	case event.PlatformWeb:
		return a.WebKey
	default:
		return nil
	}
}

// Options control the admission checks.
type Options struct {
	// AllowEmptySignature skips signature verification entirely.
	// Development only; config.Load refuses it elsewhere.
	AllowEmptySignature bool

	// RequireToken rejects batches without an X-Api-Token header. By
	// default an absent token is tolerated and only a mismatching one is
	// rejected.
	RequireToken bool

	// DefaultToken stands in for the expected token of apps that have
	// none of their own.
	DefaultToken string
}

// Registry is the hot-swappable application set.
type Registry struct {
	apps   atomic.Pointer[map[string]*Application]
	opts   Options
	logger *zap.Logger
}

// New creates an empty registry.
func New(opts Options, logger *zap.Logger) *Registry {
	r := &Registry{opts: opts, logger: logger}
	empty := make(map[string]*Application)
	r.apps.Store(&empty)
	return r
}

// Replace swaps in a freshly loaded application map.
func (r *Registry) Replace(apps map[string]*Application) {
	r.apps.Store(&apps)
	metrics.AppUpdates.Inc()
	r.logger.Info("application registry updated", zap.Int("apps", len(apps)))
}

// Get returns the application by id, or nil.
func (r *Registry) Get(appID string) *Application {
	return (*r.apps.Load())[appID]
}

// TokenFor returns the app's expected API token, or empty when the app is
// unknown.
func (r *Registry) TokenFor(appID string) string {
	if app := r.Get(appID); app != nil {
		return app.Token
	}
	return ""
}

// Len reports the number of registered applications.
func (r *Registry) Len() int {
	return len(*r.apps.Load())
}

// Validate runs the admission checks for a batch against the raw request
// body. The checks run in a fixed order: app existence, token, payload,
// then signature. An app without a key for the request's platform is
// reported as an unknown app, which keeps responses identical for probes
// with invented app ids and probes with wrong platforms.
func (r *Registry) Validate(evctx *event.Context, raw []byte, eventCount int) error {
	app := r.Get(evctx.AppID)
	if app == nil {
		return apperr.ErrAppDoesNotExist
	}

	expectedToken := app.Token
	if expectedToken == "" {
		expectedToken = r.opts.DefaultToken
	}

	if evctx.APIToken == "" {
		if r.opts.RequireToken {
			return apperr.ErrMissingToken
		}
	} else if evctx.APIToken != expectedToken {
		return apperr.ErrInvalidToken
	}

	if eventCount == 0 {
		return apperr.ErrInvalidPayload
	}

	if r.opts.AllowEmptySignature {
		return nil
	}

	if evctx.Signature == "" {
		return apperr.ErrMissingSignature
	}

	key := app.KeyFor(evctx.Platform)
	if key == nil {
		return apperr.ErrAppDoesNotExist
	}

	if err := crypto.VerifyHMAC(key, raw, evctx.Signature); err != nil {
		return apperr.ErrInvalidSignature
	}

	return nil
}

func decodeKey(appID, platform, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("app %s: invalid %s key: %w", appID, platform, err)
	}
	return key, nil
}
