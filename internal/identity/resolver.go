package identity

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xray-tech/xorc-gateway/internal/apperr"
	"github.com/xray-tech/xorc-gateway/internal/crypto"
	"github.com/xray-tech/xorc-gateway/internal/event"
)

// Resolver produces the stable device identity for a batch. A decrypted
// cookie always wins; without one the advertising identifier is consulted
// and a fresh entity id is minted as the last resort.
type Resolver struct {
	store  Store
	cipher *crypto.Cipher
	logger *zap.Logger
}

// NewResolver wires the store and the cookie cipher.
func NewResolver(store Store, cipher *crypto.Cipher, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, cipher: cipher, logger: logger}
}

// usableIFA reports whether the advertising identifier may touch the
// store. Restricted tracking and the all-zero identifier bypass it.
func usableIFA(device *event.Device) bool {
	return device.IFATrackingEnabled && device.IFA != "" && device.IFA != NilUUID
}

// Resolve returns the device identity for the request. A cookie header
// that was sent but did not decrypt is a client error. Without a cookie a
// new identity is only minted for a registering batch; other batches stay
// anonymous.
func (r *Resolver) Resolve(ctx context.Context, evctx *event.Context, device *event.Device, registering bool) (*event.DeviceID, error) {
	if evctx.DeviceID != nil {
		return evctx.DeviceID, nil
	}
	if evctx.DeviceHeaderSent {
		return nil, apperr.ErrBadDeviceID
	}
	if !registering {
		return nil, nil
	}

	var entityID string
	lookedUp := false
	if usableIFA(device) {
		entityID = r.store.Get(ctx, evctx.AppID, device.IFA)
		lookedUp = entityID != ""
	}
	if entityID == "" {
		entityID = uuid.New().String()
	}

	sealed, err := r.cipher.Seal(entityID)
	if err != nil {
		return nil, apperr.Internal("sealing device id: " + err.Error())
	}

	if usableIFA(device) && !lookedUp {
		r.store.Put(ctx, evctx.AppID, device.IFA, entityID)
		r.logger.Debug("stored new ifa pairing",
			zap.String("app_id", evctx.AppID),
			zap.String("ifa", device.IFA),
			zap.String("device_id", entityID))
	}

	return &event.DeviceID{Ciphertext: sealed, Cleartext: entityID}, nil
}
