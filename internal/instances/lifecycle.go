package instances

import (
	"context"
	"errors"
	"sync"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/platform/logger"
	"github.com/tenantflow/channel-connector/internal/provider"
	"github.com/tenantflow/channel-connector/internal/realtime"

	"github.com/sirupsen/logrus"
)

// keyedMutex serializes state transitions per instance without blocking
// transitions on unrelated instances.
type keyedMutex struct {
	lock    sync.Mutex
	entries map[domain.InstanceID]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		entries: make(map[domain.InstanceID]*sync.Mutex),
	}
}

func (k *keyedMutex) get(id domain.InstanceID) *sync.Mutex {
	k.lock.Lock()
	defer k.lock.Unlock()

	entry, ok := k.entries[id]
	if !ok {
		entry = &sync.Mutex{}
		k.entries[id] = entry
	}

	return entry
}

// Lifecycle owns the instance state machine.  All status transitions go
// through applyState, which persists the new status and QR in one store
// call and then fans the change out to the owning tenant's sessions.
type Lifecycle struct {
	store       InstanceStore
	connector   provider.Connector
	broadcaster EventBroadcaster
	locks       *keyedMutex
}

func NewLifecycle(store InstanceStore, connector provider.Connector, broadcaster EventBroadcaster) *Lifecycle {
	return &Lifecycle{
		store:       store,
		connector:   connector,
		broadcaster: broadcaster,
		locks:       newKeyedMutex(),
	}
}

// Connect drives the pairing flow against the external gateway.  The
// instance passes through connecting silently and lands in exactly one of
// qr_code_needed, connected or connection_error, which is the single
// status event the tenant's sessions see for the whole attempt.
func (l *Lifecycle) Connect(ctx context.Context, id domain.InstanceID) (*domain.Instance, error) {

	lock := l.locks.get(id)
	lock.Lock()

	instance, err := l.store.GetInstance(ctx, id)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	if !instance.Configured() {
		lock.Unlock()
		return nil, ErrInstanceNotConfigured
	}

	if err := l.applyStateLocked(ctx, instance, domain.StatusConnecting, "", false); err != nil {
		lock.Unlock()
		return nil, err
	}

	// The gateway call can take up to the connect timeout, don't hold the
	// instance lock across it
	lock.Unlock()
	result, providerErr := l.connector.Connect(ctx, instance.ApiEndpoint, instance.ApiKey, instance.Name)
	lock.Lock()
	defer lock.Unlock()

	if providerErr != nil {
		status := domain.StatusError
		if errors.Is(providerErr, provider.ErrProviderUnavailable) {
			status = domain.StatusConnectionError
		}
		// applyStateLocked logs its own store failures; the provider
		// error stays the one the caller acts on.
		l.applyStateLocked(ctx, instance, status, "", true)
		return instance, providerErr
	}

	if result.QRBase64 != "" {
		if err := l.applyStateLocked(ctx, instance, domain.StatusQRCodeNeeded, result.QRBase64, true); err != nil {
			return nil, err
		}
		return instance, nil
	}

	if err := l.applyStateLocked(ctx, instance, domain.StatusConnected, "", true); err != nil {
		return nil, err
	}

	return instance, nil
}

// ApplyConnectionUpdate records a provider-reported session state change.
// The status is taken verbatim from the provider, falling back to
// disconnected when the payload carries no state.  The stored QR is
// cleared since it is no longer scannable.
func (l *Lifecycle) ApplyConnectionUpdate(ctx context.Context, id domain.InstanceID, providerState string) error {

	lock := l.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	instance, err := l.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}

	status := providerState
	if status == "" {
		status = domain.StatusDisconnected
	}

	return l.applyStateLocked(ctx, instance, status, "", true)
}

// ApplyQRUpdate records a fresh pairing code pushed by the provider and
// forces the instance into the qr_code_needed state regardless of what it
// was before.
func (l *Lifecycle) ApplyQRUpdate(ctx context.Context, id domain.InstanceID, qrBase64 string) error {

	lock := l.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	instance, err := l.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}

	return l.applyStateLocked(ctx, instance, domain.StatusQRCodeNeeded, qrBase64, true)
}

// Logout asks the gateway to tear down the instance session and records
// the instance as disconnected.  Failures on the gateway side are logged
// and swallowed - callers use this as a best-effort cleanup before
// deleting the instance.
func (l *Lifecycle) Logout(ctx context.Context, id domain.InstanceID) error {

	lock := l.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	instance, err := l.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}

	if instance.Configured() {
		if err := l.connector.Logout(ctx, instance.ApiEndpoint, instance.ApiKey, instance.Name); err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err, "instance_id": id}).Info("Gateway logout failed, continuing")
		}
	}

	if instance.Status == domain.StatusDisconnected {
		return nil
	}

	return l.applyStateLocked(ctx, instance, domain.StatusDisconnected, "", true)
}

// SendText forwards an outbound message through the gateway.  Only a
// connected instance can send.
func (l *Lifecycle) SendText(ctx context.Context, id domain.InstanceID, message provider.SendTextRequest) error {

	instance, err := l.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}

	if !instance.Configured() || instance.Status != domain.StatusConnected {
		return ErrInstanceNotReady
	}

	return l.connector.SendText(ctx, instance.ApiEndpoint, instance.ApiKey, instance.Name, message)
}

func (l *Lifecycle) applyStateLocked(ctx context.Context, instance *domain.Instance, status string, qrCode string, emit bool) error {

	err := l.store.UpdateInstanceState(ctx, instance.ID, status, qrCode)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "instance_id": instance.ID, "status": status}).Error("Unable to persist instance state")
		return err
	}

	instance.Status = status
	instance.QRCode = qrCode

	logger.Log.WithFields(logrus.Fields{"instance_id": instance.ID, "status": status}).Debug("Instance state changed")

	if emit {
		event := realtime.NewInstanceStatusEvent(instance.ID, status, qrCode)
		l.broadcaster.BroadcastToTenant(ctx, instance.TenantID, event, "")
	}

	return nil
}
