package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/platform/logger"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const eventFeedWriteTimeout = 10 * time.Second

// Broadcaster fans events out to the realtime connections of a tenant.
// Events never cross tenant boundaries.
type Broadcaster struct {
	locator   ConnectionLocator
	registrar ConnectionRegistrar
	eventFeed *kafka.Writer
}

// NewBroadcaster builds a broadcaster on top of the connection registry.  The
// kafka writer is optional - when non-nil every fan-out event is also
// mirrored to the event feed topic, keyed by tenant id.
func NewBroadcaster(locator ConnectionLocator, registrar ConnectionRegistrar, eventFeed *kafka.Writer) *Broadcaster {
	return &Broadcaster{
		locator:   locator,
		registrar: registrar,
		eventFeed: eventFeed,
	}
}

// BroadcastToTenant serializes the event once and delivers it to every live
// connection of the tenant, except excludeUser when set.  A failing recipient
// is deregistered and closed without aborting delivery to the rest.
func (b *Broadcaster) BroadcastToTenant(ctx context.Context, tenant domain.TenantID, event interface{}, excludeUser domain.UserID) {

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "tenant": tenant}).Error("Unable to marshal fan-out event")
		return
	}

	sessions := b.locator.GetSessionsByTenant(ctx, tenant)

	for user, session := range sessions {
		if excludeUser != "" && user == excludeUser {
			continue
		}

		if err := session.Enqueue(payload); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"error":  err,
				"tenant": tenant,
				"user":   user}).Info("Dropping an unresponsive realtime connection")
			fanoutFailureCounter.Inc()
			b.registrar.UnregisterSession(ctx, tenant, user, session)
			session.Close()
			continue
		}

		fanoutDeliveryCounter.Inc()
	}

	b.mirrorToEventFeed(tenant, payload)
}

// SendPersonal delivers the event to a single user.  ErrNotConnected is
// reported rather than silently dropped so callers can decide what to do.
func (b *Broadcaster) SendPersonal(ctx context.Context, tenant domain.TenantID, user domain.UserID, event interface{}) error {

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	session := b.locator.GetSession(ctx, tenant, user)
	if session == nil {
		return ErrNotConnected
	}

	if err := session.Enqueue(payload); err != nil {
		fanoutFailureCounter.Inc()
		b.registrar.UnregisterSession(ctx, tenant, user, session)
		session.Close()
		return err
	}

	fanoutDeliveryCounter.Inc()
	return nil
}

func (b *Broadcaster) mirrorToEventFeed(tenant domain.TenantID, payload []byte) {
	if b.eventFeed == nil {
		return
	}

	// The kafka writer batches and can block - keep it off the fan-out
	// path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventFeedWriteTimeout)
		defer cancel()

		err := b.eventFeed.WriteMessages(ctx, kafka.Message{
			Key:   []byte(tenant),
			Value: payload,
		})
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err, "tenant": tenant}).Error("Unable to mirror event to the event feed")
		}
	}()
}
