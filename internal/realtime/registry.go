package realtime

import (
	"context"
	"sync"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

type ConnectionRegistrar interface {
	Register(ctx context.Context, tenant domain.TenantID, user domain.UserID, session Session)
	Unregister(ctx context.Context, tenant domain.TenantID, user domain.UserID)
	UnregisterSession(ctx context.Context, tenant domain.TenantID, user domain.UserID, session Session)
}

type ConnectionLocator interface {
	GetSession(ctx context.Context, tenant domain.TenantID, user domain.UserID) Session
	GetSessionsByTenant(ctx context.Context, tenant domain.TenantID) map[domain.UserID]Session
	GetAllSessions(ctx context.Context) map[domain.TenantID]map[domain.UserID]Session
}

// LocalConnectionRegistry holds the live realtime connections of a single
// process.  At most one session exists per (tenant, user) pair - a new
// registration supersedes and closes the previous one.
type LocalConnectionRegistry struct {
	sessions map[domain.TenantID]map[domain.UserID]Session
	sync.RWMutex
}

func NewLocalConnectionRegistry() *LocalConnectionRegistry {
	return &LocalConnectionRegistry{
		sessions: make(map[domain.TenantID]map[domain.UserID]Session),
	}
}

func (r *LocalConnectionRegistry) Register(ctx context.Context, tenant domain.TenantID, user domain.UserID, session Session) {
	r.Lock()
	bucket, exists := r.sessions[tenant]
	if !exists {
		bucket = make(map[domain.UserID]Session)
		r.sessions[tenant] = bucket
	}
	superseded := bucket[user]
	bucket[user] = session
	r.Unlock()

	if superseded != nil {
		logger.Log.WithFields(logrus.Fields{"tenant": tenant, "user": user}).Info("Superseding an existing connection")
		// Close outside of the lock - the old writer goroutine shuts
		// itself down when it notices the close.
		superseded.Close()
	} else {
		activeConnectionsGauge.Inc()
	}

	logger.Log.Printf("Registered a connection (%s, %s)", tenant, user)
}

func (r *LocalConnectionRegistry) Unregister(ctx context.Context, tenant domain.TenantID, user domain.UserID) {
	r.Lock()
	defer r.Unlock()
	r.removeLocked(tenant, user, nil)
}

// UnregisterSession removes the (tenant, user) entry only if it still refers
// to the given session.  The read loop of a superseded connection calls this
// on exit without tearing down its successor.
func (r *LocalConnectionRegistry) UnregisterSession(ctx context.Context, tenant domain.TenantID, user domain.UserID, session Session) {
	r.Lock()
	defer r.Unlock()
	r.removeLocked(tenant, user, session)
}

func (r *LocalConnectionRegistry) removeLocked(tenant domain.TenantID, user domain.UserID, onlyIf Session) {
	bucket, exists := r.sessions[tenant]
	if !exists {
		return
	}

	current, exists := bucket[user]
	if !exists {
		return
	}

	if onlyIf != nil && current != onlyIf {
		return
	}

	delete(bucket, user)

	if len(bucket) == 0 {
		delete(r.sessions, tenant)
	}

	activeConnectionsGauge.Dec()

	logger.Log.Printf("Unregistered a connection (%s, %s)", tenant, user)
}

func (r *LocalConnectionRegistry) GetSession(ctx context.Context, tenant domain.TenantID, user domain.UserID) Session {
	r.RLock()
	defer r.RUnlock()

	bucket, exists := r.sessions[tenant]
	if !exists {
		return nil
	}

	session, exists := bucket[user]
	if !exists {
		return nil
	}

	return session
}

// GetSessionsByTenant returns a snapshot copy so that delivery can happen
// without holding the registry lock.
func (r *LocalConnectionRegistry) GetSessionsByTenant(ctx context.Context, tenant domain.TenantID) map[domain.UserID]Session {
	r.RLock()
	defer r.RUnlock()

	sessionsPerTenant := make(map[domain.UserID]Session)

	bucket, exists := r.sessions[tenant]
	if !exists {
		return sessionsPerTenant
	}

	for user, session := range bucket {
		sessionsPerTenant[user] = session
	}

	return sessionsPerTenant
}

func (r *LocalConnectionRegistry) GetAllSessions(ctx context.Context) map[domain.TenantID]map[domain.UserID]Session {
	r.RLock()
	defer r.RUnlock()

	sessionMap := make(map[domain.TenantID]map[domain.UserID]Session)

	for tenant, bucket := range r.sessions {
		sessionMap[tenant] = make(map[domain.UserID]Session)
		for user, session := range bucket {
			sessionMap[tenant][user] = session
		}
	}

	return sessionMap
}
