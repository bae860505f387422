package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/platform/logger"
)

func init() {
	logger.InitLogger()
}

type MockSession struct {
	lock     sync.Mutex
	payloads [][]byte
	closed   bool
	failSend bool
}

func (ms *MockSession) Enqueue(payload []byte) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if ms.failSend {
		return ErrSendBufferFull
	}
	if ms.closed {
		return ErrSessionClosed
	}

	ms.payloads = append(ms.payloads, payload)
	return nil
}

func (ms *MockSession) Close() {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.closed = true
}

func (ms *MockSession) Closed() bool {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.closed
}

func (ms *MockSession) Payloads() [][]byte {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return append([][]byte{}, ms.payloads...)
}

func TestLookupSessionThatDoesNotExist(t *testing.T) {
	registry := NewLocalConnectionRegistry()
	session := registry.GetSession(context.TODO(), "not gonna find me", "or me")
	if session != nil {
		t.Fatalf("Expected to not find a session, but a session was found")
	}
}

func TestLookupSessionThatDoesNotExistButTenantExists(t *testing.T) {
	registeredTenant := domain.TenantID("tenant-1")
	registry := NewLocalConnectionRegistry()
	registry.Register(context.TODO(), registeredTenant, "user-1", &MockSession{})
	session := registry.GetSession(context.TODO(), registeredTenant, "not gonna find me")
	if session != nil {
		t.Fatalf("Expected to not find a session, but a session was found")
	}
}

func TestLookupSessionThatDoesExist(t *testing.T) {
	mockSession := &MockSession{}
	registry := NewLocalConnectionRegistry()
	registry.Register(context.TODO(), "tenant-1", "user-1", mockSession)
	session := registry.GetSession(context.TODO(), "tenant-1", "user-1")
	if session == nil {
		t.Fatalf("Expected to find a session, but did not find a session")
	}

	if session != mockSession {
		t.Fatalf("Found the wrong session")
	}
}

func TestRegisterSupersedesExistingSession(t *testing.T) {
	oldSession := &MockSession{}
	newSession := &MockSession{}
	registry := NewLocalConnectionRegistry()

	registry.Register(context.TODO(), "tenant-1", "user-1", oldSession)
	registry.Register(context.TODO(), "tenant-1", "user-1", newSession)

	if oldSession.Closed() != true {
		t.Fatalf("Expected the superseded session to be closed")
	}

	session := registry.GetSession(context.TODO(), "tenant-1", "user-1")
	if session != newSession {
		t.Fatalf("Expected the lookup to return the most recent registration")
	}

	sessions := registry.GetSessionsByTenant(context.TODO(), "tenant-1")
	if len(sessions) != 1 {
		t.Fatalf("Expected to find 1 session, but found %d sessions", len(sessions))
	}
}

func TestUnregisterSessionThatDoesNotExist(t *testing.T) {
	registry := NewLocalConnectionRegistry()
	registry.Unregister(context.TODO(), "not gonna find me", "or me")
}

func TestUnregisterIsIdempotent(t *testing.T) {
	registry := NewLocalConnectionRegistry()
	registry.Register(context.TODO(), "tenant-1", "user-1", &MockSession{})

	registry.Unregister(context.TODO(), "tenant-1", "user-1")
	registry.Unregister(context.TODO(), "tenant-1", "user-1")

	if registry.GetSession(context.TODO(), "tenant-1", "user-1") != nil {
		t.Fatalf("Expected the session to be removed")
	}
}

func TestUnregisterPrunesEmptyTenantBucket(t *testing.T) {
	registry := NewLocalConnectionRegistry()
	registry.Register(context.TODO(), "tenant-1", "user-1", &MockSession{})
	registry.Unregister(context.TODO(), "tenant-1", "user-1")

	allSessions := registry.GetAllSessions(context.TODO())
	if len(allSessions) != 0 {
		t.Fatalf("Expected the empty tenant bucket to be pruned, but found %d buckets", len(allSessions))
	}
}

func TestUnregisterSessionOnlyRemovesTheMatchingSession(t *testing.T) {
	oldSession := &MockSession{}
	newSession := &MockSession{}
	registry := NewLocalConnectionRegistry()

	registry.Register(context.TODO(), "tenant-1", "user-1", oldSession)
	registry.Register(context.TODO(), "tenant-1", "user-1", newSession)

	// The superseded connection's read loop deregisters itself on exit -
	// the successor must survive that.
	registry.UnregisterSession(context.TODO(), "tenant-1", "user-1", oldSession)

	session := registry.GetSession(context.TODO(), "tenant-1", "user-1")
	if session != newSession {
		t.Fatalf("Expected the successor session to survive the superseded session's deregistration")
	}

	registry.UnregisterSession(context.TODO(), "tenant-1", "user-1", newSession)
	if registry.GetSession(context.TODO(), "tenant-1", "user-1") != nil {
		t.Fatalf("Expected the session to be removed")
	}
}

func TestGetSessionsByTenant(t *testing.T) {
	tenant := domain.TenantID("tenant-1")
	var testSessions = []struct {
		tenant  domain.TenantID
		user    domain.UserID
		session *MockSession
	}{
		{tenant, "user-a", &MockSession{}},
		{tenant, "user-b", &MockSession{}},
	}
	registry := NewLocalConnectionRegistry()
	for _, s := range testSessions {
		registry.Register(context.TODO(), s.tenant, s.user, s.session)
	}

	sessionMap := registry.GetSessionsByTenant(context.TODO(), tenant)
	if len(sessionMap) != len(testSessions) {
		t.Fatalf("Expected to find %d sessions, but found %d sessions", len(testSessions), len(sessionMap))
	}
}

func TestGetSessionsByTenantWithNoRegisteredSessions(t *testing.T) {
	registry := NewLocalConnectionRegistry()
	sessionMap := registry.GetSessionsByTenant(context.TODO(), "tenant-1")
	if len(sessionMap) != 0 {
		t.Fatalf("Expected to find 0 sessions, but found %d sessions", len(sessionMap))
	}
}

func TestGetSessionsByTenantReturnsASnapshot(t *testing.T) {
	registry := NewLocalConnectionRegistry()
	registry.Register(context.TODO(), "tenant-1", "user-a", &MockSession{})

	sessionMap := registry.GetSessionsByTenant(context.TODO(), "tenant-1")

	registry.Register(context.TODO(), "tenant-1", "user-b", &MockSession{})

	if len(sessionMap) != 1 {
		t.Fatalf("Expected the snapshot to be unaffected by later registrations")
	}
}
