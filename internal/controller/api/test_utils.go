package api

import (
	"context"
	"sync"
	"time"

	"github.com/tenantflow/channel-connector/internal/config"
	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/instances"
	"github.com/tenantflow/channel-connector/internal/middlewares"
	"github.com/tenantflow/channel-connector/internal/provider"

	"github.com/golang-jwt/jwt"
)

const testSigningKey = "test-signing-key"

func buildTestConfig() *config.Config {
	cfg := config.GetConfig()
	cfg.JwtSigningKey = testSigningKey
	return cfg
}

func buildTestToken(tenantID string, userID string, role string) string {
	claims := middlewares.TokenClaims{
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte(testSigningKey))
	return signed
}

// fakeInstanceStore is an in-memory InstanceStore for handler tests.
type fakeInstanceStore struct {
	lock      sync.Mutex
	instances map[domain.InstanceID]*domain.Instance
}

func newFakeInstanceStore(seed ...*domain.Instance) *fakeInstanceStore {
	store := &fakeInstanceStore{
		instances: make(map[domain.InstanceID]*domain.Instance),
	}
	for _, instance := range seed {
		copied := *instance
		store.instances[instance.ID] = &copied
	}
	return store
}

func (fs *fakeInstanceStore) GetInstance(ctx context.Context, id domain.InstanceID) (*domain.Instance, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	instance, exists := fs.instances[id]
	if !exists {
		return nil, instances.ErrInstanceNotFound
	}
	copied := *instance
	return &copied, nil
}

func (fs *fakeInstanceStore) GetInstanceByName(ctx context.Context, name string) (*domain.Instance, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	for _, instance := range fs.instances {
		if instance.Name == name {
			copied := *instance
			return &copied, nil
		}
	}
	return nil, instances.ErrInstanceNotFound
}

func (fs *fakeInstanceStore) GetInstancesByTenant(ctx context.Context, tenant domain.TenantID, offset int, limit int) ([]domain.Instance, int, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	results := []domain.Instance{}
	for _, instance := range fs.instances {
		if instance.TenantID == tenant {
			results = append(results, *instance)
		}
	}
	return results, len(results), nil
}

func (fs *fakeInstanceStore) GetAllInstances(ctx context.Context, offset int, limit int) ([]domain.Instance, int, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	results := []domain.Instance{}
	for _, instance := range fs.instances {
		results = append(results, *instance)
	}
	return results, len(results), nil
}

func (fs *fakeInstanceStore) CreateInstance(ctx context.Context, instance *domain.Instance) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	for _, existing := range fs.instances {
		if existing.Name == instance.Name {
			return instances.ErrDuplicateInstanceName
		}
	}

	if instance.ID == "" {
		instance.ID = domain.InstanceID("generated-" + instance.Name)
	}
	if instance.Status == "" {
		instance.Status = domain.StatusDisconnected
	}
	instance.Active = true

	copied := *instance
	fs.instances[instance.ID] = &copied
	return nil
}

func (fs *fakeInstanceStore) UpdateInstance(ctx context.Context, instance *domain.Instance) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if _, exists := fs.instances[instance.ID]; !exists {
		return instances.ErrInstanceNotFound
	}
	copied := *instance
	fs.instances[instance.ID] = &copied
	return nil
}

func (fs *fakeInstanceStore) DeleteInstance(ctx context.Context, id domain.InstanceID) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if _, exists := fs.instances[id]; !exists {
		return instances.ErrInstanceNotFound
	}
	delete(fs.instances, id)
	return nil
}

func (fs *fakeInstanceStore) UpdateInstanceStatus(ctx context.Context, id domain.InstanceID, status string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	instance, exists := fs.instances[id]
	if !exists {
		return instances.ErrInstanceNotFound
	}
	instance.Status = status
	return nil
}

func (fs *fakeInstanceStore) UpdateInstanceQR(ctx context.Context, id domain.InstanceID, qrCode string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	instance, exists := fs.instances[id]
	if !exists {
		return instances.ErrInstanceNotFound
	}
	instance.QRCode = qrCode
	return nil
}

func (fs *fakeInstanceStore) UpdateInstanceState(ctx context.Context, id domain.InstanceID, status string, qrCode string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	instance, exists := fs.instances[id]
	if !exists {
		return instances.ErrInstanceNotFound
	}
	instance.Status = status
	instance.QRCode = qrCode
	return nil
}

func (fs *fakeInstanceStore) UpdateInstanceWebhookTimestamp(ctx context.Context, id domain.InstanceID, receivedAt time.Time) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	instance, exists := fs.instances[id]
	if !exists {
		return instances.ErrInstanceNotFound
	}
	instance.LastWebhookReceived = &receivedAt
	return nil
}

// fakeSession records the payloads a realtime connection would receive.
type fakeSession struct {
	lock     sync.Mutex
	payloads [][]byte
}

func (fs *fakeSession) Enqueue(payload []byte) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.payloads = append(fs.payloads, payload)
	return nil
}

func (fs *fakeSession) Close() {
}

func (fs *fakeSession) Payloads() [][]byte {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return append([][]byte{}, fs.payloads...)
}

// fakeConnector answers provider calls without an external gateway.
type fakeConnector struct {
	connectResult *provider.ConnectResult
	connectError  error
	sendError     error
	logoutError   error
}

func (fc *fakeConnector) Connect(ctx context.Context, endpoint string, apiKey string, instanceName string) (*provider.ConnectResult, error) {
	if fc.connectError != nil {
		return nil, fc.connectError
	}
	if fc.connectResult != nil {
		return fc.connectResult, nil
	}
	return &provider.ConnectResult{}, nil
}

func (fc *fakeConnector) SendText(ctx context.Context, endpoint string, apiKey string, instanceName string, message provider.SendTextRequest) error {
	return fc.sendError
}

func (fc *fakeConnector) Logout(ctx context.Context, endpoint string, apiKey string, instanceName string) error {
	return fc.logoutError
}
