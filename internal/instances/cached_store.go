package instances

import (
	"context"
	"time"

	"github.com/tenantflow/channel-connector/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedInstanceStore fronts another InstanceStore with an expiring
// name -> id cache.  The webhook path resolves instances by name on every
// delivery, which would otherwise be a db round trip per provider event.
// Full rows are never cached, only the name binding, so status reads stay
// fresh.
type CachedInstanceStore struct {
	InstanceStore
	nameCache *expirable.LRU[string, domain.InstanceID]
}

func NewCachedInstanceStore(store InstanceStore, cacheSize int, cacheTTL time.Duration) *CachedInstanceStore {
	return &CachedInstanceStore{
		InstanceStore: store,
		nameCache:     expirable.NewLRU[string, domain.InstanceID](cacheSize, nil, cacheTTL),
	}
}

func (c *CachedInstanceStore) GetInstanceByName(ctx context.Context, name string) (*domain.Instance, error) {

	if id, ok := c.nameCache.Get(name); ok {
		instance, err := c.InstanceStore.GetInstance(ctx, id)
		if err == nil {
			instanceCacheHitCounter.Inc()
			return instance, nil
		}
		if err != ErrInstanceNotFound {
			return nil, err
		}
		// Stale binding, fall through to the name lookup
		c.nameCache.Remove(name)
	}

	instance, err := c.InstanceStore.GetInstanceByName(ctx, name)
	if err != nil {
		return nil, err
	}

	c.nameCache.Add(name, instance.ID)

	return instance, nil
}

func (c *CachedInstanceStore) UpdateInstance(ctx context.Context, instance *domain.Instance) error {
	// A rename invalidates an unknown number of old bindings
	c.nameCache.Purge()
	return c.InstanceStore.UpdateInstance(ctx, instance)
}

func (c *CachedInstanceStore) DeleteInstance(ctx context.Context, id domain.InstanceID) error {
	c.nameCache.Purge()
	return c.InstanceStore.DeleteInstance(ctx, id)
}
