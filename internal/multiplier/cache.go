package multiplier

import (
	"context"
	"sync"

	"levelsmith/internal/storage"

	"go.uber.org/zap"
)

// Cache keeps per-guild role multiplier maps in memory, loaded lazily from
// the store on first use and updated write-through on every mutation.
type Cache struct {
	mu     sync.Mutex
	store  *storage.Store
	logger *zap.Logger
	guilds map[string]map[string]float64
}

func NewCache(store *storage.Store, logger *zap.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logger,
		guilds: make(map[string]map[string]float64),
	}
}

// MultiplierFor returns the highest multiplier among the given roles, or 1.0
// when none of them has an entry.
func (c *Cache) MultiplierFor(ctx context.Context, guildID string, roleIDs []string) float64 {
	multipliers := c.guildMultipliers(ctx, guildID)

	result := 1.0
	for _, roleID := range roleIDs {
		if value, ok := multipliers[roleID]; ok && value > result {
			result = value
		}
	}
	return result
}

func (c *Cache) List(ctx context.Context, guildID string) map[string]float64 {
	return c.guildMultipliers(ctx, guildID)
}

func (c *Cache) Set(ctx context.Context, guildID, roleID string, value float64) error {
	if err := c.store.SetRoleMultiplier(ctx, guildID, roleID, value); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if guild := c.guilds[guildID]; guild != nil {
		guild[roleID] = value
	}
	return nil
}

func (c *Cache) Remove(ctx context.Context, guildID, roleID string) error {
	if err := c.store.RemoveRoleMultiplier(ctx, guildID, roleID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if guild := c.guilds[guildID]; guild != nil {
		delete(guild, roleID)
	}
	return nil
}

// Invalidate drops the cached map for a guild; the next read reloads it.
func (c *Cache) Invalidate(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.guilds, guildID)
}

// guildMultipliers returns a copy of the guild's map; the cached map itself
// is only touched under the mutex, since readers run on handler goroutines
// concurrent with Set and Remove.
func (c *Cache) guildMultipliers(ctx context.Context, guildID string) map[string]float64 {
	c.mu.Lock()
	if guild, ok := c.guilds[guildID]; ok {
		copied := copyMultipliers(guild)
		c.mu.Unlock()
		return copied
	}
	c.mu.Unlock()

	loaded, err := c.store.GetRoleMultipliers(ctx, guildID)
	if err != nil {
		c.logger.Error("role multiplier load failed", zap.String("guild_id", guildID), zap.Error(err))
		loaded = make(map[string]float64)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if guild, ok := c.guilds[guildID]; ok {
		return copyMultipliers(guild)
	}
	c.guilds[guildID] = loaded
	return copyMultipliers(loaded)
}

func copyMultipliers(multipliers map[string]float64) map[string]float64 {
	copied := make(map[string]float64, len(multipliers))
	for roleID, value := range multipliers {
		copied[roleID] = value
	}
	return copied
}
