package rebooking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const availabilityKeyPrefix = "rebook:availability:"

// CachedAvailability fronts an AvailabilitySource with a short-lived redis
// cache. Cache failures fall through to the underlying source.
type CachedAvailability struct {
	next   AvailabilitySource
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedAvailability(next AvailabilitySource, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedAvailability {
	return &CachedAvailability{next: next, client: client, ttl: ttl, logger: logger}
}

func availabilityKey(providerID, clinicID string, date time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s", availabilityKeyPrefix, providerID, clinicID, date.Format("2006-01-02"))
}

// FetchAvailableSlots implements AvailabilitySource.
func (c *CachedAvailability) FetchAvailableSlots(ctx context.Context, providerID, clinicID string, date time.Time) ([]Slot, error) {
	key := availabilityKey(providerID, clinicID, date)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var slots []Slot
		if jerr := json.Unmarshal(raw, &slots); jerr == nil {
			return slots, nil
		}
		c.logger.Warn().Str("key", key).Msg("dropping undecodable availability cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("availability cache read failed")
	}

	slots, err := c.next.FetchAvailableSlots(ctx, providerID, clinicID, date)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []Slot{}
	}
	payload, err := json.Marshal(slots)
	if err != nil {
		return slots, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("availability cache write failed")
	}
	return slots, nil
}

// InvalidateAvailability implements AvailabilityInvalidator.
func (c *CachedAvailability) InvalidateAvailability(ctx context.Context, providerID, clinicID string, date time.Time) error {
	if err := c.client.Del(ctx, availabilityKey(providerID, clinicID, date)).Err(); err != nil {
		return fmt.Errorf("invalidate availability: %w", err)
	}
	return nil
}
