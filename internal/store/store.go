package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Item keys written by the shell for each device.
const (
	KeyAuthToken  = "authToken"
	KeyUserEmail  = "userEmail"
	KeyCurrentURL = "currentURL"
)

const (
	itemPrefix   = "shell:"
	rateIPPrefix = "shell:rate:ip:"
)

// Record is the persisted login state for a device.
type Record struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
	Email    string `json:"email"`
	URL      string `json:"url,omitempty"`
}

// Store handles Redis persistence for per-device items and rate limits.
type Store struct {
	rdb        *redis.Client
	sessionTTL time.Duration // 0 = no expiry
	rateIPTTL  time.Duration
}

// NewStore creates a Store with the given Redis client and TTLs.
func NewStore(rdb *redis.Client, sessionTTL, rateIPTTL time.Duration) *Store {
	return &Store{
		rdb:        rdb,
		sessionTTL: sessionTTL,
		rateIPTTL:  rateIPTTL,
	}
}

func itemKey(device, key string) string {
	return itemPrefix + device + ":" + key
}

// SetItem stores value under key for device.
func (s *Store) SetItem(ctx context.Context, device, key, value string) error {
	return s.rdb.Set(ctx, itemKey(device, key), value, s.sessionTTL).Err()
}

// GetItem returns the value under key for device; ok is false if it is unset.
func (s *Store) GetItem(ctx context.Context, device, key string) (value string, ok bool, err error) {
	value, err = s.rdb.Get(ctx, itemKey(device, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// RemoveItems deletes keys for device.
func (s *Store) RemoveItems(ctx context.Context, device string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = itemKey(device, k)
	}
	return s.rdb.Del(ctx, full...).Err()
}

// SaveSession writes token and email (and URL when set) in one transaction,
// so a failed login leaves no partial token behind.
func (s *Store) SaveSession(ctx context.Context, r *Record) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, itemKey(r.DeviceID, KeyAuthToken), r.Token, s.sessionTTL)
		pipe.Set(ctx, itemKey(r.DeviceID, KeyUserEmail), r.Email, s.sessionTTL)
		if r.URL != "" {
			pipe.Set(ctx, itemKey(r.DeviceID, KeyCurrentURL), r.URL, s.sessionTTL)
		}
		return nil
	})
	return err
}

// SaveURL records the URL the device's web view is pointed at.
func (s *Store) SaveURL(ctx context.Context, device, url string) error {
	return s.SetItem(ctx, device, KeyCurrentURL, url)
}

// LoadSession returns the persisted record for device, or nil if no token is stored.
func (s *Store) LoadSession(ctx context.Context, device string) (*Record, error) {
	vals, err := s.rdb.MGet(ctx,
		itemKey(device, KeyAuthToken),
		itemKey(device, KeyUserEmail),
		itemKey(device, KeyCurrentURL),
	).Result()
	if err != nil {
		return nil, err
	}
	token, _ := vals[0].(string)
	if token == "" {
		return nil, nil
	}
	email, _ := vals[1].(string)
	url, _ := vals[2].(string)
	return &Record{DeviceID: device, Token: token, Email: email, URL: url}, nil
}

// DeleteSession removes every item stored for device.
func (s *Store) DeleteSession(ctx context.Context, device string) error {
	return s.RemoveItems(ctx, device, KeyAuthToken, KeyUserEmail, KeyCurrentURL)
}

// IncrRateIP increments IP rate counter; returns new count.
func (s *Store) IncrRateIP(ctx context.Context, ip string) (int64, error) {
	key := rateIPPrefix + ip
	pipe := s.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.rateIPTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
