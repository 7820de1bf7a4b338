package access

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"smartlab/internal/apperr"
)

// Scan is the last uid a reader saw, kept for enrollment forms to pick up.
type Scan struct {
	DeviceID  string    `json:"device_id"`
	UID       string    `json:"uid"`
	ScannedAt time.Time `json:"scanned_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Scan) expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// ReaderCache keeps one short-lived scan per reader. Expiry is checked on
// every read.
type ReaderCache interface {
	Put(ctx context.Context, scan Scan) error
	// Get returns the live scan of deviceID, or nil.
	Get(ctx context.Context, deviceID string) (*Scan, error)
	// Consume drops the scan of deviceID if it is live and holds uid, and
	// reports whether it did.
	Consume(ctx context.Context, deviceID, uid string) (bool, error)
}

// MemoryReaderCache is a map-backed ReaderCache for dev/testing.
type MemoryReaderCache struct {
	mu    sync.Mutex
	now   func() time.Time
	scans map[string]Scan
}

func NewMemoryReaderCache(now func() time.Time) *MemoryReaderCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryReaderCache{now: now, scans: make(map[string]Scan)}
}

func (c *MemoryReaderCache) Put(_ context.Context, scan Scan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans[scan.DeviceID] = scan
	return nil
}

func (c *MemoryReaderCache) Get(_ context.Context, deviceID string) (*Scan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scan, ok := c.scans[deviceID]
	if !ok {
		return nil, nil
	}
	if scan.expired(c.now()) {
		delete(c.scans, deviceID)
		return nil, nil
	}
	return &scan, nil
}

func (c *MemoryReaderCache) Consume(_ context.Context, deviceID, uid string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scan, ok := c.scans[deviceID]
	if !ok || scan.expired(c.now()) || scan.UID != uid {
		return false, nil
	}
	delete(c.scans, deviceID)
	return true, nil
}

// consumeScript deletes KEYS[1] only when its stored uid equals ARGV[1].
var consumeScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return 0 end
local scan = cjson.decode(raw)
if scan.uid ~= ARGV[1] then return 0 end
if tonumber(scan.expires_unix) <= tonumber(ARGV[2]) then return 0 end
redis.call("DEL", KEYS[1])
return 1
`)

// RedisReaderCache stores scans as JSON under reader:<deviceID>:last with a
// key TTL; the embedded expiry is still checked on read.
type RedisReaderCache struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisReaderCache(client *redis.Client, now func() time.Time) *RedisReaderCache {
	if now == nil {
		now = time.Now
	}
	return &RedisReaderCache{client: client, now: now}
}

type redisScan struct {
	Scan
	ExpiresUnix int64 `json:"expires_unix"`
}

func readerKey(deviceID string) string { return "reader:" + deviceID + ":last" }

func (c *RedisReaderCache) Put(ctx context.Context, scan Scan) error {
	ttl := scan.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(redisScan{Scan: scan, ExpiresUnix: scan.ExpiresAt.Unix()})
	if err != nil {
		return err
	}
	return apperr.Storage("cache reader scan", c.client.Set(ctx, readerKey(scan.DeviceID), raw, ttl).Err())
}

func (c *RedisReaderCache) Get(ctx context.Context, deviceID string) (*Scan, error) {
	raw, err := c.client.Get(ctx, readerKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("read reader scan", err)
	}
	var stored redisScan
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, apperr.Storage("decode reader scan", err)
	}
	if stored.expired(c.now()) {
		return nil, nil
	}
	return &stored.Scan, nil
}

func (c *RedisReaderCache) Consume(ctx context.Context, deviceID, uid string) (bool, error) {
	n, err := consumeScript.Run(ctx, c.client, []string{readerKey(deviceID)}, uid, c.now().Unix()).Int()
	if err != nil {
		return false, apperr.Storage("consume reader scan", err)
	}
	return n == 1, nil
}
