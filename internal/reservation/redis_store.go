package reservation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	redisBedKeyPrefix = "alertx:beds:"
	fieldTotal        = ":total"
	fieldAvailable    = ":available"

	scriptUnknownFacility = -2
	scriptNoChange        = -1
)

// KEYS[1] facility hash, ARGV[1] category
var decrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -2
end
local field = ARGV[1] .. ':available'
local available = tonumber(redis.call('HGET', KEYS[1], field) or '0')
if available <= 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], field, -1)
`)

var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -2
end
local field = ARGV[1] .. ':available'
local total = tonumber(redis.call('HGET', KEYS[1], ARGV[1] .. ':total') or '0')
local available = tonumber(redis.call('HGET', KEYS[1], field) or '0')
if available >= total then
	return -1
end
return redis.call('HINCRBY', KEYS[1], field, 1)
`)

// KEYS[1] facility hash, ARGV category/total/available triples. Stored
// categories keep their held beds; fields of omitted categories are dropped.
var putScript = redis.NewScript(`
local keep = {seeded = true}
for i = 1, #ARGV, 3 do
	local category = ARGV[i]
	local total = tonumber(ARGV[i + 1])
	local available = tonumber(ARGV[i + 2])
	local oldTotal = redis.call('HGET', KEYS[1], category .. ':total')
	if oldTotal then
		local oldAvailable = tonumber(redis.call('HGET', KEYS[1], category .. ':available') or '0')
		available = oldAvailable + total - tonumber(oldTotal)
		if available < 0 then
			available = 0
		end
		if available > total then
			available = total
		end
	end
	redis.call('HSET', KEYS[1], category .. ':total', total, category .. ':available', available)
	keep[category .. ':total'] = true
	keep[category .. ':available'] = true
end
for _, field in ipairs(redis.call('HKEYS', KEYS[1])) do
	if not keep[field] then
		redis.call('HDEL', KEYS[1], field)
	end
end
redis.call('HSET', KEYS[1], 'seeded', '1')
return 1
`)

// RedisStore BedStore on a Redis hash per facility. Check-and-decrement runs
// as a Lua script so it is atomic across processes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func bedKey(facilityID string) string {
	return redisBedKeyPrefix + facilityID
}

// Decrement implements BedStore
func (s *RedisStore) Decrement(ctx context.Context, facilityID, category string) (int, error) {
	n, err := decrementScript.Run(ctx, s.client, []string{bedKey(facilityID)}, category).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to run decrement script: %w", err)
	}
	switch n {
	case scriptUnknownFacility:
		return 0, ErrUnknownFacility
	case scriptNoChange:
		return 0, errNoCapacity
	}
	return int(n), nil
}

// Increment implements BedStore
func (s *RedisStore) Increment(ctx context.Context, facilityID, category string) (int, bool, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{bedKey(facilityID)}, category).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("failed to run increment script: %w", err)
	}
	switch n {
	case scriptUnknownFacility:
		return 0, false, ErrUnknownFacility
	case scriptNoChange:
		return 0, false, nil
	}
	return int(n), true, nil
}

// Get implements BedStore
func (s *RedisStore) Get(ctx context.Context, facilityID string) (map[string]models.BedCount, error) {
	fields, err := s.client.HGetAll(ctx, bedKey(facilityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read beds: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownFacility
	}

	beds := make(map[string]models.BedCount)
	for field, raw := range fields {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid bed count %s=%q: %w", field, raw, err)
		}
		switch {
		case strings.HasSuffix(field, fieldTotal):
			category := strings.TrimSuffix(field, fieldTotal)
			count := beds[category]
			count.Total = value
			beds[category] = count
		case strings.HasSuffix(field, fieldAvailable):
			category := strings.TrimSuffix(field, fieldAvailable)
			count := beds[category]
			count.Available = value
			beds[category] = count
		}
	}
	return beds, nil
}

// Put implements BedStore. The "seeded" field keeps the hash present for
// facilities seeded without categories.
func (s *RedisStore) Put(ctx context.Context, facility models.Facility) error {
	categories := make([]string, 0, len(facility.Beds))
	for category := range facility.Beds {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	args := make([]interface{}, 0, len(categories)*3)
	for _, category := range categories {
		count := facility.Beds[category]
		args = append(args, category, count.Total, count.Available)
	}

	if err := putScript.Run(ctx, s.client, []string{bedKey(facility.ID)}, args...).Err(); err != nil {
		return fmt.Errorf("failed to write beds: %w", err)
	}
	return nil
}
