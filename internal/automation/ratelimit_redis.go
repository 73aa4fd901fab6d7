package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sociohiro-backend/models"
)

// KEYS: day counter, sender total, sender cooldown.
// ARGV: max per day, max per sender, cooldown ms, key ttl seconds, event time ms,
// '1' when the event has a sender.
// The cooldown key holds the event time of the last firing and is compared
// against the event time, not the Redis clock, so late or retried events
// see the same window as the in-memory limiter. The TTL only reclaims keys.
var reserveScript = redis.NewScript(`
local maxDay = tonumber(ARGV[1])
local maxSender = tonumber(ARGV[2])
local cooldown = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

if cooldown > 0 then
	local last = redis.call('GET', KEYS[3])
	if last and now - tonumber(last) < cooldown then
		return 0
	end
end
if maxDay > 0 and tonumber(redis.call('GET', KEYS[1]) or '0') >= maxDay then
	return 0
end
if maxSender > 0 and tonumber(redis.call('GET', KEYS[2]) or '0') >= maxSender then
	return 0
end

redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ttl)
if ARGV[6] == '1' then
	redis.call('INCR', KEYS[2])
end
if cooldown > 0 then
	redis.call('SET', KEYS[3], ARGV[5], 'EX', math.ceil(cooldown / 1000) + ttl)
end
return 1
`)

var refundScript = redis.NewScript(`
if tonumber(redis.call('GET', KEYS[1]) or '0') > 0 then
	redis.call('DECR', KEYS[1])
end
if ARGV[1] ~= '1' then
	return 1
end
if tonumber(redis.call('GET', KEYS[2]) or '0') > 0 then
	redis.call('DECR', KEYS[2])
end
redis.call('DEL', KEYS[3])
return 1
`)

const dayCounterTTL = 48 * time.Hour

// RedisLimiter shares counters between workers. Each check-and-record runs
// as one Lua script so concurrent events cannot both pass a limit.
type RedisLimiter struct {
	client redis.Scripter
}

func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func redisKeys(rule *models.AutomationRule, senderID string, now time.Time) []string {
	// hash tag keeps a rule's keys in one cluster slot
	prefix := fmt.Sprintf("automation:{%s}", rule.ID.Hex())
	return []string{
		prefix + ":day:" + dayStamp(rule, now),
		prefix + ":sender:" + senderID,
		prefix + ":cooldown:" + senderID,
	}
}

func (l *RedisLimiter) Reserve(ctx context.Context, rule *models.AutomationRule, senderID string, now time.Time) (bool, error) {
	maxPerSender, cooldown := senderLimits(rule.Conditions, senderID)
	res, err := reserveScript.Run(ctx, l.client, redisKeys(rule, senderID, now),
		rule.Conditions.MaxExecutionsPerDay,
		maxPerSender,
		cooldown.Milliseconds(),
		int(dayCounterTTL.Seconds()),
		now.UnixMilli(),
		hasSender(senderID),
	).Int()
	if err != nil {
		return false, fmt.Errorf("reserve execution: %w", err)
	}
	return res == 1, nil
}

func (l *RedisLimiter) Refund(ctx context.Context, rule *models.AutomationRule, senderID string, now time.Time) error {
	if err := refundScript.Run(ctx, l.client, redisKeys(rule, senderID, now), hasSender(senderID)).Err(); err != nil {
		return fmt.Errorf("refund execution: %w", err)
	}
	return nil
}

func hasSender(senderID string) string {
	if senderID == "" {
		return "0"
	}
	return "1"
}
