package repo

import (
	"github.com/redis/go-redis/v9"
)

// Both scripts share the same preamble: create the default record on first
// access, then reset the counter when the stored calendar period differs
// from the caller's. Doing it inside the script keeps read + rollover +
// increment one atomic unit.
//
// KEYS[1] = record hash
// ARGV[1] = now (unix seconds)
// ARGV[2] = current period, formatted YYYYMM
// ARGV[3] = default monthly limit

var scriptStatus = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'limit', ARGV[3], 'used', 0,
    'period', ARGV[2], 'period_start', ARGV[1],
    'tier', 'free', 'status', 'active')
elseif redis.call('HGET', KEYS[1], 'period') ~= ARGV[2] then
  redis.call('HSET', KEYS[1], 'used', 0, 'period', ARGV[2], 'period_start', ARGV[1])
end

return redis.call('HMGET', KEYS[1], 'limit', 'used', 'period_start', 'tier', 'status', 'renews_at')
`)

// scriptReserve returns {granted, limit, used, period_start}; granted is 0
// when the limit was already reached (used is left untouched in that case).
var scriptReserve = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'limit', ARGV[3], 'used', 0,
    'period', ARGV[2], 'period_start', ARGV[1],
    'tier', 'free', 'status', 'active')
elseif redis.call('HGET', KEYS[1], 'period') ~= ARGV[2] then
  redis.call('HSET', KEYS[1], 'used', 0, 'period', ARGV[2], 'period_start', ARGV[1])
end

local limit = tonumber(redis.call('HGET', KEYS[1], 'limit'))
local used  = tonumber(redis.call('HGET', KEYS[1], 'used'))
local start = tonumber(redis.call('HGET', KEYS[1], 'period_start'))

if used >= limit then
  return {0, limit, used, start}
end

used = redis.call('HINCRBY', KEYS[1], 'used', 1)
return {1, limit, used, start}
`)

// scriptRelease hands one slot back, floored at zero.
var scriptRelease = redis.NewScript(`
local used = tonumber(redis.call('HGET', KEYS[1], 'used') or '0')
if used > 0 then
  used = redis.call('HINCRBY', KEYS[1], 'used', -1)
end
return used
`)
