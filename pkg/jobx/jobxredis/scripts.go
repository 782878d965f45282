package jobxredis

import "github.com/redis/go-redis/v9"

// Waiting jobs live in a sorted set scored by -priority. Members are
// "<16-digit sequence>:<id>" so equal priorities pop in insertion order.
// Every other partition is a sorted set of plain job IDs.

// enterWaiting assigns a fresh sequence and adds the job hash at `key`
// (identified by `id`) to the waiting set. Expects the waiting set in
// `waitingKey` and the sequence counter in `seqKey`.
const enterWaiting = `
local function enter_waiting(key, id, waitingKey, seqKey)
  local seq = tostring(redis.call('INCR', seqKey))
  local member = string.rep('0', 16 - #seq) .. seq .. ':' .. id
  local priority = tonumber(redis.call('HGET', key, 'priority')) or 0
  redis.call('ZADD', waitingKey, -priority, member)
  redis.call('HSET', key, 'state', 'waiting', 'wmember', member)
end
`

// trimPartition keeps the newest `keep` members of the partition and deletes
// the hashes of the rest. A negative count keeps everything.
const trimPartition = `
local function trim_partition(partition, keep, prefix)
  if keep < 0 then
    return
  end
  local excess = redis.call('ZRANGE', partition, 0, -(keep + 1))
  for _, old in ipairs(excess) do
    redis.call('DEL', prefix .. old)
    redis.call('ZREM', partition, old)
  end
end
`

// holdsLease returns 0 unless KEYS[1] is active under token ARGV[1].
const holdsLease = `
if redis.call('HGET', KEYS[1], 'state') ~= 'active' or redis.call('HGET', KEYS[1], 'token') ~= ARGV[1] then
  return 0
end
`

// KEYS: job, waiting, delayed, seq
// ARGV: availableAt, now, id, field/value pairs...
var pushScript = redis.NewScript(enterWaiting + `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local fields = {}
for i = 4, #ARGV do
  fields[#fields + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], unpack(fields))
if tonumber(ARGV[1]) > tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'state', 'delayed', 'wmember', '')
  redis.call('ZADD', KEYS[3], ARGV[1], ARGV[3])
  return 2
end
enter_waiting(KEYS[1], ARGV[3], KEYS[2], KEYS[4])
return 1
`)

// KEYS: waiting, delayed, active, paused, seq
// ARGV: job key prefix, now, lease expiry, token
var leaseScript = redis.NewScript(enterWaiting + `
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[2])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  local key = ARGV[1] .. id
  if redis.call('EXISTS', key) == 1 then
    enter_waiting(key, id, KEYS[1], KEYS[5])
  end
end

if redis.call('EXISTS', KEYS[4]) == 1 then
  return false
end

local top = redis.call('ZRANGE', KEYS[1], 0, 0)
if #top == 0 then
  return false
end

local member = top[1]
local id = string.sub(member, 18)
local key = ARGV[1] .. id
redis.call('ZREM', KEYS[1], member)
redis.call('ZADD', KEYS[3], ARGV[3], id)
redis.call('HSET', key,
  'state', 'active',
  'token', ARGV[4],
  'leaseExpiresAt', ARGV[3],
  'processedAt', ARGV[2],
  'wmember', '')
return redis.call('HGETALL', key)
`)

// KEYS: job, active
// ARGV: token, lease expiry, progress (-1 unchanged), id
var renewScript = redis.NewScript(holdsLease + `
redis.call('HSET', KEYS[1], 'leaseExpiresAt', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[4])
if tonumber(ARGV[3]) >= 0 then
  redis.call('HSET', KEYS[1], 'progress', ARGV[3])
end
return 1
`)

// KEYS: job, active, completed
// ARGV: token, now, keep, id, job key prefix
var completeScript = redis.NewScript(trimPartition + holdsLease + `
redis.call('ZREM', KEYS[2], ARGV[4])
redis.call('HSET', KEYS[1],
  'state', 'completed',
  'finishedAt', ARGV[2],
  'token', '',
  'leaseExpiresAt', '0')
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[4])
trim_partition(KEYS[3], tonumber(ARGV[3]), ARGV[5])
return 1
`)

// KEYS: job, active, failed, delayed
// ARGV: token, now, keep, id, job key prefix, retry (1|0), attempts, last error, availableAt
var failScript = redis.NewScript(trimPartition + holdsLease + `
redis.call('ZREM', KEYS[2], ARGV[4])
redis.call('HSET', KEYS[1],
  'attempts', ARGV[7],
  'lastError', ARGV[8],
  'token', '',
  'leaseExpiresAt', '0')
if ARGV[6] == '1' then
  redis.call('HSET', KEYS[1], 'state', 'delayed', 'availableAt', ARGV[9])
  redis.call('ZADD', KEYS[4], ARGV[9], ARGV[4])
  return 1
end
redis.call('HSET', KEYS[1], 'state', 'failed', 'finishedAt', ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[4])
trim_partition(KEYS[3], tonumber(ARGV[3]), ARGV[5])
return 1
`)

// KEYS: active, waiting, failed, seq
// ARGV: job key prefix, now, max stalled, stalled error, keep failed
var reclaimScript = redis.NewScript(enterWaiting + trimPartition + `
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[2])
local maxStalled = tonumber(ARGV[3])
local requeued, failed = 0, 0
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[1], id)
  local key = ARGV[1] .. id
  if redis.call('EXISTS', key) == 1 then
    local stalled = (tonumber(redis.call('HGET', key, 'stalled')) or 0) + 1
    redis.call('HSET', key, 'stalled', tostring(stalled), 'token', '', 'leaseExpiresAt', '0')
    if maxStalled > 0 and stalled > maxStalled then
      redis.call('HSET', key, 'state', 'failed', 'lastError', ARGV[4], 'finishedAt', ARGV[2])
      redis.call('ZADD', KEYS[3], ARGV[2], id)
      failed = failed + 1
    else
      enter_waiting(key, id, KEYS[2], KEYS[4])
      requeued = requeued + 1
    end
  end
end
if failed > 0 then
  trim_partition(KEYS[3], tonumber(ARGV[5]), ARGV[1])
end
return {requeued, failed}
`)

// KEYS: job, waiting, delayed, active, completed, failed
// ARGV: id
var removeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local member = redis.call('HGET', KEYS[1], 'wmember')
if member and member ~= '' then
  redis.call('ZREM', KEYS[2], member)
end
for i = 3, 6 do
  redis.call('ZREM', KEYS[i], ARGV[1])
end
redis.call('DEL', KEYS[1])
return 1
`)

// KEYS: job, failed, waiting, seq
// ARGV: id, now
// Returns the job's state when it cannot be requeued, "" when it does not exist.
var requeueScript = redis.NewScript(enterWaiting + `
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  return ''
end
if state ~= 'failed' then
  return state
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1],
  'attempts', '0',
  'stalled', '0',
  'progress', '0',
  'availableAt', ARGV[2],
  'finishedAt', '0')
enter_waiting(KEYS[1], ARGV[1], KEYS[3], KEYS[4])
return 'requeued'
`)

// KEYS: partition
// ARGV: job key prefix, cutoff, limit
var sweepScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[2], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  redis.call('DEL', ARGV[1] .. id)
  redis.call('ZREM', KEYS[1], id)
end
return #ids
`)

// KEYS: waiting, delayed
// ARGV: job key prefix
var emptyScript = redis.NewScript(`
local removed = 0
for _, member in ipairs(redis.call('ZRANGE', KEYS[1], 0, -1)) do
  redis.call('DEL', ARGV[1] .. string.sub(member, 18))
  removed = removed + 1
end
for _, id in ipairs(redis.call('ZRANGE', KEYS[2], 0, -1)) do
  redis.call('DEL', ARGV[1] .. id)
  removed = removed + 1
end
redis.call('DEL', KEYS[1], KEYS[2])
return removed
`)
