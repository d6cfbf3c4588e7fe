package redis

const (
	// updateActivityScript overwrites an activity only if it already exists
	updateActivityScript = `
local activities = KEYS[1]  -- promptlog:v1:activities

local id = ARGV[1]
local payload = ARGV[2]

if redis.call('HEXISTS', activities, id) == 0 then
  return 0
end

redis.call('HSET', activities, id, payload)
return 1
`

	// saveSessionScript replaces the session hash so no stale fields survive
	saveSessionScript = `
local session_key = KEYS[1]  -- promptlog:v1:session

redis.call('DEL', session_key)
redis.call('HSET', session_key, unpack(ARGV))
return 1
`
)
