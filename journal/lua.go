package journal

const (
	luaAppendEvent = `
		-- Atomically append one event, skipping recorded versions
		-- KEYS[1] = event list key
		-- KEYS[2] = base version key (version of the first event)
		-- KEYS[3] = last version key
		-- ARGV[1] = event version
		-- ARGV[2] = event data (JSON)
		-- Returns: {1, version} if appended, {0, last} if already
		-- recorded, or {-1, last} if the version leaves a gap

		local version = tonumber(ARGV[1])
		local lastStr = redis.call('GET', KEYS[3])

		if not lastStr then
			redis.call('SET', KEYS[2], version)
			redis.call('SET', KEYS[3], version)
			redis.call('RPUSH', KEYS[1], ARGV[2])
			return {1, version}
		end

		local last = tonumber(lastStr)
		if version <= last then
			return {0, last}
		end
		if version ~= last + 1 then
			return {-1, last}
		end

		redis.call('RPUSH', KEYS[1], ARGV[2])
		redis.call('SET', KEYS[3], version)
		return {1, version}
		`

	luaReadEvents = `
		-- Get events starting at a given version
		-- KEYS[1] = event list key
		-- KEYS[2] = base version key
		-- ARGV[1] = starting version

		local baseStr = redis.call('GET', KEYS[2])
		if not baseStr then
			return {}
		end

		local startIndex = tonumber(ARGV[1]) - tonumber(baseStr)
		if startIndex < 0 then
			startIndex = 0
		end
		return redis.call('LRANGE', KEYS[1], startIndex, -1)
		`
)
