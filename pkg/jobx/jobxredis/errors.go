package jobxredis

import "github.com/Abraxas-365/jobqueue/pkg/errx"

var redisErrors = errx.NewRegistry("JOBX_REDIS")

var (
	ErrPush     = redisErrors.Register("PUSH", errx.TypeExternal, 502, "Redis push failed")
	ErrLease    = redisErrors.Register("LEASE", errx.TypeExternal, 502, "Redis lease failed")
	ErrTransit  = redisErrors.Register("TRANSITION", errx.TypeExternal, 502, "Redis state transition failed")
	ErrReclaim  = redisErrors.Register("RECLAIM", errx.TypeExternal, 502, "Redis reclaim failed")
	ErrRead     = redisErrors.Register("READ", errx.TypeExternal, 502, "Redis read failed")
	ErrSweep    = redisErrors.Register("SWEEP", errx.TypeExternal, 502, "Redis sweep failed")
	ErrDecode   = redisErrors.Register("DECODE", errx.TypeInternal, 500, "Failed to decode job hash")
	ErrBadReply = redisErrors.Register("BAD_REPLY", errx.TypeInternal, 500, "Unexpected reply from Redis script")
)
