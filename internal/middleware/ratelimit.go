package middleware

import (
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/garage-parking/internal/config"
    "github.com/iliyamo/garage-parking/internal/logging"
)

// gcra is a generic cell rate limiter.  The key holds the theoretical
// arrival time (ms) of the next request; a request is admitted while that
// time is less than burst*emission ahead of now.  Returns
// {allowed, remaining, retry_after_ms}.  Running it as one script keeps
// every server instance on the same bucket per key.
var gcra = redis.NewScript(`
local now = tonumber(ARGV[1])
local emission = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])

local tat = tonumber(redis.call('GET', KEYS[1]))
if tat == nil or tat < now then
    tat = now
end

local tolerance = emission * burst
local next_tat = tat + emission
local allow_at = next_tat - tolerance
if allow_at > now then
    return { 0, 0, allow_at - now }
end

redis.call('SET', KEYS[1], next_tat, 'PX', math.max(1, next_tat - now))
return { 1, math.floor((tolerance - (next_tat - now)) / emission), 0 }
`)

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewTokenBucket limits requests per key (see buildRateKey) to cfg.Burst
// at once and one per cfg.Every after that.  Redis errors fail open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passThrough
    }
    emission := cfg.Every.Milliseconds()
    limit := strconv.Itoa(cfg.Burst)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            ctx := c.Request().Context()

            res, err := gcra.Run(ctx, rdb, []string{key}, time.Now().UnixMilli(), emission, cfg.Burst).Int64Slice()
            if err != nil || len(res) != 3 {
                logging.Warn(ctx).Err(err).Str("key", key).Str("result", fmt.Sprint(res)).Msg("ratelimit.redis_error")
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", limit)
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }

            if res[0] != 1 {
                secs := retryAfterSeconds(res[2])
                h.Set("Retry-After", strconv.FormatInt(secs, 10))
                logging.Debug(ctx).Str("key", key).Int64("retry_ms", res[2]).Msg("ratelimit.block")
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "too many requests",
                    "retry_after": secs,
                })
            }
            return next(c)
        }
    }
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(ms int64) int64 {
    if ms <= 0 {
        return 0
    }
    return (ms + 999) / 1000
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" { ip = "unknown" }
    op := operatorID(c)
    route := c.Request().Method + " " + c.Path()

    var parts []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = []string{"ip", ip}
    case "operator":
        parts = []string{"op", op}
    case "route":
        parts = []string{"route", route}
    case "operator_route":
        parts = []string{"op", op, "route", route}
    case "ip_operator_route":
        parts = []string{"ip", ip, "op", op, "route", route}
    default: // "ip_route"
        parts = []string{"ip", ip, "route", route}
    }
    return cfg.Prefix + ":" + strings.Join(parts, ":")
}
