package config

import "time"

// RateLimitConfig drives the Redis limiter in front of /revenue.  A key
// may spend Burst requests at once and then one every Every.  The webhook
// is never limited: dropping a lifecycle event would lose state that the
// positioning source does not resend.
type RateLimitConfig struct {
    Enabled     bool
    Burst       int
    Every       time.Duration
    KeyStrategy string // ip, operator, route, operator_route, ip_operator_route, ip_route
    Prefix      string
    Debug       bool
}

func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:     envBool("RATE_LIMIT_ENABLED", true),
        Burst:       envInt("RATE_LIMIT_BURST", 30),
        Every:       envDur("RATE_LIMIT_EVERY", time.Second),
        KeyStrategy: envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
        Prefix:      envStr("RATE_LIMIT_PREFIX", "garage:rl"),
        Debug:       envBool("RATE_LIMIT_DEBUG", false),
    }
    if cfg.Burst < 1 { cfg.Burst = 1 }
    if cfg.Every < time.Millisecond { cfg.Every = time.Second }
    return cfg
}

// Window is how long an idle key keeps state: the time to earn back a
// full burst.
func (c RateLimitConfig) Window() time.Duration {
    return time.Duration(c.Burst) * c.Every
}
