package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the revenue response cache.  When
// Enabled is false or no Redis client is available, caching is skipped.
// TTL bounds how stale a revenue figure may be after an exit commits.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool // upper-cased
    TTL          time.Duration
    KeyStrategy  string // route_query (default), route or method_route_query
    Prefix       string
    MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
        TTL:          envDur("CACHE_TTL", 15*time.Second),
        KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
        Prefix:       envStr("CACHE_PREFIX", "garage:cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 64<<10),
    }
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(strings.ToUpper(p)); p != "" {
            m[p] = true
        }
    }
    return m
}
