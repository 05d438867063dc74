package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the Redis response cache placed in front of
// read-only JSON endpoints.  Caching is skipped when Enabled is false or no
// Redis client is available.  Only methods listed in Methods are cached.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig builds a CacheConfig from CACHE_* variables.  The default TTL
// is short because the cached payloads are counters that move with every
// issued ticket.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      parseMethods(getenv("CACHE_METHODS", "GET")),
        TTL:          envDur("CACHE_TTL", 5*time.Second),
        Prefix:       getenv("CACHE_PREFIX", "vat:cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 64<<10),
    }
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(strings.ToUpper(p))
        if p != "" {
            m[p] = true
        }
    }
    return m
}
