// Package redis stores overlay settings and the verified session in Redis.
//
// It is optional: when REDIS_URL is unset the file store is used instead.
// Every command passes through a metrics hook and a circuit-breaker hook; the
// breaker serves the last value read for a key while Redis is unreachable.
package redis
