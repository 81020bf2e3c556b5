// Package redis provides a Redis client component with connection pooling,
// lifecycle management, and health checks. It backs the document record
// store and the keyed rate limiters.
//
//	cfg := redis.Config{Enabled: true, Addr: "localhost:6379"}
//	component := redis.NewComponent(cfg, log)
package redis
