package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "deskhive"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Lock TTL bounds the critical section of booking commits and capacity
	// rewrites. A holder that crashes is reclaimed after this duration.
	DefaultLockTTL = 10 * time.Second

	// Check-in is accepted within this window around the slot start; a
	// booking still upcoming after start+grace may be marked no-show.
	DefaultCheckInGrace = 15 * time.Minute

	DefaultDefaultSlotUnits = 1

	DefaultModerateThreshold = 50
	DefaultBusyThreshold     = 80

	DefaultPaginationLimit = 100
)
