package model

import "time"

// ResourceLock is a short-lived exclusive hold on one resource key. At most
// one live lock exists per key at any instant; the store, not the
// application, enforces this. A holder that crashes is reclaimed when
// ExpiresAt passes.
type ResourceLock struct {
	Key       string    `bson:"_id" json:"key"`
	HolderID  string    `bson:"holder_id" json:"holder_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Expired reports whether the lock's TTL has elapsed at the given instant.
func (l *ResourceLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
