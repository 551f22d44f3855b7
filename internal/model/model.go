// Package model defines domain records used by services and the HTTP layer.
package model

import "time"

// Document is a raw keyed record as stored in a collection.
type Document map[string]any

// RestoreResult reports the outcome of a single restore invocation.
// It is returned to the caller and never persisted.
type RestoreResult struct {
	Success             bool   `json:"success"`
	CollectionsRestored int    `json:"collectionsRestored"`
	DocumentsRestored   int    `json:"documentsRestored"`
	Timestamp           string `json:"timestamp"` // ISO-8601
	Error               string `json:"error,omitempty"`
}

// RestoreProgress is passed to progress callbacks during a restore.
type RestoreProgress struct {
	Collection       string
	CollectionsDone  int
	CollectionsTotal int
	DocumentsDone    int
	DocumentsTotal   int
}

// RateLimitRecord is the persisted per-user AI quota counter.
// The record is never deleted; expiry is implicit via ResetAt.
type RateLimitRecord struct {
	UserID        string
	Count         int
	ResetAt       time.Time
	LastRequestAt time.Time
}

// Identity is the verified caller resolved by the auth middleware.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Roles   []string
	Admin   bool // pre-established by the token's realm roles
}

// HasRole reports whether the identity carries the given realm role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}
