// Package collection maps (user, course) pairs to isolated retrieval
// engines. Each pair owns a directory under <dataDir>/collections/ holding
// its chunk store and any on-disk index state; a manager opens, caches,
// and closes the live handles. Isolation is structural: every operation
// starts at a key-indexed handle, so no code path can reach another
// collection's indexes.
package collection

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
)

// Key identifies one collection.
type Key struct {
	UserID   string
	CourseID string
}

// Validate checks that both ids are usable. The ids are hashed into the
// directory name rather than used as path components, so only empty and
// NUL-containing values are rejected.
func (k Key) Validate() error {
	if strings.TrimSpace(k.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(k.CourseID) == "" {
		return errors.New("course id is required")
	}
	if strings.ContainsRune(k.UserID, 0) || strings.ContainsRune(k.CourseID, 0) {
		return errors.New("ids must not contain NUL bytes")
	}
	return nil
}

// Name returns the canonical collection directory name: "sb_" plus the
// first 24 hex characters of SHA-1 over "<user>:<course>". Filesystem-safe
// no matter what the raw ids contain, and collision-free at the scale of
// one study installation.
func (k Key) Name() string {
	sum := sha1.Sum([]byte(k.UserID + ":" + k.CourseID))
	return "sb_" + hex.EncodeToString(sum[:])[:24]
}

// String renders the key for logs and error messages.
func (k Key) String() string {
	return k.UserID + "/" + k.CourseID
}
