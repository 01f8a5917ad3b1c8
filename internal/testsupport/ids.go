package testsupport

import "github.com/google/uuid"

// UniqueHolderID returns a holder id no other test run will share,
// e.g. "investor-3f2a9c1e"
func UniqueHolderID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
