package session

import (
	"fmt"
	"sync"
)

// commandKey identifies a query command for the purposes of the
// unsupported-command set: distinct appliance type, message type, and
// body are treated as distinct commands even across adapters.
func commandKey(applianceType, messageType byte, body []byte) string {
	return fmt.Sprintf("%02x:%02x:%x", applianceType, messageType, body)
}

// unsupportedSet is the per-session record of query commands that have
// timed out without a reply. Subsequent refresh cycles skip them.
type unsupportedSet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func newUnsupportedSet() *unsupportedSet {
	return &unsupportedSet{set: make(map[string]struct{})}
}

func (u *unsupportedSet) mark(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.set[key] = struct{}{}
}

func (u *unsupportedSet) isUnsupported(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.set[key]
	return ok
}

func (u *unsupportedSet) reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.set = make(map[string]struct{})
}
