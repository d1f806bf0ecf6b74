package server

import "sync"

// PresenceTracker records which players currently belong to which session.
// Membership survives socket drops: a player stays present while their
// disconnect grace timer runs, which is what lets a reconnect within the
// window be distinguished from a stranger joining.
type PresenceTracker struct {
	members map[string]map[string]struct{} // sessionID → set of playerIDs
	mu      sync.RWMutex
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		members: make(map[string]map[string]struct{}),
	}
}

func (pt *PresenceTracker) RecordJoin(sessionID, playerID string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	set, ok := pt.members[sessionID]
	if !ok {
		set = make(map[string]struct{})
		pt.members[sessionID] = set
	}
	set[playerID] = struct{}{}
}

func (pt *PresenceTracker) RecordLeave(sessionID, playerID string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	set, ok := pt.members[sessionID]
	if !ok {
		return
	}
	delete(set, playerID)
	if len(set) == 0 {
		delete(pt.members, sessionID)
	}
}

func (pt *PresenceTracker) Contains(sessionID, playerID string) bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	_, ok := pt.members[sessionID][playerID]
	return ok
}

func (pt *PresenceTracker) MembersOf(sessionID string) []string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	set := pt.members[sessionID]
	out := make([]string, 0, len(set))
	for playerID := range set {
		out = append(out, playerID)
	}
	return out
}
