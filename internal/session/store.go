package session

import (
	"fmt"
	"sync"
)

// Store owns the UP-SEID -> Session table (§4.2). Its lock guards only
// the table itself; session contents are guarded by each Session's own
// mutex, so a classification in progress on one session never blocks a
// PFCP mutation on another.
type Store struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextSEID uint64
	capacity int
}

// NewStore creates a session table with room for up to capacity sessions.
func NewStore(capacity int) *Store {
	return &Store{
		sessions: make(map[uint64]*Session, capacity),
		nextSEID: 1, // UP-SEID is never zero
		capacity: capacity,
	}
}

// ErrNoResources is returned by Create when the table is full.
var ErrNoResources = fmt.Errorf("session store: no resources available")

// Create allocates a new session for cpSEID and returns its UP-SEID.
// Allocation is monotonic for the lifetime of the store; a freed UP-SEID
// is never reused (§4.2).
func (st *Store) Create(cpSEID uint64) (uint64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.sessions) >= st.capacity {
		return 0, ErrNoResources
	}

	upSEID := st.nextSEID
	st.nextSEID++
	st.sessions[upSEID] = newSession(upSEID, cpSEID)
	return upSEID, nil
}

// Find looks up a session by its UP-SEID in O(1).
func (st *Store) Find(upSEID uint64) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[upSEID]
	return s, ok
}

// FindByTEID scans all sessions for the one owning the highest-precedence
// PDR matching (teid, sourceIface). Ties across sessions are broken by
// lowest UP-SEID (oldest session wins), mirroring the intra-session I4
// tie-break. Used on the GTP-U ingress path (§4.5 stage 2-3).
func (st *Store) FindByTEID(teid uint32, sourceIface uint8) (*Session, *PDR, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var bestSession *Session
	var bestPDR PDR
	var bestUPSEID uint64

	for upSEID, s := range st.sessions {
		s.Lock()
		pdr, ok := s.MatchPDR(teid, sourceIface)
		var pdrCopy PDR
		if ok {
			pdrCopy = *pdr
		}
		s.Unlock()
		if !ok {
			continue
		}
		switch {
		case bestSession == nil:
		case pdrCopy.Precedence > bestPDR.Precedence:
		case pdrCopy.Precedence == bestPDR.Precedence && upSEID < bestUPSEID:
		default:
			continue
		}
		bestSession, bestPDR, bestUPSEID = s, pdrCopy, upSEID
	}

	if bestSession == nil {
		return nil, nil, false
	}
	return bestSession, &bestPDR, true
}

// Delete removes a session atomically, reporting whether it existed.
func (st *Store) Delete(upSEID uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[upSEID]; !ok {
		return false
	}
	delete(st.sessions, upSEID)
	return true
}

// Len reports the number of live sessions, used by /status and /stats.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Snapshot returns the UP-SEIDs of all live sessions, for admin listing.
func (st *Store) Snapshot() []uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]uint64, 0, len(st.sessions))
	for upSEID := range st.sessions {
		out = append(out, upSEID)
	}
	return out
}
