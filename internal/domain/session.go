package domain

import "time"

// SessionState is the per-conversation state held by the session store.
// Data is arbitrary nested JSON-shaped state; Timestamp is the last write
// time and drives TTL expiration.
type SessionState struct {
	ID        string         `json:"session_id"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Clone returns a deep copy.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	return &SessionState{
		ID:        s.ID,
		Data:      DeepCopyMap(s.Data),
		Timestamp: s.Timestamp,
	}
}

// Expired reports whether the session is past its TTL at the given instant.
func (s *SessionState) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.Timestamp) > ttl
}
