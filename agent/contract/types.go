package contract

import "time"

// AgentRequest is one user turn handed to an agent.
type AgentRequest struct {
	UserID    int64
	Query     string
	SessionID string
}

// MemoryMatch is one similarity hit from the vector memory store.
type MemoryMatch struct {
	Content    string
	Agent      string
	Similarity float64
	CreatedAt  time.Time
}
