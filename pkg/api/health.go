package api

import (
	"net/http"
	"time"
)

// leaderAware is implemented by history.RaftStore; asserted optionally so
// Server also works against a bare BoltStore in single-process tests.
type leaderAware interface {
	IsLeader() bool
	LeaderAddr() string
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type readyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// handleHealthz is a bare liveness check: 200 if the process can answer
// HTTP at all.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now()})
}

// handleReadyz checks Raft leadership (when the store exposes it) and a
// basic store read, matching the teacher's two-check readiness shape.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true
	var message string

	if la, ok := s.store.(leaderAware); ok {
		if la.IsLeader() {
			checks["raft"] = "leader"
		} else if addr := la.LeaderAddr(); addr != "" {
			checks["raft"] = "follower (leader: " + addr + ")"
		} else {
			checks["raft"] = "no leader elected"
			ready = false
			message = "waiting for leader election"
		}
	} else {
		checks["raft"] = "not raft-backed"
	}

	if _, err := s.store.ListInstances(); err != nil {
		checks["storage"] = "error: " + err.Error()
		ready = false
		if message == "" {
			message = "storage not accessible"
		}
	} else {
		checks["storage"] = "ok"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	respond(w, statusCode, readyResponse{Status: status, Timestamp: time.Now(), Checks: checks, Message: message})
}
