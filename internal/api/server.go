package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/fields"
	"github.com/rflorenc/field-migration-workbench/internal/migration"
	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

// Server holds shared state for all API handlers.
type Server struct {
	Connections *models.ConnectionStore
	Jobs        *models.JobStore
	Log         zerolog.Logger

	// CacheTTL bounds the per-connection field-metadata cache.
	CacheTTL time.Duration

	// NewStore builds the record-store client for a connection. Tests and
	// the -demo mode swap in an in-memory store.
	NewStore func(conn *models.Connection, log zerolog.Logger) store.RecordStore

	mu      sync.Mutex
	engines map[string]*engineEntry
}

// engineEntry keeps one engine and its accessor per connection, so the
// field-metadata cache survives across requests.
type engineEntry struct {
	engine   *migration.Engine
	accessor *fields.Accessor
}

// engineFor returns (building if needed) the engine for a connection.
func (s *Server) engineFor(conn *models.Connection) (*migration.Engine, *fields.Accessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engines == nil {
		s.engines = make(map[string]*engineEntry)
	}
	if e, ok := s.engines[conn.ID]; ok {
		return e.engine, e.accessor
	}

	newStore := s.NewStore
	if newStore == nil {
		newStore = func(c *models.Connection, log zerolog.Logger) store.RecordStore {
			return store.NewClient(c, log)
		}
	}
	rs := newStore(conn, s.Log)
	acc := fields.NewAccessor(rs, s.CacheTTL, s.Log)
	entry := &engineEntry{
		engine:   migration.NewEngine(rs, acc, s.Log),
		accessor: acc,
	}
	s.engines[conn.ID] = entry
	return entry.engine, entry.accessor
}

// dropEngine forgets a connection's cached engine, e.g. after an update.
func (s *Server) dropEngine(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.engines, connID)
}

// storeFor returns a fresh record-store client for a connection.
func (s *Server) storeFor(conn *models.Connection) store.RecordStore {
	if s.NewStore != nil {
		return s.NewStore(conn, s.Log)
	}
	return store.NewClient(conn, s.Log)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
