package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListCustomFields returns metadata for every custom field on a connection.
func (s *Server) ListCustomFields(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	fieldList, err := s.storeFor(conn).ListCustomFields(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "listing fields: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fieldList)
}

// GetFieldMetadata resolves one field name, standard or custom.
func (s *Server) GetFieldMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	_, acc := s.engineFor(conn)
	meta, err := acc.Metadata(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadGateway, "resolving field: "+err.Error())
		return
	}
	if meta == nil {
		writeError(w, http.StatusNotFound, "field not found")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}
