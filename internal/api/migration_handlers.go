package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/field-migration-workbench/internal/migration"
	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// decodePlan parses a plan from a request payload and checks its strategy
// names. Transform functions cannot travel over the wire; mappings using
// the transform strategy are rejected here.
func decodePlan(raw *models.Plan) error {
	for _, m := range raw.Mappings {
		if _, err := models.ParseStrategy(string(m.Strategy)); err != nil {
			return fmt.Errorf("mapping %s → %s: %w", m.SourceField, m.TargetField, err)
		}
		if m.Strategy == models.StrategyTransform {
			return fmt.Errorf("mapping %s → %s: transform mappings need a transform function and cannot be submitted over the API", m.SourceField, m.TargetField)
		}
		if raw.CleanupOnly && m.PreserveSource {
			return fmt.Errorf("mapping %s → %s: preserve_source contradicts a cleanup-only plan", m.SourceField, m.TargetField)
		}
	}
	return nil
}

// ValidateMappings statically analyzes a mapping set without mutating
// anything. Accepts either full mappings or a plain source→target field map.
func (s *Server) ValidateMappings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	var req struct {
		Mappings []models.Mapping  `json:"mappings"`
		FieldMap map[string]string `json:"field_map"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	_, acc := s.engineFor(conn)
	validator := migration.NewValidator(acc)

	var result *models.MappingValidationResult
	var err error
	if len(req.Mappings) > 0 {
		for _, m := range req.Mappings {
			if _, perr := models.ParseStrategy(string(m.Strategy)); perr != nil {
				writeError(w, http.StatusBadRequest, perr.Error())
				return
			}
		}
		result, err = validator.Validate(r.Context(), req.Mappings)
	} else {
		result, err = validator.ValidateFieldMap(r.Context(), req.FieldMap)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "validation failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_valid":    result.IsValid(),
		"issues":      result.Issues,
		"suggestions": result.Suggestions,
	})
}

// AnalyzeConflicts computes the read-only conflict report for a plan.
func (s *Server) AnalyzeConflicts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	var plan models.Plan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := decodePlan(&plan); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine, _ := s.engineFor(conn)
	report, err := engine.AnalyzeConflicts(r.Context(), &plan)
	if err != nil {
		writeError(w, http.StatusBadGateway, "analysis failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RunDiscovery starts an async discovery job over candidate fields.
func (s *Server) RunDiscovery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	var req struct {
		FieldNames []string `json:"field_names"`
		SampleSize int      `json:"sample_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.FieldNames) == 0 {
		writeError(w, http.StatusBadRequest, "field_names is required")
		return
	}

	job := s.Jobs.Create("discovery", id)
	discoverer := migration.NewDiscoverer(s.storeFor(conn), s.Log)

	go func() {
		ctx := job.Context()
		job.AppendLog(fmt.Sprintf("Discovering usage across %d field(s) on %s", len(req.FieldNames), conn.Name))
		report, err := discoverer.Discover(ctx, req.FieldNames, req.SampleSize, job.AppendLog)
		if err != nil {
			job.AppendLog("ERROR: " + err.Error())
			job.Fail(err.Error())
			return
		}
		job.AppendLog(fmt.Sprintf("Discovery complete: %d opportunity(ies)", len(report.Opportunities)))
		job.Complete(report)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// RunExecution starts an async plan execution job.
func (s *Server) RunExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	var req struct {
		Plan     models.Plan `json:"plan"`
		Strategy string      `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := decodePlan(&req.Plan); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Plan.Mappings) == 0 {
		writeError(w, http.StatusBadRequest, "plan has no mappings")
		return
	}

	engine, acc := s.engineFor(conn)

	// Pre-flight: a plan with blocking errors never reaches the store.
	validation, err := migration.NewValidator(acc).Validate(r.Context(), req.Plan.Mappings)
	if err != nil {
		writeError(w, http.StatusBadGateway, "pre-flight validation failed: "+err.Error())
		return
	}
	if !validation.IsValid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "plan failed validation",
			"issues": validation.Issues,
		})
		return
	}

	job := s.Jobs.Create("migration-execute", id)
	plan := req.Plan

	go func() {
		ctx := job.Context()
		result, err := engine.Execute(ctx, &plan, req.Strategy, job.AppendLog)
		if err != nil {
			job.AppendLog("ERROR: " + err.Error())
			job.Fail(err.Error())
			return
		}
		job.Complete(result)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// ExportPlanHandler writes a plan to a file on the server.
func (s *Server) ExportPlanHandler(w http.ResponseWriter, r *http.Request) {
	if conn := s.Connections.Get(chi.URLParam(r, "id")); conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	var req struct {
		Plan   models.Plan `json:"plan"`
		Path   string      `json:"path"`
		Format string      `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if req.Format == "" {
		req.Format = migration.FormatYAML
	}
	if err := decodePlan(&req.Plan); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := migration.ExportPlan(&req.Plan, req.Path, req.Format); err != nil {
		writeError(w, http.StatusInternalServerError, "export failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path, "format": req.Format})
}

// ImportPlanHandler reads a previously exported plan and re-validates it
// against the connection's live schema.
func (s *Server) ImportPlanHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	_, acc := s.engineFor(conn)
	plan, validation, err := migration.ImportPlan(r.Context(), req.Path, acc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "import failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plan":        plan,
		"is_valid":    validation.IsValid(),
		"issues":      validation.Issues,
		"suggestions": validation.Suggestions,
	})
}
