package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

const maxBodyBytes = 1 << 20

// StartRunResponse is returned when a run is accepted.
type StartRunResponse struct {
	RunID    string `json:"run_id"`
	Workflow string `json:"workflow"`
}

// PlanResponse describes a workflow's execution plan.
type PlanResponse struct {
	Workflow     string              `json:"workflow"`
	Batches      [][]string          `json:"batches"`
	Order        []string            `json:"order"`
	Dependencies map[string][]string `json:"dependencies,omitempty"`
}

// CancelResponse is returned when a cancellation request is recorded.
type CancelResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// workflowRef selects a workflow from the watched directory by name.
type workflowRef struct {
	Workflow string          `json:"workflow"`
	Tools    json.RawMessage `json:"tools"`
}

// requestedWorkflow is a workflow taken from a request body, with the path
// it was loaded from when it came from the watched directory.
type requestedWorkflow struct {
	spec *core.WorkflowSpec
	path string
}

// readWorkflow decodes the request body as either an inline workflow
// document or a {"workflow": "<name>"} reference.
func (s *Server) readWorkflow(r *http.Request) (*requestedWorkflow, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, core.ErrPlanning(core.CodeInvalidSpec, "reading request body").WithCause(err)
	}
	if len(data) > maxBodyBytes {
		return nil, core.ErrPlanning(core.CodeInvalidSpec, fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes))
	}

	format := spec.FormatJSON
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = spec.FormatYAML
	}

	if format == spec.FormatJSON {
		var ref workflowRef
		if err := json.Unmarshal(data, &ref); err == nil && ref.Workflow != "" && ref.Tools == nil {
			return s.loadNamed(ref.Workflow)
		}
	}

	ws, err := s.loader.Parse(data, format)
	if err != nil {
		return nil, err
	}
	return &requestedWorkflow{spec: ws}, nil
}

func (s *Server) loadNamed(name string) (*requestedWorkflow, error) {
	if s.watcher == nil {
		return nil, core.ErrPlanning(core.CodeInvalidSpec,
			fmt.Sprintf("cannot resolve workflow %q: no workflow directory configured", name))
	}
	ws, path, err := s.watcher.Load(name)
	if err != nil {
		return nil, err
	}
	return &requestedWorkflow{spec: ws, path: path}, nil
}

// handleStartRun starts a run in the background and returns its id.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.readWorkflow(r)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	runID, err := s.runs.StartFrom(r.Context(), req.path, req.spec)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.logger.WithRun(runID).Info("run started via API", "workflow", req.spec.Name)
	w.Header().Set("Location", "/api/v1/runs/"+runID)
	s.respondJSON(w, http.StatusAccepted, StartRunResponse{RunID: runID, Workflow: req.spec.Name})
}

// handleListRuns lists retained runs in start order.
func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.runs.List())
}

// handleGetRun returns a live snapshot or the final result of a run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.runs.Get(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// handleCancelRun requests cancellation. The run stops asynchronously.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.runs.Cancel(runID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, CancelResponse{RunID: runID, Status: "cancelling"})
}

// handlePlan validates and plans a workflow without running it.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, err := s.readWorkflow(r)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	plan, err := s.runs.Plan(req.spec)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, PlanResponse{
		Workflow:     req.spec.Name,
		Batches:      plan.Batches,
		Order:        plan.Order(),
		Dependencies: plan.Dependencies,
	})
}

// handleListWorkflows lists workflows available by name.
func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	if s.watcher == nil {
		s.respondJSON(w, http.StatusOK, []string{})
		return
	}
	names, err := s.watcher.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, names)
}
