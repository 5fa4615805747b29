package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/affandar/toygres/pkg/types"
	"github.com/affandar/toygres/pkg/workflows"
)

// createInstanceRequest is the JSON body POST /api/v1/instances accepts.
// Name becomes both the instance's k8s_name and the WorkflowInstance id
// CreateInstance runs under.
type createInstanceRequest struct {
	Name            string `json:"name"`
	UserName        string `json:"user_name"`
	Password        string `json:"password"`
	PostgresVersion string `json:"postgres_version,omitempty"`
	StorageSizeGB   int    `json:"storage_size_gb,omitempty"`
	UseLoadBalancer bool   `json:"use_load_balancer,omitempty"`
	DNSLabel        string `json:"dns_label,omitempty"`
	Namespace       string `json:"namespace,omitempty"`
	CPURequest      string `json:"cpu_request,omitempty"`
	MemoryRequest   string `json:"memory_request,omitempty"`
	CPULimit        string `json:"cpu_limit,omitempty"`
	MemoryLimit     string `json:"memory_limit,omitempty"`
}

type startedResponse struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
}

func (s *Server) createInstance(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Name == "" || req.UserName == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name, user_name, and password are required")
		return
	}

	input := workflows.CreateInstanceInput{
		UserName:        req.UserName,
		K8sName:         req.Name,
		Password:        req.Password,
		PostgresVersion: req.PostgresVersion,
		StorageSizeGB:   req.StorageSizeGB,
		UseLoadBalancer: req.UseLoadBalancer,
		DNSLabel:        req.DNSLabel,
		Namespace:       req.Namespace,
		OrchestrationID: req.Name,
		CPURequest:      req.CPURequest,
		MemoryRequest:   req.MemoryRequest,
		CPULimit:        req.CPULimit,
		MemoryLimit:     req.MemoryLimit,
	}
	s.applyManifestOverrides(req.Name, &input)

	created, err := s.client.StartOrchestration(req.Name, workflows.NameCreateInstance, input)
	if err != nil {
		s.logger.Error().Err(err).Str("instance", req.Name).Msg("start create-instance")
		respondError(w, http.StatusInternalServerError, "internal", "failed to start orchestration")
		return
	}
	if !created {
		respondError(w, http.StatusConflict, "already_exists", "an instance with this name already exists")
		return
	}

	respond(w, http.StatusAccepted, startedResponse{InstanceID: req.Name, Status: string(types.WorkflowRunning)})
}

// applyManifestOverrides fills in any of the four resource fields the
// request left blank from the operator's manifest overrides file, keyed
// by instance name. A request's own values always win.
func (s *Server) applyManifestOverrides(name string, input *workflows.CreateInstanceInput) {
	override, ok := s.manifestOverrides[name]
	if !ok {
		return
	}
	if input.CPURequest == "" {
		input.CPURequest = override.CPURequest
	}
	if input.MemoryRequest == "" {
		input.MemoryRequest = override.MemoryRequest
	}
	if input.CPULimit == "" {
		input.CPULimit = override.CPULimit
	}
	if input.MemoryLimit == "" {
		input.MemoryLimit = override.MemoryLimit
	}
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	ids, err := s.client.ListInstances()
	if err != nil {
		s.logger.Error().Err(err).Msg("list instances")
		respondError(w, http.StatusInternalServerError, "internal", "failed to list instances")
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"instances": ids})
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.client.GetInstanceInfo(id)
	if err != nil {
		s.logger.Error().Err(err).Str("instance", id).Msg("get instance info")
		respondError(w, http.StatusInternalServerError, "internal", "failed to read instance")
		return
	}
	if info == nil {
		respondError(w, http.StatusNotFound, "not_found", "no such instance")
		return
	}
	respond(w, http.StatusOK, info)
}

// deleteInstanceResponse reports the id of the DeleteInstance
// orchestration started, distinct from the instance's own id so a caller
// can poll it via GetOrchestrationStatus without confusing it with the
// (by-then-terminal) CreateInstance run.
type deleteInstanceResponse struct {
	OrchestrationID string `json:"orchestration_id"`
	Status          string `json:"status"`
}

func (s *Server) deleteInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orchestrationID := "delete-" + id

	input := workflows.DeleteInstanceInput{Name: id, OrchestrationID: orchestrationID}
	created, err := s.client.StartOrchestration(orchestrationID, workflows.NameDeleteInstance, input)
	if err != nil {
		s.logger.Error().Err(err).Str("instance", id).Msg("start delete-instance")
		respondError(w, http.StatusInternalServerError, "internal", "failed to start orchestration")
		return
	}
	if !created {
		respondError(w, http.StatusConflict, "already_exists", "a deletion is already in progress for this instance")
		return
	}

	respond(w, http.StatusAccepted, deleteInstanceResponse{OrchestrationID: orchestrationID, Status: string(types.WorkflowRunning)})
}

type raiseEventRequest struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) raiseEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req raiseEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	var payload interface{}
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	if err := s.client.RaiseEvent(id, req.Name, payload); err != nil {
		s.logger.Error().Err(err).Str("instance", id).Str("event", req.Name).Msg("raise event")
		respondError(w, http.StatusInternalServerError, "internal", "failed to raise event")
		return
	}
	respond(w, http.StatusAccepted, nil)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	execIDs, err := s.client.ListExecutions(id)
	if err != nil {
		s.logger.Error().Err(err).Str("instance", id).Msg("list executions")
		respondError(w, http.StatusInternalServerError, "internal", "failed to list executions")
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"executions": execIDs})
}

func (s *Server) readExecutionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	execID, err := parseExecutionID(chi.URLParam(r, "execID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "execID must be an integer")
		return
	}

	events, err := s.client.ReadExecutionHistory(id, execID)
	if err != nil {
		s.logger.Error().Err(err).Str("instance", id).Int("execution", execID).Msg("read execution history")
		respondError(w, http.StatusInternalServerError, "internal", "failed to read execution history")
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) clusterSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.client.ClusterSummary()
	if err != nil {
		s.logger.Error().Err(err).Msg("cluster summary")
		respondError(w, http.StatusInternalServerError, "internal", "failed to compute cluster summary")
		return
	}
	respond(w, http.StatusOK, summary)
}
