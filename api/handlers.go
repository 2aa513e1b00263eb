package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"election-backend/models"
	"election-backend/service"
)

type updateDetailsRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type setBoothStatusRequest struct {
	Status string `json:"status"`
}

type addCandidateRequest struct {
	Name    string `json:"name"`
	PartyID string `json:"party_id"`
}

type submitVoteRequest struct {
	CandidateID string `json:"candidate_id"`
	BoothID     string `json:"booth_id"`
}

type setAuthorityKeyRequest struct {
	Authority int    `json:"authority"`
	Secret    string `json:"secret"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGetElection(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.election.GetElection())
}

func (s *Server) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req updateDetailsRequest
	if !s.decode(w, r, &req) {
		return
	}

	snapshot, err := s.election.UpdateDetails(req.Name, req.Type)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleStartElection(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.election.StartElection()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCloseElection(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.election.CloseElection()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleRegisterBooth(w http.ResponseWriter, r *http.Request) {
	var spec service.BoothSpec
	if !s.decode(w, r, &spec) {
		return
	}

	snapshot, err := s.election.RegisterBooth(spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleDeregisterBooth(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.election.DeregisterBooth(chi.URLParam(r, "boothID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSetBoothStatus(w http.ResponseWriter, r *http.Request) {
	var req setBoothStatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	snapshot, err := s.election.SetBoothStatus(chi.URLParam(r, "boothID"), models.BoothStatus(req.Status))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	var req addCandidateRequest
	if !s.decode(w, r, &req) {
		return
	}

	snapshot, err := s.election.AddCandidate(req.Name, req.PartyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleRemoveCandidate(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.election.RemoveCandidate(chi.URLParam(r, "candidateID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	var req submitVoteRequest
	if !s.decode(w, r, &req) {
		return
	}

	record, err := s.election.SubmitVote(req.CandidateID, req.BoothID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleSetAuthorityKey(w http.ResponseWriter, r *http.Request) {
	var req setAuthorityKeyRequest
	if !s.decode(w, r, &req) {
		return
	}

	snapshot, err := s.election.SetAuthorityKey(req.Authority, req.Secret)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	summary, err := s.election.DecryptAndTally()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	summary, err := s.election.Results()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.election.VerifyLedger())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.election.Metrics())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps the service's typed errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case service.IsValidation(err):
		status = http.StatusBadRequest
	case service.IsNotAuthorized(err):
		status = http.StatusForbidden
	case service.IsInvalidTransition(err):
		status = http.StatusConflict
	case service.IsDecryption(err):
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
