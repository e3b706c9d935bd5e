package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"driverhub/internal/dispatch"
	"driverhub/internal/model"
)

// StateHandler handles GET /v1/driver/state
func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

// ToggleHandler handles POST /v1/driver/toggle
func (s *Server) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.Engine.ToggleOnline(r.Context())
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

// VehicleHandler handles PUT /v1/driver/vehicle
func (s *Server) VehicleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Vehicle string `json:"vehicle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	s.Engine.SetVehicle(model.NormalizeVehicle(req.Vehicle))
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

// RequestsHandler handles POST /v1/requests/{requestId}/accept|decline
func (s *Server) RequestsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/requests/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	requestID, action := parts[0], parts[1]

	var err error
	switch action {
	case "accept":
		err = s.Engine.AcceptOrder(r.Context(), requestID)
	case "decline":
		err = s.Engine.DeclineOrder(r.Context(), requestID)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrUnknownRequest):
			writeProblem(w, http.StatusNotFound, "Unknown request", err.Error(), r.URL.Path)
		case errors.Is(err, dispatch.ErrOrderActive):
			writeProblem(w, http.StatusConflict, "Order already active", err.Error(), r.URL.Path)
		default:
			writeProblem(w, http.StatusBadGateway, "Backend call failed", err.Error(), r.URL.Path)
		}
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

// OrderHandler handles POST /v1/order/arrived|pickup|complete and
// GET/POST /v1/order/messages. Guarded phase transitions that do not
// apply are no-ops, so every POST answers with the current snapshot.
func (s *Server) OrderHandler(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/v1/order/")
	switch action {
	case "arrived":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.Engine.ArrivedAtShop()
	case "pickup":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.Engine.PickupOrder()
	case "complete":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.Engine.CompleteOrder()
	case "messages":
		s.messagesHandler(w, r)
		return
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"messages": s.Engine.Snapshot().Messages})
	case http.MethodPost:
		var req struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.Content == "" {
			writeProblem(w, http.StatusBadRequest, "Empty message", "content is required", r.URL.Path)
			return
		}
		msg := s.Engine.SendMessage(req.Content)
		writeJSON(w, http.StatusCreated, msg)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HistoryHandler handles GET /v1/history
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	recs, err := s.History.List(r.Context(), s.RiderID, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List history failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": recs})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
