package api

import (
	"log/slog"

	"driverhub/internal/dispatch"
	"driverhub/internal/history"
)

// Server exposes the dispatch engine to the presentation layer.
type Server struct {
	Engine  *dispatch.Engine
	History history.Store
	RiderID int64
	Log     *slog.Logger
}

func NewServer(engine *dispatch.Engine, hist history.Store, riderID int64, log *slog.Logger) *Server {
	return &Server{Engine: engine, History: hist, RiderID: riderID, Log: log.With("component", "api")}
}
