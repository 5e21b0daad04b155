package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/wordquizzle/internal/api/apierr"
	"github.com/mcoot/wordquizzle/internal/api/handler"
	"github.com/mcoot/wordquizzle/internal/api/response"
	"github.com/mcoot/wordquizzle/internal/middleware"
	"github.com/mcoot/wordquizzle/internal/registry"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger   *slog.Logger
	Registry *registry.Registry
}

// NewRouter creates the admin API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	userHandler := handler.NewUserHandler(cfg.Registry)
	statsHandler := handler.NewStatsHandler(cfg.Registry)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger, writePanic))
	api.Use(middleware.Logging(cfg.Logger))

	api.HandleFunc("/users", userHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/users/{name}", userHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/users/{name}/ranking", userHandler.Ranking).Methods(http.MethodGet)
	api.HandleFunc("/stats", statsHandler.Get).Methods(http.MethodGet)

	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}

// writePanic answers a panicking handler with the JSON internal error body
func writePanic(w http.ResponseWriter, _ *http.Request, _ any) {
	apierr.WriteError(w, apierr.NewInternalError())
}
