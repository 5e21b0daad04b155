package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/wordquizzle/internal/api/apierr"
	"github.com/mcoot/wordquizzle/internal/api/request"
	"github.com/mcoot/wordquizzle/internal/api/response"
	"github.com/mcoot/wordquizzle/internal/registry"
)

// UserHandler handles user registration and read-only user views
type UserHandler struct {
	registry *registry.Registry
}

// NewUserHandler creates a new user handler
func NewUserHandler(registry *registry.Registry) *UserHandler {
	return &UserHandler{
		registry: registry,
	}
}

// Register handles POST /api/v1/users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError(err.Error()))
		return
	}

	user, err := h.registry.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.UserFromModel(user))
}

// Get handles GET /api/v1/users/{name}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	user, err := h.registry.UserInfo(r.Context(), name)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user))
}

// Ranking handles GET /api/v1/users/{name}/ranking
func (h *UserHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	entries, err := h.registry.RankingOf(r.Context(), name)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Ranking{User: name, Entries: entries})
}
