package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/api/middleware"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/records"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/version"
	"github.com/gorilla/mux"
)

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// MonsterResponse is a catalog entry with its info badges
type MonsterResponse struct {
	catalog.Monster
	Info catalog.Info `json:"info"`
}

// SetDeathRequest is the body of PUT /deaths/{mvpID}. A missing death time
// means the monster died now.
type SetDeathRequest struct {
	DeathTime   *time.Time          `json:"deathTime,omitempty"`
	MapPosition *models.MapPosition `json:"mapPosition,omitempty"`
}

// ClearAllResponse is the body of DELETE /deaths
type ClearAllResponse struct {
	Deleted int `json:"deleted"`
}

func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, &HealthResponse{
			Status:  "ok",
			Version: version.Get(),
		})
	}
}

func HandleListMonsters(c *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monsters := c.List()
		response := make([]MonsterResponse, 0, len(monsters))
		for _, m := range monsters {
			response = append(response, MonsterResponse{Monster: m, Info: catalog.InfoFor(m)})
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func HandleListDeaths(service *records.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		entries, err := service.List(r.Context(), user.ID, time.Now())
		if err != nil {
			log.Error("failed to list deaths: %v", err)
			http.Error(w, "Failed to list deaths", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func HandleSetDeath(service *records.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		mvpID := mux.Vars(r)["mvpID"]

		request := &SetDeathRequest{}
		if err := json.NewDecoder(r.Body).Decode(request); err != nil && err != io.EOF {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		deathTime := time.Now()
		if request.DeathTime != nil {
			deathTime = *request.DeathTime
		}

		stored, err := service.SetDeathTime(r.Context(), user.ID, mvpID, deathTime, request.MapPosition)
		if err != nil {
			switch {
			case records.IsUnknownMonster(err):
				http.Error(w, "Unknown monster", http.StatusBadRequest)
			case records.IsInvalidPosition(err):
				http.Error(w, "Map position must be between 0 and 100", http.StatusBadRequest)
			default:
				log.Error("failed to set death time: %v", err)
				http.Error(w, "Failed to set death time", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, stored)
	}
}

func HandleClearDeath(service *records.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		if err := service.Clear(r.Context(), user.ID, mux.Vars(r)["mvpID"]); err != nil {
			log.Error("failed to clear death: %v", err)
			http.Error(w, "Failed to clear death", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleClearAllDeaths(service *records.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		deleted, err := service.ClearAll(r.Context(), user.ID)
		if err != nil {
			log.Error("failed to clear deaths: %v", err)
			http.Error(w, "Failed to clear deaths", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, &ClearAllResponse{Deleted: deleted})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}
