package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
)

// AuthHandler is an interface for handling authentication requests
type AuthHandler interface {
	HandleRegister() func(w http.ResponseWriter, r *http.Request)
	HandleLogin() func(w http.ResponseWriter, r *http.Request)
	HandleRefresh() func(w http.ResponseWriter, r *http.Request)
	HandleDelete() func(w http.ResponseWriter, r *http.Request)
}

// credentialsFromForm reads email and password, answering 400 when either is missing.
func credentialsFromForm(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	if email == "" {
		http.Error(w, "Missing email", http.StatusBadRequest)
		return "", "", false
	}
	if password == "" {
		http.Error(w, "Missing password", http.StatusBadRequest)
		return "", "", false
	}
	return email, password, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("error encoding response: %v", err)
		http.Error(w, "error encoding response", http.StatusInternalServerError)
	}
}
