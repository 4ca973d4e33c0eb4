package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
)

const (
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
)

var _ AuthHandler = &FirebaseAuthHandler{}

// FirebaseAuthHandler implements AuthHandler using Firebase Auth REST API
type FirebaseAuthHandler struct {
	apiKey             string
	identityToolkitURL string
	secureTokenURL     string
	client             *http.Client
}

type NewFirebaseAuthHandlerOptions struct {
	APIKey string
	// IdentityToolkitURL and SecureTokenURL default to the Google endpoints.
	IdentityToolkitURL string
	SecureTokenURL     string
	Client             *http.Client
}

// NewFirebaseAuthHandler creates a new instance of FirebaseAuthHandler
func NewFirebaseAuthHandler(opts NewFirebaseAuthHandlerOptions) *FirebaseAuthHandler {
	h := &FirebaseAuthHandler{
		apiKey:             opts.APIKey,
		identityToolkitURL: strings.TrimSuffix(opts.IdentityToolkitURL, "/"),
		secureTokenURL:     strings.TrimSuffix(opts.SecureTokenURL, "/"),
		client:             opts.Client,
	}
	if h.identityToolkitURL == "" {
		h.identityToolkitURL = DefaultIdentityToolkitURL
	}
	if h.secureTokenURL == "" {
		h.secureTokenURL = DefaultSecureTokenURL
	}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	return h
}

// ErrorResponseBody is the response body for an error
// https://firebase.google.com/docs/reference/rest/auth#section-error-format
type ErrorResponseBody struct {
	Error struct {
		Code    int                  `json:"code"`
		Message ErrorResponseMessage `json:"message"`
	} `json:"error"`
}

type ErrorResponseMessage string

const (
	ErrorEmailExists             ErrorResponseMessage = "EMAIL_EXISTS"
	ErrorOperationNotAllowed     ErrorResponseMessage = "OPERATION_NOT_ALLOWED"
	ErrorTooManyAttempts         ErrorResponseMessage = "TOO_MANY_ATTEMPTS_TRY_LATER"
	ErrorInvalidEmail            ErrorResponseMessage = "INVALID_EMAIL"
	ErrorInvalidLoginCredentials ErrorResponseMessage = "INVALID_LOGIN_CREDENTIALS"
	ErrorTokenExpired            ErrorResponseMessage = "TOKEN_EXPIRED"
	ErrorInvalidRefreshToken     ErrorResponseMessage = "INVALID_REFRESH_TOKEN"
	ErrorInvalidIDToken          ErrorResponseMessage = "INVALID_ID_TOKEN"
	ErrorUserNotFound            ErrorResponseMessage = "USER_NOT_FOUND"
	ErrorWeakPassword            ErrorResponseMessage = "WEAK_PASSWORD : Password should be at least 6 characters"
)

// upstreamErrors maps Firebase error messages to client-facing messages.
// Anything missing is reported as an internal error.
type upstreamErrors map[ErrorResponseMessage]string

// RegisterRequestBody is the request body for the register endpoint
type RegisterRequestBody struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// RegisterResponseBody is the response body for the register endpoint
type RegisterResponseBody struct {
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

// HandleRegister handles requests to the register endpoint
// https://firebase.google.com/docs/reference/rest/auth#section-create-email-password
func (s *FirebaseAuthHandler) HandleRegister() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := credentialsFromForm(w, r)
		if !ok {
			return
		}

		s.forward(w, s.identityToolkitURL+"/accounts:signUp", &RegisterRequestBody{
			Email:             email,
			Password:          password,
			ReturnSecureToken: true,
		}, &RegisterResponseBody{}, "Failed to register", upstreamErrors{
			ErrorInvalidEmail:        "Invalid email",
			ErrorWeakPassword:        "Password should be at least 6 characters",
			ErrorEmailExists:         "Email already exists",
			ErrorOperationNotAllowed: "Operation not allowed",
			ErrorTooManyAttempts:     "Too many attempts, try again later",
		})
	}
}

// LoginRequestBody is the request body for the login endpoint
type LoginRequestBody struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// LoginResponseBody is the response body for the login endpoint
type LoginResponseBody struct {
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Registered   bool   `json:"registered"`
}

// HandleLogin handles requests to the login endpoint
// https://firebase.google.com/docs/reference/rest/auth#section-sign-in-email-password
func (s *FirebaseAuthHandler) HandleLogin() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := credentialsFromForm(w, r)
		if !ok {
			return
		}

		s.forward(w, s.identityToolkitURL+"/accounts:signInWithPassword", &LoginRequestBody{
			Email:             email,
			Password:          password,
			ReturnSecureToken: true,
		}, &LoginResponseBody{}, "Failed to login", upstreamErrors{
			ErrorInvalidEmail:            "Invalid email",
			ErrorInvalidLoginCredentials: "Invalid credentials",
			ErrorTooManyAttempts:         "Too many attempts, try again later",
		})
	}
}

// RefreshRequestBody is the request body for the refresh endpoint
type RefreshRequestBody struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponseBody is the response body for the refresh endpoint
type RefreshResponseBody struct {
	ExpiresIn    string `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
}

// HandleRefresh handles requests to the refresh endpoint
// https://firebase.google.com/docs/reference/rest/auth#section-refresh-token
func (s *FirebaseAuthHandler) HandleRefresh() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshToken := r.FormValue("refreshToken")
		if refreshToken == "" {
			http.Error(w, "Missing refresh token", http.StatusBadRequest)
			return
		}

		s.forward(w, s.secureTokenURL+"/token", &RefreshRequestBody{
			GrantType:    "refresh_token",
			RefreshToken: refreshToken,
		}, &RefreshResponseBody{}, "Failed to refresh", upstreamErrors{
			ErrorTokenExpired:        "Token expired",
			ErrorInvalidRefreshToken: "Invalid refresh token",
			ErrorUserNotFound:        "User not found",
		})
	}
}

// DeleteRequestBody is the request body for the delete endpoint
type DeleteRequestBody struct {
	IDToken string `json:"idToken"`
}

// HandleDelete handles requests to the delete endpoint
// https://firebase.google.com/docs/reference/rest/auth#section-delete-account
func (s *FirebaseAuthHandler) HandleDelete() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		idToken := r.FormValue("idToken")
		if idToken == "" {
			http.Error(w, "Missing ID token", http.StatusBadRequest)
			return
		}

		s.forward(w, s.identityToolkitURL+"/accounts:delete", &DeleteRequestBody{
			IDToken: idToken,
		}, nil, "Failed to delete", upstreamErrors{
			ErrorInvalidIDToken: "Invalid ID token",
			ErrorUserNotFound:   "User not found",
		})
	}
}

// forward posts the payload to a Firebase endpoint and relays the decoded
// response. A nil response relays only the status.
func (s *FirebaseAuthHandler) forward(w http.ResponseWriter, endpoint string, payload interface{}, response interface{}, failure string, known upstreamErrors) {
	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		log.Error("error encoding request body: %v", err)
		http.Error(w, "error encoding request body", http.StatusInternalServerError)
		return
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s?key=%s", endpoint, s.apiKey), body)
	if err != nil {
		log.Error("error creating request: %v", err)
		http.Error(w, "error creating request", http.StatusInternalServerError)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error("error sending request: %v", err)
		http.Error(w, "error sending request", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error("error response status: %s", resp.Status)
		errorResponse := &ErrorResponseBody{}
		if err := json.NewDecoder(resp.Body).Decode(errorResponse); err != nil {
			log.Error("failed to decode error response: %v", err)
			http.Error(w, "failed to decode error response", http.StatusInternalServerError)
			return
		}
		if message, ok := known[errorResponse.Error.Message]; ok {
			http.Error(w, message, http.StatusBadRequest)
			return
		}
		log.Error("unhandled error response message: %s", errorResponse.Error.Message)
		http.Error(w, failure, http.StatusInternalServerError)
		return
	}

	if response == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		log.Error("error decoding response: %v", err)
		http.Error(w, "error decoding response", http.StatusInternalServerError)
		return
	}
	writeJSON(w, response)
}
