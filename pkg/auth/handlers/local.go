package handlers

import (
	"net/http"
	"net/mail"
	"strconv"

	authproviders "github.com/crazymaax404/ro-mvp-hunter/pkg/auth/providers"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/records"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength matches the Firebase weak password rule
	MinPasswordLength = 6
)

var _ AuthHandler = &LocalAuthHandler{}

// LocalAuthHandler implements AuthHandler against locally stored accounts,
// answering with the same bodies as the Firebase REST API.
type LocalAuthHandler struct {
	repository repositories.Repository
	records    *records.Service
	provider   *authproviders.JWTAuthProvider
	cost       int
}

type NewLocalAuthHandlerOptions struct {
	Repository repositories.Repository
	// Records clears an account's death records and announces the deletes.
	Records  *records.Service
	Provider *authproviders.JWTAuthProvider
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

func NewLocalAuthHandler(opts NewLocalAuthHandlerOptions) *LocalAuthHandler {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &LocalAuthHandler{
		repository: opts.Repository,
		records:    opts.Records,
		provider:   opts.Provider,
		cost:       cost,
	}
}

func (s *LocalAuthHandler) HandleRegister() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := credentialsFromForm(w, r)
		if !ok {
			return
		}
		if _, err := mail.ParseAddress(email); err != nil {
			http.Error(w, "Invalid email", http.StatusBadRequest)
			return
		}
		if len(password) < MinPasswordLength {
			http.Error(w, "Password should be at least 6 characters", http.StatusBadRequest)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
		if err != nil {
			log.Error("failed to hash password: %v", err)
			http.Error(w, "Failed to register", http.StatusInternalServerError)
			return
		}

		account, err := s.repository.CreateAccount(r.Context(), email, string(hash))
		if err != nil {
			if repositories.IsConflict(err) {
				http.Error(w, "Email already exists", http.StatusBadRequest)
				return
			}
			log.Error("failed to create account: %v", err)
			http.Error(w, "Failed to register", http.StatusInternalServerError)
			return
		}
		log.Info("Registered account %s", account.ID)

		idToken, refreshToken, ok := s.issueTokens(w, account)
		if !ok {
			return
		}
		writeJSON(w, &RegisterResponseBody{
			IDToken:      idToken,
			Email:        account.Email,
			RefreshToken: refreshToken,
			ExpiresIn:    s.expiresIn(),
			LocalID:      account.ID,
		})
	}
}

func (s *LocalAuthHandler) HandleLogin() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := credentialsFromForm(w, r)
		if !ok {
			return
		}

		account, err := s.repository.GetAccountByEmail(r.Context(), email)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Invalid credentials", http.StatusBadRequest)
				return
			}
			log.Error("failed to get account: %v", err)
			http.Error(w, "Failed to login", http.StatusInternalServerError)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
			http.Error(w, "Invalid credentials", http.StatusBadRequest)
			return
		}

		idToken, refreshToken, ok := s.issueTokens(w, account)
		if !ok {
			return
		}
		writeJSON(w, &LoginResponseBody{
			IDToken:      idToken,
			Email:        account.Email,
			RefreshToken: refreshToken,
			ExpiresIn:    s.expiresIn(),
			LocalID:      account.ID,
			Registered:   true,
		})
	}
}

func (s *LocalAuthHandler) HandleRefresh() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshToken := r.FormValue("refreshToken")
		if refreshToken == "" {
			http.Error(w, "Missing refresh token", http.StatusBadRequest)
			return
		}

		claims, err := s.provider.VerifyRefreshToken(refreshToken)
		if err != nil {
			log.Debug("rejected refresh token: %v", err)
			http.Error(w, "Invalid refresh token", http.StatusBadRequest)
			return
		}

		account, err := s.repository.GetAccount(r.Context(), claims.UID)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "User not found", http.StatusBadRequest)
				return
			}
			log.Error("failed to get account: %v", err)
			http.Error(w, "Failed to refresh", http.StatusInternalServerError)
			return
		}

		idToken, newRefreshToken, ok := s.issueTokens(w, account)
		if !ok {
			return
		}
		writeJSON(w, &RefreshResponseBody{
			ExpiresIn:    s.expiresIn(),
			TokenType:    "Bearer",
			RefreshToken: newRefreshToken,
			IDToken:      idToken,
			UserID:       account.ID,
		})
	}
}

// HandleDelete removes the account and every death record it owns.
func (s *LocalAuthHandler) HandleDelete() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		idToken := r.FormValue("idToken")
		if idToken == "" {
			http.Error(w, "Missing ID token", http.StatusBadRequest)
			return
		}

		claims, err := s.provider.VerifyToken(r.Context(), idToken)
		if err != nil {
			log.Debug("rejected ID token: %v", err)
			http.Error(w, "Invalid ID token", http.StatusBadRequest)
			return
		}

		// Records go first so a failure leaves the account in place for a retry.
		cleared, err := s.records.ClearAll(r.Context(), claims.UID)
		if err != nil {
			log.Error("failed to delete records of account %s: %v", claims.UID, err)
			http.Error(w, "Failed to delete", http.StatusInternalServerError)
			return
		}
		if err := s.repository.DeleteAccount(r.Context(), claims.UID); err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "User not found", http.StatusBadRequest)
				return
			}
			log.Error("failed to delete account: %v", err)
			http.Error(w, "Failed to delete", http.StatusInternalServerError)
			return
		}
		log.Info("Deleted account %s and %d records", claims.UID, cleared)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *LocalAuthHandler) issueTokens(w http.ResponseWriter, account *models.Account) (string, string, bool) {
	idToken, err := s.provider.IssueIDToken(account.ID, account.Email)
	if err != nil {
		log.Error("failed to issue ID token: %v", err)
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return "", "", false
	}
	refreshToken, err := s.provider.IssueRefreshToken(account.ID, account.Email)
	if err != nil {
		log.Error("failed to issue refresh token: %v", err)
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return "", "", false
	}
	return idToken, refreshToken, true
}

func (s *LocalAuthHandler) expiresIn() string {
	return strconv.Itoa(int(s.provider.IDTokenDuration().Seconds()))
}
