package providers

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"google.golang.org/api/option"
)

var _ AuthProvider = &FirebaseAuthProvider{}

type FirebaseAuthProvider struct {
	// app is the Firebase app
	app *firebase.App
	// auth is the Firebase Auth client
	auth *auth.Client
}

type NewFirebaseAuthProviderOptions struct {
	ProjectID string
	// CredentialsFile is a service account key. When empty, application
	// default credentials are used.
	CredentialsFile string
}

// NewFirebaseAuthProvider creates a new FirebaseAuthProvider
func NewFirebaseAuthProvider(ctx context.Context, opts NewFirebaseAuthProviderOptions) (*FirebaseAuthProvider, error) {
	cfg := &firebase.Config{
		ProjectID: opts.ProjectID,
	}
	clientOpts := []option.ClientOption{}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, cfg, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %v", err)
	}

	auth, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Auth client: %v", err)
	}

	return &FirebaseAuthProvider{
		app:  app,
		auth: auth,
	}, nil
}

// VerifyToken verifies a Firebase ID token
func (p *FirebaseAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	token, err := p.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("error verifying token: %v", err)
	}

	claims := &TokenClaims{
		UID: token.UID,
	}
	if email, ok := token.Claims["email"].(string); ok {
		claims.Email = email
	}
	return claims, nil
}
