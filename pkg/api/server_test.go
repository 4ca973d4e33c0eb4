package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/api/handlers"
	authproviders "github.com/crazymaax404/ro-mvp-hunter/pkg/auth/providers"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/network"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/records"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenAuthProvider accepts tokens of the form "token-<uid>".
type tokenAuthProvider struct{}

func (tokenAuthProvider) VerifyToken(ctx context.Context, idToken string) (*authproviders.TokenClaims, error) {
	uid, ok := strings.CutPrefix(idToken, "token-")
	if !ok || uid == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return &authproviders.TokenClaims{UID: uid}, nil
}

type testAPI struct {
	server  *httptest.Server
	broker  *changes.InMemoryBroker
	catalog *catalog.Catalog
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	repository, err := repositories.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(ctx) })

	broker := changes.NewInMemoryBroker()
	t.Cleanup(func() { broker.Close() })
	monsters, err := catalog.Default()
	require.NoError(t, err)

	opts := NewAPIServerOptions{
		AuthProvider: tokenAuthProvider{},
		Repository:   repository,
		Broker:       broker,
		Records: records.NewService(records.NewServiceOptions{
			Repository: repository,
			Broker:     broker,
			Catalog:    monsters,
		}),
	}
	server := httptest.NewServer(NewRouter(opts))
	t.Cleanup(server.Close)

	return &testAPI{server: server, broker: broker, catalog: monsters}
}

func (a *testAPI) subscribers(userID string) int {
	count, _ := a.broker.SubscriberCount(context.Background(), userID)
	return count
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPI_PublicRoutes(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = a.do(t, http.MethodGet, "/monsters", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	monsters := []handlers.MonsterResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&monsters))
	assert.Len(t, monsters, a.catalog.Len())
	assert.NotEmpty(t, monsters[0].Info.Competitiveness.Message)
}

func TestAPI_DeathsRequireAuth(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodGet, "/deaths", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/deaths", "bogus", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = a.do(t, http.MethodOptions, "/deaths", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_DeathLifecycle(t *testing.T) {
	a := newTestAPI(t)

	deathTime := time.Now().Add(-30 * time.Minute).UTC().Truncate(time.Millisecond)
	body := fmt.Sprintf(`{"deathTime":%q,"mapPosition":{"x":25,"y":75}}`, deathTime.Format(time.RFC3339Nano))
	resp := a.do(t, http.MethodPut, "/deaths/1039", "token-user-1", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stored := &models.DeathRecord{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(stored))
	assert.True(t, deathTime.Equal(stored.DeathTime))

	resp = a.do(t, http.MethodPut, "/deaths/1150", "token-user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/deaths", "token-user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := []records.Entry{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	for _, entry := range entries {
		if entry.MvpID == "1039" {
			require.NotNil(t, entry.MapPosition)
			assert.Equal(t, 25.0, entry.MapPosition.X)
			assert.Equal(t, respawn.StatusFar, entry.Respawn.Status)
		}
	}

	resp = a.do(t, http.MethodGet, "/deaths", "token-user-2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries = []records.Entry{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Empty(t, entries)

	resp = a.do(t, http.MethodDelete, "/deaths/1039", "token-user-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = a.do(t, http.MethodDelete, "/deaths/1039", "token-user-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = a.do(t, http.MethodDelete, "/deaths", "token-user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := &handlers.ClearAllResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(cleared))
	assert.Equal(t, 1, cleared.Deleted)
}

func TestAPI_SetDeathValidation(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodPut, "/deaths/unknown", "token-user-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, http.MethodPut, "/deaths/1039", "token-user-1", `{"mapPosition":{"x":-1,"y":5}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, http.MethodPut, "/deaths/1039", "token-user-1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_StreamWithQueryToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a := newTestAPI(t)

	client := network.NewFeedClient(network.NewFeedClientOptions{
		URL: a.server.URL + "/deaths/stream?access_token=token-user-1",
	})
	require.NoError(t, client.Connect(ctx))
	defer client.Close()
	require.Eventually(t, func() bool {
		return a.subscribers("user-1") == 1
	}, time.Second, 10*time.Millisecond)

	events := make(chan changes.Event, 1)
	go client.Listen(ctx, events)

	resp := a.do(t, http.MethodPut, "/deaths/1039", "token-user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case event := <-events:
		assert.Equal(t, changes.EventInsert, event.EventType)
		assert.Equal(t, "1039", event.MvpID())
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
