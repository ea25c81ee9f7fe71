package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/screenbeam/relay/backend/registry"
	"github.com/screenbeam/relay/backend/router"
	"github.com/screenbeam/relay/backend/service"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	logger := zerolog.Nop()
	reg := registry.New(registry.Config{Logger: &logger})
	rt := router.New(router.Config{Logger: &logger, Participants: reg})
	svc := service.NewService(service.Config{
		Registry: reg,
		Router:   rt,
		Logger:   &logger,
	})
	return NewServer(Config{
		Logger:         &logger,
		SessionService: svc,
		ListenAddr:     ":0",
	})
}

func TestServer_CreateSession(t *testing.T) {
	req := require.New(t)
	srv := newTestServer()

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))

	req.Equal(http.StatusOK, w.Code)
	req.Equal("application/json", w.Header().Get("Content-Type"))

	var resp CreateSessionResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.ID)
	req.NoError(err)
}

func TestServer_SessionStatus_AfterCreate(t *testing.T) {
	req := require.New(t)
	srv := newTestServer()

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	var created CreateSessionResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &created))

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil))

	req.Equal(http.StatusOK, w.Code)
	var status SessionStatusResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &status))
	req.Equal(created.ID, status.ID)
	req.Zero(status.Participants)
}

func TestServer_SessionStatus_Unknown(t *testing.T) {
	req := require.New(t)
	srv := newTestServer()

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+uuid.NewString(), nil))

	req.Equal(http.StatusNotFound, w.Code)
	var resp ErrorResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Equal("Session not found", resp.Error)
}

func TestServer_CORSPreflight(t *testing.T) {
	req := require.New(t)
	srv := newTestServer()

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/sessions", nil))

	req.Equal(http.StatusNoContent, w.Code)
	req.Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
}
