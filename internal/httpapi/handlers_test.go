package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/hub"
	"github.com/DoyleJ11/tugquiz-backend/internal/room"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, hub.Options{})
	srv := httptest.NewServer(SetupRoutes(h, Options{Rules: engine.DefaultRules(), PublicURL: "https://quiz.example/"}))
	t.Cleanup(srv.Close)
	return srv
}

func createRoom(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Code, room.CodeLength)
	return body.Code
}

func TestCreateAndViewRoom(t *testing.T) {
	srv := newAPI(t)
	code := createRoom(t, srv)

	resp, err := http.Get(srv.URL + "/rooms/" + code)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view RoomView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, code, view.Code)
	assert.Equal(t, 50, view.RopePosition)
	assert.Equal(t, engine.PhaseLobby, view.Phase)
	assert.False(t, view.Full)
}

func TestUnknownRoom(t *testing.T) {
	srv := newAPI(t)

	for _, path := range []string{"/rooms/NOPE1", "/rooms/NOPE1/invite", "/rooms/NOPE1/qr"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestInviteAndQR(t *testing.T) {
	srv := newAPI(t)
	code := createRoom(t, srv)

	resp, err := http.Get(srv.URL + "/rooms/" + code + "/invite")
	require.NoError(t, err)
	var body struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "https://quiz.example/?room="+code, body.URL)

	resp, err = http.Get(srv.URL + "/rooms/" + code + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestHealthz(t *testing.T) {
	srv := newAPI(t)
	createRoom(t, srv)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Rooms int `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Rooms)
}
