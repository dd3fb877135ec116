package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/hub"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/session"
)

const qrSize = 320 // mobile-friendly size

// RoomView is the public, read-only summary of a room.
type RoomView struct {
	Code         string          `json:"code"`
	Players      []engine.Player `json:"players"`
	RopePosition int             `json:"ropePosition"`
	Phase        engine.Phase    `json:"phase"`
	GameStarted  bool            `json:"gameStarted"`
	WinnerName   string          `json:"winnerName,omitempty"`
	Round        int             `json:"round"`
	Mode         engine.Mode     `json:"mode"`
	Version      int             `json:"version"`
	Full         bool            `json:"full"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func CreateRoom(h *hub.Hub, rules engine.Rules) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := h.Create(r.Context(), engine.NewState("", rules))
		if err != nil {
			logging.FromContext(r.Context()).Errorw("failed to create room", "err", err)
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: rm.Code()})
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		rm, err := h.Get(r.Context(), code)
		if err != nil {
			roomError(w, err)
			return
		}
		view, err := rm.Snapshot(r.Context())
		if err != nil {
			roomError(w, err)
			return
		}

		st := view.State
		writeJSON(w, http.StatusOK, RoomView{
			Code:         code,
			Players:      st.Players,
			RopePosition: st.RopePosition,
			Phase:        st.Phase,
			GameStarted:  st.GameStarted,
			WinnerName:   st.WinnerName,
			Round:        st.Round,
			Mode:         st.Rules.Mode,
			Version:      view.Version,
			Full:         st.Full(),
		})
	}
}

// Invite returns the link a second player opens to join the room.
func Invite(h *hub.Hub, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if _, err := h.Get(r.Context(), code); err != nil {
			roomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			URL string `json:"url"`
		}{URL: session.InviteURL(baseURL(r, publicURL), code)})
	}
}

// QR renders the invite link as a PNG.
func QR(h *hub.Hub, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if _, err := h.Get(r.Context(), code); err != nil {
			roomError(w, err)
			return
		}

		png, err := qrcode.Encode(session.InviteURL(baseURL(r, publicURL), code), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func Healthz(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.Count(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
			Rooms  int    `json:"rooms"`
		}{Status: "ok", Rooms: n})
	}
}

func roomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrRoomNotFound), errors.Is(err, engine.ErrRoomClosed):
		http.Error(w, "room not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// baseURL prefers the configured public URL and otherwise derives one from
// the request, respecting TLS and X-Forwarded-Proto.
func baseURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return strings.TrimSuffix(publicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
