package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/hub"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/ws"
)

type Options struct {
	Rules          engine.Rules
	PublicURL      string
	OriginPatterns []string
	Logger         *zap.SugaredLogger
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger.Named("http")))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz(h))
	r.Get("/ws", ws.Handler(h, ws.Options{Rules: opts.Rules, OriginPatterns: opts.OriginPatterns}))

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", CreateRoom(h, opts.Rules))
		r.Get("/{code}", GetRoom(h))
		r.Get("/{code}/invite", Invite(h, opts.PublicURL))
		r.Get("/{code}/qr", QR(h, opts.PublicURL))
	})
	return r
}

// requestLogger puts a request-scoped logger into the context and logs each
// request once it completes.
func requestLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), reqLogger)))

			reqLogger.Debugw("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
