package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"math-race-service/internal/domain"
)

// RaceEngine is the slice of app.RaceService the transports drive.
type RaceEngine interface {
	Start(ctx context.Context, uid string, levelID int64) (domain.RaceGame, error)
	Status(ctx context.Context, gameID, uid string) (domain.StatusResult, error)
	SubmitAnswer(ctx context.Context, gameID, uid string, value int) (domain.AnswerResult, error)
	ActivatePowerUp(ctx context.Context, gameID, uid string, t domain.PowerUpType) (domain.PowerUpResult, error)
	Abandon(ctx context.Context, gameID, uid string) (domain.RaceGame, error)
	Subscribe(ctx context.Context, gameID, uid string) (<-chan domain.RaceGame, func(), error)
}

// RequestObserver records served API requests (see internal/metrics).
type RequestObserver interface {
	ObserveRequest(method, route string, code int, elapsed time.Duration)
}

// RouterOptions configures NewRouter. Zero values are usable.
type RouterOptions struct {
	Logger   *log.Logger
	Requests RequestObserver
	// Gatherer backs /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	// Timeout bounds every REST request. Websocket connections are not affected.
	Timeout time.Duration
}

// NewRouter wires the REST API, the websocket endpoint, health and metrics.
func NewRouter(engine RaceEngine, opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[http] ", log.LstdFlags)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	h := &raceHandlers{engine: engine}
	ws := NewWSHandler(engine, opts.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/ws", ws.ServeWS)

	r.Route("/api/v1/races", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.Timeout))
		r.Use(instrument(opts.Requests, opts.Logger))
		r.Post("/", h.start)
		r.Get("/{id}", h.status)
		r.Post("/{id}/answers", h.answer)
		r.Post("/{id}/power-ups", h.powerUp)
		r.Post("/{id}/abandon", h.abandon)
	})
	return r
}

// instrument logs and measures each request by its route pattern.
func instrument(obs RequestObserver, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			elapsed := time.Since(start)
			if obs != nil {
				obs.ObserveRequest(r.Method, route, code, elapsed)
			}
			if code >= http.StatusInternalServerError {
				logger.Printf("%s %s -> %d (%s) request_id=%s", r.Method, route, code, elapsed, middleware.GetReqID(r.Context()))
			}
		})
	}
}

type raceHandlers struct {
	engine RaceEngine
}

type startRequest struct {
	UID     string `json:"uid"`
	LevelID int64  `json:"levelId"`
}

type answerRequest struct {
	UID   string `json:"uid"`
	Value *int   `json:"value"`
}

type powerUpRequest struct {
	UID  string             `json:"uid"`
	Type domain.PowerUpType `json:"type"`
}

type uidRequest struct {
	UID string `json:"uid"`
}

func (h *raceHandlers) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UID == "" || req.LevelID <= 0 {
		writeBadRequest(w, "uid and levelId are required")
		return
	}
	game, err := h.engine.Start(r.Context(), req.UID, req.LevelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRaceView(game))
}

func (h *raceHandlers) status(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Status(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("uid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusView(res))
}

func (h *raceHandlers) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UID == "" || req.Value == nil {
		writeBadRequest(w, "uid and value are required")
		return
	}
	res, err := h.engine.SubmitAnswer(r.Context(), chi.URLParam(r, "id"), req.UID, *req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnswerView(res))
}

func (h *raceHandlers) powerUp(w http.ResponseWriter, r *http.Request) {
	var req powerUpRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UID == "" || req.Type == "" {
		writeBadRequest(w, "uid and type are required")
		return
	}
	res, err := h.engine.ActivatePowerUp(r.Context(), chi.URLParam(r, "id"), req.UID, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPowerUpView(res))
}

func (h *raceHandlers) abandon(w http.ResponseWriter, r *http.Request) {
	var req uidRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UID == "" {
		writeBadRequest(w, "uid is required")
		return
	}
	game, err := h.engine.Abandon(r.Context(), chi.URLParam(r, "id"), req.UID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRaceView(game))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
