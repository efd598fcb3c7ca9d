// Package handler serves the agent's HTTP surface: the snapshot query API, runtime
// metadata, the Prometheus exposition and the websocket push stream.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Schera-ole/eidolon/internal/broadcast"
	"github.com/Schera-ole/eidolon/internal/config"
	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	middlewareinternal "github.com/Schera-ole/eidolon/internal/middleware"
	models "github.com/Schera-ole/eidolon/internal/model"
	"github.com/Schera-ole/eidolon/internal/service"
)

// apiTimeout bounds request handling for the query API. The push stream is exempt.
const apiTimeout = 15 * time.Second

// Router builds the agent routes mounted under config.ContextPath. registry may be nil,
// in which case the push stream is not exposed; so may metricsHandler.
func Router(
	metricService *service.MetricsService,
	registry *broadcast.Registry,
	metricsHandler http.Handler,
	config *config.AgentConfig,
	logger *zap.SugaredLogger,
) chi.Router {
	router := chi.NewRouter()
	router.Use(middlewareinternal.LoggingMiddleware(logger))
	router.Use(middlewareinternal.GzipMiddleware)
	router.Use(middleware.StripSlashes)

	routes := func(r chi.Router) {
		r.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(apiTimeout))
			api.Get("/api/metrics/snapshot", func(w http.ResponseWriter, r *http.Request) {
				SnapshotHandler(w, r, metricService, logger)
			})
			api.Get("/api/metrics/heap", func(w http.ResponseWriter, r *http.Request) {
				SectionHandler(w, r, metricService, logger, func(s *models.MetricsSnapshot) any { return s.Heap })
			})
			api.Get("/api/metrics/threads", func(w http.ResponseWriter, r *http.Request) {
				SectionHandler(w, r, metricService, logger, func(s *models.MetricsSnapshot) any { return s.Threads })
			})
			api.Get("/api/metrics/classes", func(w http.ResponseWriter, r *http.Request) {
				SectionHandler(w, r, metricService, logger, func(s *models.MetricsSnapshot) any { return s.Classes })
			})
			api.Get("/api/metrics/string-table", func(w http.ResponseWriter, r *http.Request) {
				SectionHandler(w, r, metricService, logger, func(s *models.MetricsSnapshot) any { return s.StringTable })
			})
			api.Get("/api/metrics/gc/events", func(w http.ResponseWriter, r *http.Request) {
				SectionHandler(w, r, metricService, logger, func(s *models.MetricsSnapshot) any { return s.RecentGcEvents })
			})
			api.Get("/api/runtime", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, metricService.RuntimeInfo(), logger)
			})
			api.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
				PingHandler(w, r, metricService, logger)
			})
			if metricsHandler != nil {
				api.Method(http.MethodGet, "/metrics", metricsHandler)
			}
		})
		if registry != nil && config.WebsocketEnabled {
			r.Get("/ws/metrics", func(w http.ResponseWriter, r *http.Request) {
				StreamHandler(w, r, registry, logger)
			})
		}
	}

	if config.ContextPath == "/" {
		routes(router)
	} else {
		router.Route(config.ContextPath, routes)
	}
	return router
}

// SnapshotHandler writes the serialized latest snapshot as published, or the no-data
// document with 503 before the first one.
func SnapshotHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService, logger *zap.SugaredLogger) {
	payload, err := metricService.LatestPayload(r.Context())
	if err != nil {
		writeUnavailable(w, err, logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		logger.Debugw("write snapshot", "error", err)
	}
}

// SectionHandler writes one part of the latest snapshot.
func SectionHandler(
	w http.ResponseWriter,
	r *http.Request,
	metricService *service.MetricsService,
	logger *zap.SugaredLogger,
	section func(*models.MetricsSnapshot) any,
) {
	snapshot, err := metricService.Latest(r.Context())
	if err != nil {
		writeUnavailable(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, section(snapshot), logger)
}

// PingHandler reports liveness of the agent.
func PingHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService, logger *zap.SugaredLogger) {
	if err := metricService.Ping(r.Context()); err != nil {
		logger.Infow("ping failed", "error", err)
		http.Error(w, "Agent stopped: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeUnavailable(w http.ResponseWriter, err error, logger *zap.SugaredLogger) {
	if errors.Is(err, internalerrors.ErrSnapshotUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, models.NoData{Status: models.NoDataStatus}, logger)
		return
	}
	logger.Errorw("latest snapshot unreadable", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.SugaredLogger) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Errorw("marshal response", "error", err)
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Debugw("write response", "error", err)
	}
}
