package rest

import (
	"context"
	"net/http"
	"time"

	"carechat/application/commands/bus"
	"carechat/application/ports"
	querybus "carechat/application/queries/bus"
	"carechat/application/services"
	"carechat/interfaces/http/rest/handlers"
	"carechat/interfaces/http/rest/middleware"
	"carechat/pkg/auth"
	pkgerrors "carechat/pkg/errors"
	"carechat/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig holds the HTTP surface settings
type RouterConfig struct {
	AllowedOrigins []string
	EnableCORS     bool
	Debug          bool

	// RateLimit and RateWindow describe the turn limit for error messages
	RateLimit  int
	RateWindow time.Duration
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus  *bus.CommandBus
	queryBus    *querybus.QueryBus
	chat        *services.ChatService
	transcriber ports.Transcriber
	validator   *auth.JWTValidator
	limiter     auth.RateLimiter
	metrics     *observability.Collector
	ready       func(ctx context.Context) error
	config      RouterConfig
	logger      *zap.Logger
}

// NewRouter creates a new router instance. transcriber, validator, limiter,
// metrics and ready are optional.
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	chat *services.ChatService,
	transcriber ports.Transcriber,
	validator *auth.JWTValidator,
	limiter auth.RateLimiter,
	metrics *observability.Collector,
	ready func(ctx context.Context) error,
	config RouterConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus:  commandBus,
		queryBus:    queryBus,
		chat:        chat,
		transcriber: transcriber,
		validator:   validator,
		limiter:     limiter,
		metrics:     metrics,
		ready:       ready,
		config:      config,
		logger:      logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()
	errs := pkgerrors.NewErrorHandler(rt.logger, rt.config.Debug)

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.metrics != nil {
		router.Use(rt.metrics.Middleware)
	}

	if rt.config.EnableCORS {
		origins := rt.config.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errs.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errs.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	chatHandler := handlers.NewChatHandler(rt.chat, errs, rt.config.AllowedOrigins, rt.logger)
	conversationHandler := handlers.NewConversationHandler(rt.commandBus, rt.queryBus, errs, rt.logger)
	feedbackHandler := handlers.NewFeedbackHandler(rt.commandBus, errs)
	profileHandler := handlers.NewProfileHandler(rt.queryBus, errs)
	transcriptionHandler := handlers.NewTranscriptionHandler(rt.transcriber, errs, rt.logger)

	limited := func(next http.Handler) http.Handler { return next }
	if rt.limiter != nil {
		limited = middleware.RateLimit(rt.limiter, rt.config.RateLimit, rt.config.RateWindow.String(), errs, rt.logger)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalIdentity(rt.validator, errs, rt.logger))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)
			r.Get("/current", conversationHandler.Current)
			r.Get("/{conversationID}", conversationHandler.Get)
			r.Delete("/{conversationID}", conversationHandler.Close)
			r.With(limited).Post("/{conversationID}/turns", chatHandler.Turn)
		})

		r.With(limited).Get("/ws", chatHandler.WebSocket)
		r.Post("/feedback", feedbackHandler.Submit)
		r.Get("/profiles/{userIdentifier}", profileHandler.Get)
		r.With(limited).Post("/transcriptions", transcriptionHandler.Transcribe)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports whether the store answers
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if rt.ready != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := rt.ready(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
