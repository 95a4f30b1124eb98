package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/ersim-ai-platform/internal/http/middleware"
	"github.com/wolfman30/ersim-ai-platform/internal/resources"
	"github.com/wolfman30/ersim-ai-platform/internal/voice"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	ResourcesHandler    *resources.Handler
	VoiceHandler        *voice.Handler
	MetricsHandler      http.Handler
	RateLimiter         *httpmiddleware.RateLimiter
	CORSAllowedOrigins  []string
	AuthJWTSecret       string
}

// New creates the chi router for the simulator API.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.LearnerAuth(cfg.AuthJWTSecret))
		if cfg.RateLimiter != nil {
			api.Use(cfg.RateLimiter.Middleware)
		}

		api.Route("/api/sim", func(sim chi.Router) {
			if h := cfg.ConversationHandler; h != nil {
				sim.Post("/respond", h.Respond)
				sim.Get("/sessions/{sessionID}/turns", h.Turns)
				sim.Get("/cases/{caseID}/primer", h.Primer)
			}
			if h := cfg.ResourcesHandler; h != nil {
				sim.Post("/resources/unlock", h.Unlock)
			}
		})

		if h := cfg.VoiceHandler; h != nil {
			api.Route("/api/voice", func(v chi.Router) {
				v.Post("/transcribe", h.Transcribe)
				v.Post("/speak", h.Speak)
				v.Post("/full", h.Full)
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
