package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-jobboard-trust/internal/application/employer"
	"github.com/go-jobboard-trust/internal/application/moderation"
	"github.com/go-jobboard-trust/internal/application/verification"
	"github.com/go-jobboard-trust/internal/config"
	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/metrics"
	"github.com/go-jobboard-trust/internal/transport/http/handler"
	appmiddleware "github.com/go-jobboard-trust/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// background work the router starts.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		// Handlers still require claims, so every authenticated route answers 401.
		authMw = func(next http.Handler) http.Handler { return next }
	}

	s := deps.Settings
	sendRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(s.SendCodeRate), s.SendCodeBurst)

	gate := moderation.NewGate(moderation.GateDeps{
		Jobs:    deps.JobRepo,
		Users:   deps.UserRepo,
		Clock:   deps.Clock,
		Metrics: deps.Metrics,
	})
	tracker := moderation.NewTracker(moderation.TrackerDeps{
		Gate:      gate,
		Jobs:      deps.JobRepo,
		Reports:   deps.ReportRepo,
		Clock:     deps.Clock,
		Metrics:   deps.Metrics,
		Threshold: s.FlagThreshold,
	})
	decider := moderation.NewDecider(moderation.DeciderDeps{
		Gate:     gate,
		Tracker:  tracker,
		Archiver: deps.Archiver,
		Clock:    deps.Clock,
	})
	employerSvc := employer.NewService(deps.UserRepo, gate)
	verificationSvc := verification.NewService(verification.ServiceDeps{
		Store:        deps.VerificationStore,
		Users:        deps.UserRepo,
		Dispatcher:   deps.Dispatcher,
		Clock:        deps.Clock,
		Metrics:      deps.Metrics,
		CodeTTL:      s.CodeTTL,
		DispatchWait: s.DispatchWait,
		ExposeCodes:  s.ExposeCodes,
	})

	healthH := handler.NewHealthHandler()
	verifyH := handler.NewVerificationHandler(verificationSvc)
	jobH := handler.NewJobHandler(gate, tracker)
	adminH := handler.NewAdminHandler(decider, tracker, employerSvc)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.With(sendRL.Limit).Post("/verify/{channel}/send", verifyH.Send)
			r.Post("/verify/{channel}/confirm", verifyH.Confirm)
			r.Get("/verify/{channel}", verifyH.Status)

			r.With(appmiddleware.RequireRole(domain.RoleEmployer)).Post("/jobs", jobH.Create)
			r.Get("/jobs/{id}", jobH.Get)
			r.Post("/jobs/{id}/flag", jobH.Flag)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Patch("/admin/jobs/{id}/decision", adminH.Decide)
				r.Get("/admin/jobs/{id}/reports", adminH.Reports)
				r.Patch("/admin/jobs/{id}/reopen", adminH.Reopen)
				r.Patch("/admin/employers/{id}/approve", adminH.ApproveEmployer)
			})
		})
	})

	return r
}
