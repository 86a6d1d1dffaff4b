package apiapp

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ivankudzin/amour/internal/infra/metrics"
	authsvc "github.com/ivankudzin/amour/internal/services/auth"
	candidatesvc "github.com/ivankudzin/amour/internal/services/candidates"
	interactionsvc "github.com/ivankudzin/amour/internal/services/interactions"
	matchsvc "github.com/ivankudzin/amour/internal/services/matches"
	"github.com/ivankudzin/amour/internal/services/messaging"
	"github.com/ivankudzin/amour/internal/services/notifications"
	httperrors "github.com/ivankudzin/amour/internal/transport/http/errors"
	"github.com/ivankudzin/amour/internal/transport/http/handlers"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	AuthService         *authsvc.Service
	CandidateService    *candidatesvc.Service
	InteractionService  *interactionsvc.Service
	MatchService        *matchsvc.Service
	MessageService      *messaging.Service
	NotificationService *notifications.Service
	Gateway             http.Handler
	Health              []Pinger
	Logger              *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.AuthService)
	candidateHandler := handlers.NewCandidateHandler(deps.CandidateService)
	interactionsHandler := handlers.NewInteractionsHandler(deps.InteractionService)
	conversationsHandler := handlers.NewConversationsHandler(deps.MatchService)
	matchesHandler := handlers.NewMatchesHandler(deps.MatchService, deps.MessageService)
	notificationsHandler := handlers.NewNotificationsHandler(deps.NotificationService)

	r.Get("/healthz", healthHandler(deps.Health))
	r.Handle("/metrics", metrics.Handler())

	if deps.Gateway != nil {
		r.Handle("/v1/ws", deps.Gateway)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Post("/v1/auth/telegram", authHandler.Telegram)
		r.Post("/v1/auth/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(deps.AuthService, deps.Logger))

			r.Post("/v1/auth/logout", authHandler.Logout)
			r.Post("/v1/auth/logout_all", authHandler.LogoutAll)

			r.Get("/v1/candidates/next", candidateHandler.Next)
			r.Post("/v1/likes", interactionsHandler.Like)
			r.Post("/v1/skips", interactionsHandler.Skip)
			r.Post("/v1/reports", interactionsHandler.Report)

			r.Post("/v1/conversations", conversationsHandler.Request)
			r.Post("/v1/conversations/{match_id}/approve", conversationsHandler.Approve)
			r.Post("/v1/conversations/{match_id}/reject", conversationsHandler.Reject)

			r.Get("/v1/matches", matchesHandler.List)
			r.Get("/v1/matches/{match_id}/messages", matchesHandler.Messages)

			r.Get("/v1/notifications", notificationsHandler.Summary)
			r.Post("/v1/notifications/matches/seen", notificationsHandler.MarkMatchesSeen)
		})
	})
}

func healthHandler(deps []Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, p := range deps {
			if p == nil {
				continue
			}
			if err := p.Ping(r.Context()); err != nil {
				httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
					Code:    "UNAVAILABLE",
					Message: "dependency is unavailable",
				})
				return
			}
		}
		httperrors.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
