package routes

import (
	"github.com/ak-bharadwaj/concurrence2k26-sub000/handlers"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes wires every endpoint onto the router. Participant routes sit
// behind a participant token, the verification desk behind a staff token.
func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	authHandler *handlers.AuthHandler,
	teamHandler *handlers.TeamHandler,
	joinRequestHandler *handlers.JoinRequestHandler,
	paymentHandler *handlers.PaymentHandler,
	adminHandler *handlers.AdminHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)
	router.Post("/auth/admin/login", authHandler.AdminLogin)

	// Squad preview and join requests are reachable by unregistered
	// candidates; a valid token upgrades the requester to a known user.
	router.Get("/teams/code/{joinCode}", teamHandler.GetTeamByJoinCode)
	router.With(auth.MaybeAuthenticate).Post("/teams/code/{joinCode}/requests", joinRequestHandler.RequestJoin)

	router.Get("/ws", webSocketHandler.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(auth.Authorize(middleware.ActorParticipant))

		r.Get("/me", paymentHandler.Me)

		r.Route("/teams", func(r chi.Router) {
			r.Post("/", teamHandler.CreateTeam)
			r.Post("/leave", teamHandler.LeaveTeam)
			r.Get("/{teamID}", teamHandler.GetTeamByID)
			r.Patch("/{teamID}", teamHandler.UpdateTeamSettings)
			r.Delete("/{teamID}", teamHandler.DisbandTeam)
			r.Post("/{teamID}/members", teamHandler.AddMember)
			r.Delete("/{teamID}/members/{userID}", teamHandler.RemoveMember)
			r.Get("/{teamID}/requests", joinRequestHandler.ListPending)
		})

		r.Post("/requests/{requestID}/respond", joinRequestHandler.Respond)

		r.Route("/payments", func(r chi.Router) {
			r.Get("/channel", paymentHandler.AllocateChannel)
			r.Post("/proof", paymentHandler.UploadProof)
			r.Post("/submit", paymentHandler.SubmitPayment)
		})
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(auth.Authorize(middleware.ActorStaff))

		r.Get("/users", adminHandler.ListUsers)
		r.Patch("/users/{userID}/status", adminHandler.SetStatus)
		r.Post("/users/{userID}/attendance", adminHandler.MarkAttendance)
		r.Get("/users/{userID}/logs", adminHandler.GetActionLog)

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", adminHandler.ListChannels)
			r.Post("/", adminHandler.CreateChannel)
			r.Delete("/{channelID}", adminHandler.DeactivateChannel)
			r.Post("/{channelID}/reset", adminHandler.ResetChannelUsage)
		})
	})
}
