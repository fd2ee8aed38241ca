package routes

import (
	"net/http"

	"github.com/Dosada05/duel-arena/handlers"
	"github.com/Dosada05/duel-arena/middleware"
	"github.com/Dosada05/duel-arena/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	allowedOrigins []string,
	bracketHandler *handlers.BracketHandler,
	resultHandler *handlers.ResultHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("pong"))
	})

	adminOnly := middleware.Authorize(models.RoleAdmin, models.RoleSuperAdmin)

	router.Route("/matchmaking", func(r chi.Router) {
		r.Get("/tree/{tournamentID}", bracketHandler.GetTree)
		r.Get("/tree/{tournamentID}/opponent/{participantID}", bracketHandler.GetOpponent)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(adminOnly)
			r.Post("/create", bracketHandler.CreateBracket)
			r.Delete("/tree/{tournamentID}", bracketHandler.DeleteTree)
		})
	})

	router.With(auth.Authenticate, adminOnly).Post("/results", resultHandler.RecordResult)

	router.Route("/tournaments/{tournamentID}", func(r chi.Router) {
		r.Get("/results", resultHandler.ListResults)
		r.Get("/standings", resultHandler.GetStandings)
		r.Get("/overview", resultHandler.GetOverview)
	})

	router.Route("/ws", func(r chi.Router) {
		r.With(auth.Authenticate).Get("/contest/{tournamentID}/{ownID}/{opponentID}", webSocketHandler.ServeMatch)
		r.Get("/tournaments/{tournamentID}", webSocketHandler.ServeTournament)
	})
}
