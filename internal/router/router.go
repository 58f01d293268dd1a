package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	appMiddleware "github.com/FACorreiaa/citizen-portal/app/middleware"
	"github.com/FACorreiaa/citizen-portal/internal/api/auth"
	"github.com/FACorreiaa/citizen-portal/internal/api/user"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Config contains dependencies needed for the router setup
type Config struct {
	AuthHandler     auth.Handler
	UserHandler     user.Handler
	GuardMiddleware func(http.Handler) http.Handler
	AllowedOrigins  []string
}

// SetupRouter initializes the portal routes. Server-wide middleware (logger,
// request id, recoverer) are applied in main before mounting this router.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token", appMiddleware.ConfirmHeader},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	// Public screens
	r.Group(func(r chi.Router) {
		r.With(httprate.LimitByIP(loginRateLimit, loginRateWindow)).Post("/login", cfg.AuthHandler.Login)
		r.Post("/register", cfg.AuthHandler.Register)
		r.Post("/logout", cfg.AuthHandler.Logout)
		r.Get("/session", cfg.AuthHandler.Session)
	})

	// Protected screens
	r.Group(func(r chi.Router) {
		if cfg.GuardMiddleware != nil {
			r.Use(cfg.GuardMiddleware)
		}

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", cfg.UserHandler.GetProfile)
			r.Patch("/", cfg.UserHandler.UpdateProfile)
			r.Patch("/password", cfg.UserHandler.ChangePassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", cfg.UserHandler.ListUsers)
			r.Post("/", cfg.UserHandler.CreateUser)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.UserHandler.GetUser)
				r.Patch("/", cfg.UserHandler.UpdateUser)
				r.With(appMiddleware.RequireConfirmation("delete this user")).Delete("/", cfg.UserHandler.DeleteUser)
				r.With(appMiddleware.RequireConfirmation("change this user's status")).Patch("/active", cfg.UserHandler.ToggleActive)
				r.With(appMiddleware.RequireConfirmation("change this user's role")).Patch("/role", cfg.UserHandler.ChangeRole)
			})
		})
	})

	return r
}
