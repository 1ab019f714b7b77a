package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/register", handler.Register)
	r.Post("/verify", handler.VerifyEmail)
	r.Get("/onboarding", handler.OnboardingStatusByEmail)
	r.Get("/onboarding/{correlationID}", handler.OnboardingStatusByID)
	r.Get("/users", handler.ListUsers)
	r.Get("/users/{id}", handler.GetUser)
	r.Delete("/users/{id}", handler.DeleteUser)
	r.Post("/urls", handler.CreateURL)
	r.Get("/r/{shortCode}", handler.Resolve)
	return r
}
