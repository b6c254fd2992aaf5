// internal/api/routes/routes.go
package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskmill/internal/api/handlers"
	"taskmill/internal/orchestrator"
)

func SetupRouter(facade *orchestrator.Facade) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	})

	// Initialize handlers
	statusHandler := handlers.NewStatusHandler(facade)
	runHandler := handlers.NewRunHandler(facade)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", statusHandler.GetStatus)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/summary", statusHandler.GetTaskSummary)
			r.Get("/errors", statusHandler.GetErrorTasks)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/{group}/run", runHandler.RunGroup)
			r.Post("/{group}/tasks/{task}/run", runHandler.RunTask)
		})

		r.Post("/cleanup", runHandler.Cleanup)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	return r
}
