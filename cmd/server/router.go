package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campuspay/internal/api"
	"campuspay/internal/app"
	graduationhttp "campuspay/internal/graduation/transport/http"
	notificationhttp "campuspay/internal/notification/transport/http"
	paymenthttp "campuspay/internal/payment/transport/http"
	"campuspay/internal/user"
	"campuspay/pkg/middleware"
)

func newRouter(a *app.App) http.Handler {
	cfg := a.Config
	resp := api.Responder{ShowDetails: !cfg.IsProduction()}

	paymentHandler := paymenthttp.NewPaymentHandler(a.Payments, resp)
	notificationHandler := notificationhttp.NewNotificationHandler(a.Notifications, resp)
	graduationHandler := graduationhttp.NewGraduationHandler(a.Graduation, resp)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.With(middleware.BasicAuth(cfg.MetricsUser, cfg.MetricsPasswordHash)).Handle("/metrics", promhttp.Handler())

	// The gateway calls this without a token; the body signature authenticates it.
	webhookLimiter := middleware.NewRateLimiter(300, time.Minute)
	r.With(webhookLimiter.Middleware).Post("/api/payments/webhook", paymentHandler.Webhook)

	apiLimiter := middleware.NewRateLimiter(100, time.Minute)
	r.Group(func(pr chi.Router) {
		pr.Use(apiLimiter.Middleware)
		pr.Use(middleware.JWTAuth(cfg.JWTSecret))

		pr.With(middleware.ValidateRequest).Post("/api/payments/initialize", paymentHandler.Initialize)
		pr.Get("/api/payments/verify/{reference}", paymentHandler.Verify)
		pr.Get("/api/payments/history", paymentHandler.History)

		pr.Get("/api/notifications", notificationHandler.List)
		pr.Patch("/api/notifications/{id}/read", notificationHandler.MarkRead)

		pr.Group(func(admin chi.Router) {
			admin.Use(middleware.RequireRole(user.RoleAdmin))
			admin.Get("/api/admin/graduation/eligible", graduationHandler.Eligible)
			admin.Post("/api/admin/graduation/run", graduationHandler.Run)
		})
	})

	return r
}
