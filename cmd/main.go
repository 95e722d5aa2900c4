// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberfield/boxoffice/internal/config"
	"github.com/emberfield/boxoffice/internal/database"
	"github.com/emberfield/boxoffice/internal/handler"
	"github.com/emberfield/boxoffice/internal/notify"
	"github.com/emberfield/boxoffice/internal/payment"
	"github.com/emberfield/boxoffice/internal/repository"
	"github.com/emberfield/boxoffice/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	cfg := config.Load()

	// ── 1. Connect to PostgreSQL and migrate ──────────────────────────────
	pool, err := database.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	log.Println("✓ Connected to PostgreSQL")

	if err := database.RunMigrations(ctx, pool, "migrations"); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	// ── 2. Notifications and payment provider ────────────────────────────
	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.RabbitMQURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.RabbitMQURL, cfg.MailQueue)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}

	simulator := payment.NewSimulator(fmt.Sprintf("http://localhost:%s", cfg.Port))
	var provider payment.Provider = simulator

	// ── 3. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	typeRepo := repository.NewTicketTypeRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	reservedRepo := repository.NewReservedTicketRepository(pool)
	transferRepo := repository.NewTransferRepository(pool)

	pricer := service.Pricer{TaxRate: cfg.TaxRate, FeeRate: cfg.FeeRate, FeeFlatCents: cfg.FeeFlatCents}

	eventSvc := service.NewEventService(eventRepo, typeRepo)
	userSvc := service.NewUserService(userRepo)
	cartSvc := service.NewCartService(cartRepo, typeRepo, reservedRepo, pricer, cfg.CartTTL, cfg.MaxTicketsPerSale)
	checkoutSvc := service.NewCheckoutService(cartRepo, orderRepo, reservedRepo, userRepo, provider, notifier, pricer,
		cfg.PaymentSuccessURL, cfg.PaymentCancelURL)
	transferSvc := service.NewTransferService(transferRepo, reservedRepo, typeRepo, userRepo, notifier)
	reservedSvc := service.NewReservedService(reservedRepo, typeRepo, userRepo, notifier)

	eventHandler := handler.NewEventHandler(eventSvc)
	userHandler := handler.NewUserHandler(userSvc)
	cartHandler := handler.NewCartHandler(cartSvc)
	checkoutHandler := handler.NewCheckoutHandler(checkoutSvc)
	transferHandler := handler.NewTransferHandler(transferSvc, userRepo)
	reservedHandler := handler.NewReservedHandler(reservedSvc)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)            // permissive CORS for demo

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Route("/events", func(r chi.Router) {
		r.Post("/", eventHandler.CreateEvent)
		r.Get("/", eventHandler.ListEvents)
		r.Get("/{id}", eventHandler.GetEvent)
		r.Post("/{id}/ticket-types", eventHandler.CreateTicketType)
		r.Get("/{id}/ticket-types", eventHandler.ListTicketTypes)
	})
	r.Put("/ticket-types/{id}", eventHandler.UpdateTicketType)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", userHandler.Upsert)
		r.Get("/{id}", userHandler.Get)
	})

	r.Route("/carts", func(r chi.Router) {
		r.Post("/", cartHandler.Create)
		r.Get("/active", cartHandler.Active)
		r.Post("/{id}/checkout", checkoutHandler.Create)
	})

	r.Post("/webhooks/payment", checkoutHandler.Webhook)
	r.Get("/orders/{id}", checkoutHandler.GetOrder)
	r.Post("/orders/{id}/refund", checkoutHandler.Refund)

	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", transferHandler.Create)
		r.Get("/{id}", transferHandler.Get)
		r.Post("/{id}/complete", transferHandler.Complete)
		r.Delete("/{id}", transferHandler.Delete)
	})

	r.Route("/reserved-tickets", func(r chi.Router) {
		r.Post("/", reservedHandler.Create)
		r.Get("/", reservedHandler.ListMine)
		r.Get("/{id}", reservedHandler.Get)
		r.Put("/{id}", reservedHandler.Update)
		r.Delete("/{id}", reservedHandler.Delete)
	})

	// Development helper: marks a simulated payment session paid, standing in
	// for the hosted checkout page.
	if cfg.Environment == "development" {
		r.Post("/dev/payments/{id}/complete", func(w http.ResponseWriter, req *http.Request) {
			session, err := simulator.CompleteSession(chi.URLParam(req, "id"))
			if err != nil {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(session)
		})
	}

	// ── 5. Metrics server ─────────────────────────────────────────────────
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("✓ Metrics listening on :%s/metrics", cfg.MetricsPort)
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	// ── 6. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Printf("✓ Server listening on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}
