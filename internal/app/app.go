// Package app wires repositories, the gateway client and services from configuration.
// The API server and the ops CLI build the same graph.
package app

import (
	"database/sql"
	"fmt"
	"log"

	"campuspay/internal/config"
	"campuspay/internal/gateway"
	"campuspay/internal/graduation"
	graduationRepo "campuspay/internal/graduation/repository"
	graduationService "campuspay/internal/graduation/service"
	ledgerRepo "campuspay/internal/ledger/repository"
	notificationRepo "campuspay/internal/notification/repository"
	notificationService "campuspay/internal/notification/service"
	paymentRepo "campuspay/internal/payment/repository"
	paymentService "campuspay/internal/payment/service"
	studentRepo "campuspay/internal/student/repository"
	subscriptionRepo "campuspay/internal/subscription/repository"
	"campuspay/pkg/db"
)

type App struct {
	Config        *config.Config
	DB            *sql.DB
	Payments      *paymentService.Service
	Graduation    *graduationService.Service
	Notifications *notificationService.Service
}

func New(cfg *config.Config) (*App, error) {
	database, err := db.Connect(cfg.DatabaseURL, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.Println("Database connected")

	notifications := notificationService.NewService(notificationRepo.NewNotificationRepository(database))

	gw := gateway.NewClient(gateway.Options{
		BaseURL:            cfg.Payment.GatewayBaseURL,
		SecretKey:          cfg.Payment.GatewaySecretKey,
		WebhookSecret:      cfg.Payment.WebhookSecret,
		InsecureSkipVerify: cfg.Payment.InsecureSkipWebhookVerify,
		Timeout:            cfg.Payment.GatewayTimeout,
	})

	payments := paymentService.NewService(
		gw,
		subscriptionRepo.NewSubscriptionRepository(database),
		ledgerRepo.NewTransactionRepository(database),
		paymentRepo.NewUnitOfWork(database),
		studentRepo.NewStudentRepository(database),
		notifications,
		paymentService.Config{
			Currency:    cfg.Payment.Currency,
			CallbackURL: cfg.Payment.CallbackURL,
			Provider:    cfg.Payment.Provider,
			MinAmount:   cfg.Payment.MinAmount,
		},
	)

	graduations := graduationService.NewService(
		graduationRepo.NewGraduationRepository(database),
		graduationService.Config{
			Criteria: graduation.Criteria{
				MinLevel:       cfg.Graduation.MinLevel,
				MinCGPA:        cfg.Graduation.MinCGPA,
				MinCreditUnits: cfg.Graduation.MinCreditUnits,
			},
			Concurrency:   cfg.Graduation.Concurrency,
			DegreeAwarded: cfg.Graduation.DegreeAwarded,
		},
	)

	return &App{
		Config:        cfg,
		DB:            database,
		Payments:      payments,
		Graduation:    graduations,
		Notifications: notifications,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
