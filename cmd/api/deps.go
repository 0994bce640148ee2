package main

import (
	"log"

	"herald/internal/domain/notification"
	"herald/internal/infrastructure/postgres"
	"herald/internal/infrastructure/smtp"
	httphandlers "herald/internal/interfaces/http"
	"herald/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB       *postgres.DB
	Registry *notification.Registry
	Service  *notification.Service

	// Handlers
	NotificationHandler *httphandlers.NotificationHandler
	PreferencesHandler  *httphandlers.PreferencesHandler
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	// Initialize repositories
	notificationRepo := postgres.NewNotificationRepository(db)
	preferenceRepo := postgres.NewPreferenceRepository(db)
	userRepo := postgres.NewUserRepository(db)

	// Build the notification registry
	registry, err := buildRegistry(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	service := notification.NewService(registry, notificationRepo, preferenceRepo, userRepo)

	return &Dependencies{
		DB:                  db,
		Registry:            registry,
		Service:             service,
		NotificationHandler: httphandlers.NewNotificationHandler(service),
		PreferencesHandler:  httphandlers.NewPreferencesHandler(service),
	}, nil
}

// buildRegistry registers the frequencies, channels and notification
// types this deployment supports. The email channel is only registered
// when SMTP is configured.
func buildRegistry(cfg *config.Config) (*notification.Registry, error) {
	registry := notification.NewRegistry()

	for _, f := range []notification.Frequency{
		notification.RealtimeFrequency,
		notification.DailyFrequency,
		notification.WeeklyFrequency,
	} {
		if err := registry.RegisterFrequency(f); err != nil {
			return nil, err
		}
	}

	if err := registry.RegisterChannel(notification.NewWebsiteChannel()); err != nil {
		return nil, err
	}

	if cfg.SMTP.Host != "" {
		mailer := smtp.NewMailer(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		email := notification.NewEmailChannel(registry, mailer, cfg.Notifications.BaseURL)
		if err := registry.RegisterChannel(email); err != nil {
			return nil, err
		}
	} else {
		log.Println("Email channel disabled (SMTP_HOST not set)")
	}

	for _, t := range []notification.NotificationType{
		notification.NewSystemMessageType(),
		notification.NewCommentReceivedType(),
	} {
		if err := registry.RegisterType(t); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
