package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"herald/internal/domain/notification"
	"herald/internal/infrastructure/postgres"
	"herald/internal/infrastructure/smtp"
	"herald/internal/shared/config"
)

const usage = `Herald Admin CLI - Management commands for the Herald API

Usage:
  admin <command> [options]

Commands:
  send-digests   Deliver pending digest notifications for one frequency
  send           Dispatch a single notification to a user

Examples:
  # Deliver all daily digests
  admin send-digests --frequency=daily

  # Preview weekly digests without sending anything
  admin send-digests --frequency=weekly --dry-run

  # Send a system message to a user
  admin send --user-id=1 --type=system_message --subject="Scheduled maintenance" --text="We will be down tonight."`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	// Load .env if present; real deployments use the environment directly
	_ = godotenv.Load()

	command := os.Args[1]

	switch command {
	case "send-digests":
		runSendDigests(os.Args[2:])
	case "send":
		runSend(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func runSendDigests(args []string) {
	fs := flag.NewFlagSet("send-digests", flag.ExitOnError)

	frequency := fs.String("frequency", "", "Frequency key to deliver (e.g. daily, weekly)")
	dryRun := fs.Bool("dry-run", false, "Report what would be sent without sending")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin send-digests [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin send-digests --frequency=daily")
		fmt.Println("  admin send-digests --frequency=weekly --dry-run")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *frequency == "" {
		fmt.Println("Error: must specify --frequency")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	service, cleanup := newService()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	sent, err := service.SendDigests(ctx, *frequency, *dryRun)
	if err != nil {
		log.Fatalf("Digest delivery failed: %v", err)
	}

	if *dryRun {
		log.Printf("Dry run complete: %d %s digest(s) would be sent (took %v)", sent, *frequency, time.Since(start).Round(time.Millisecond))
		return
	}
	log.Printf("Sent %d %s digest(s) in %v", sent, *frequency, time.Since(start).Round(time.Millisecond))
}

func runSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)

	userID := fs.Int64("user-id", 0, "Recipient user ID")
	typeKey := fs.String("type", "system_message", "Notification type key")
	subject := fs.String("subject", "", "Notification subject")
	text := fs.String("text", "", "Notification text")
	url := fs.String("url", "", "Notification URL (relative or absolute)")

	fs.Usage = func() {
		fmt.Println("Usage: admin send [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println(`  admin send --user-id=1 --subject="Scheduled maintenance" --text="We will be down tonight."`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userID <= 0 {
		fmt.Println("Error: must specify --user-id")
		fs.Usage()
		os.Exit(1)
	}

	service, cleanup := newService()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := service.Send(ctx, notification.SendParams{
		RecipientID: *userID,
		Type:        *typeKey,
		Subject:     *subject,
		Text:        *text,
		URL:         *url,
	})
	if err != nil {
		log.Fatalf("Failed to send notification: %v", err)
	}
	if n == nil {
		log.Println("Notification was suppressed (no enabled channels or deduplicated)")
		return
	}
	log.Printf("Notification %s dispatched to user %d on %d channel(s)", n.ID, *userID, len(n.Channels))
}

// newService wires the notification service against the real database
// and SMTP configuration. The returned cleanup closes the database.
func newService() (*notification.Service, func()) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	registry, err := buildRegistry(cfg)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to build notification registry: %v", err)
	}

	service := notification.NewService(
		registry,
		postgres.NewNotificationRepository(db),
		postgres.NewPreferenceRepository(db),
		postgres.NewUserRepository(db),
	)

	return service, func() { db.Close() }
}

// buildRegistry mirrors the API server's registry: built-in frequencies,
// the website channel, email when SMTP is configured, and the deployed
// notification types.
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
