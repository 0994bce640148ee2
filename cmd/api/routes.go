package main

import (
	"log"
	"net/http"

	"herald/internal/shared/config"
	"herald/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", handleHealth)

	// Authenticated notification routes
	requireUser := middleware.UserID

	mux.Handle("/api/notifications/", requireUser(http.HandlerFunc(deps.NotificationHandler.HandleNotifications)))
	mux.Handle("/api/notifications/unread-count/", requireUser(http.HandlerFunc(deps.NotificationHandler.HandleUnreadCount)))
	mux.Handle("/api/notifications/mark-read/", requireUser(http.HandlerFunc(deps.NotificationHandler.HandleMarkRead)))
	mux.Handle("/api/notifications/{id}", requireUser(http.HandlerFunc(deps.NotificationHandler.HandleNotificationByID)))
	mux.Handle("/api/notifications/{id}/mark-unread/", requireUser(http.HandlerFunc(deps.NotificationHandler.HandleMarkUnread)))
	mux.Handle("/api/notifications/preferences/", requireUser(http.HandlerFunc(deps.PreferencesHandler.HandlePreferences)))
	mux.Handle("/api/notifications/preferences/channel/", requireUser(http.HandlerFunc(deps.PreferencesHandler.HandleChannelSetting)))
	mux.Handle("/api/notifications/preferences/frequency/", requireUser(http.HandlerFunc(deps.PreferencesHandler.HandleFrequencySetting)))

	// Apply global middleware
	handler := middleware.Telemetry(middleware.Tracing(middleware.Logging(mux)))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Println("TLS security middleware enabled (HSTS)")
	}

	return handler
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
