package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"herald/internal/domain/notification"
	"herald/internal/shared/middleware"
)

// NotificationService is the slice of the notification service the
// handler needs. Satisfied by *notification.Service.
type NotificationService interface {
	Get(ctx context.Context, id string, recipientID int64) (*notification.Notification, error)
	List(ctx context.Context, q notification.ListQuery) ([]*notification.Notification, error)
	UnreadCount(ctx context.Context, recipientID int64, channelKey string) (int, error)
	MarkRead(ctx context.Context, recipientID int64, ids []string) error
	MarkUnread(ctx context.Context, recipientID int64, id string) error
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// --- Request/Response types ---

type ChannelStateResponse struct {
	Channel string  `json:"channel"`
	SentAt  *string `json:"sent_at"`
}

type NotificationResponse struct {
	ID       string                  `json:"id"`
	Type     string                  `json:"notification_type"`
	ActorID  *int64                  `json:"actor_id,omitempty"`
	Target   *notification.TargetRef `json:"target,omitempty"`
	Subject  string                  `json:"subject"`
	Text     string                  `json:"text"`
	URL      string                  `json:"url"`
	Metadata map[string]string       `json:"metadata"`
	Added    string                  `json:"added"`
	Read     *string                 `json:"read"`
	Channels []ChannelStateResponse  `json:"channels"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

const maxNotificationBodySize = 1 << 20 // 1 MiB

// --- Handlers ---

// HandleNotifications handles GET /api/notifications/ (list)
func (h *NotificationHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 0 {
		limit = 0
	}

	q := notification.ListQuery{
		RecipientID: userID,
		Channel:     r.URL.Query().Get("channel"),
		UnreadOnly:  r.URL.Query().Get("unread_only") == "true",
		ReadOnly:    r.URL.Query().Get("archive") == "true",
		Limit:       limit,
	}

	notifications, err := h.service.List(r.Context(), q)
	if err != nil {
		log.Printf("Error listing notifications for user %d: %v", userID, err)
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}

	items := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, toNotificationResponse(n))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(NotificationListResponse{Notifications: items})
}

// HandleNotificationByID handles GET /api/notifications/{id}
func (h *NotificationHandler) HandleNotificationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notificationID := r.PathValue("id")
	if notificationID == "" {
		http.Error(w, "Notification ID is required", http.StatusBadRequest)
		return
	}

	n, err := h.service.Get(r.Context(), notificationID, userID)
	if err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting notification %s: %v", notificationID, err)
		http.Error(w, "Failed to get notification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toNotificationResponse(n))
}

// HandleUnreadCount handles GET /api/notifications/unread-count/
func (h *NotificationHandler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = notification.ChannelWebsite
	}

	count, err := h.service.UnreadCount(r.Context(), userID, channel)
	if err != nil {
		log.Printf("Error counting unread notifications for user %d: %v", userID, err)
		http.Error(w, "Failed to count notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UnreadCountResponse{Count: count})
}

// HandleMarkRead handles POST /api/notifications/mark-read/.
// An empty or absent ids list marks everything unread as read.
func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req MarkReadRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.MarkRead(r.Context(), userID, req.IDs); err != nil {
		log.Printf("Error marking notifications read for user %d: %v", userID, err)
		http.Error(w, "Failed to mark notifications as read", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// HandleMarkUnread handles POST /api/notifications/{id}/mark-unread/
func (h *NotificationHandler) HandleMarkUnread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notificationID := r.PathValue("id")
	if notificationID == "" {
		http.Error(w, "Notification ID is required", http.StatusBadRequest)
		return
	}

	if err := h.service.MarkUnread(r.Context(), userID, notificationID); err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		log.Printf("Error marking notification %s as unread: %v", notificationID, err)
		http.Error(w, "Failed to mark notification as unread", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// --- Helpers ---

func toNotificationResponse(n *notification.Notification) NotificationResponse {
	channels := make([]ChannelStateResponse, 0, len(n.Channels))
	for _, cs := range n.Channels {
		channels = append(channels, ChannelStateResponse{
			Channel: cs.Channel,
			SentAt:  formatTimePtr(cs.SentAt),
		})
	}

	metadata := n.Metadata
	if metadata == nil {
		metadata = make(map[string]string)
	}

	return NotificationResponse{
		ID:       n.ID,
		Type:     n.Type,
		ActorID:  n.ActorID,
		Target:   n.Target,
		Subject:  n.Subject,
		Text:     n.Text,
		URL:      n.URL,
		Metadata: metadata,
		Added:    n.Added.Format(time.RFC3339),
		Read:     formatTimePtr(n.Read),
		Channels: channels,
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}
