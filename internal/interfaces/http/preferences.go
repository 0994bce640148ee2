package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"herald/internal/domain/notification"
	"herald/internal/shared/middleware"
)

// PreferenceService is the slice of the notification service the
// preferences handler needs. Satisfied by *notification.Service.
type PreferenceService interface {
	Preferences(ctx context.Context, userID int64) ([]notification.TypePreferences, error)
	SavePreferences(ctx context.Context, userID int64, form map[string]string) error
	SetFrequency(ctx context.Context, userID int64, typeKey, frequencyKey string) error
	ResetFrequency(ctx context.Context, userID int64, typeKey string) error
	EnableChannel(ctx context.Context, userID int64, typeKey, channelKey string) error
	DisableChannel(ctx context.Context, userID int64, typeKey, channelKey string) error
}

type PreferencesHandler struct {
	service PreferenceService
}

func NewPreferencesHandler(service PreferenceService) *PreferencesHandler {
	return &PreferencesHandler{service: service}
}

// --- Request/Response types ---

type ChannelSettingResponse struct {
	Channel   string `json:"channel"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Required  bool   `json:"required"`
	Forbidden bool   `json:"forbidden"`
}

type TypePreferencesResponse struct {
	Type        string                   `json:"notification_type"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Channels    []ChannelSettingResponse `json:"channels"`
	Frequency   string                   `json:"frequency"`
}

type PreferencesResponse struct {
	Preferences []TypePreferencesResponse `json:"preferences"`
}

type UpdateChannelRequest struct {
	Type    string `json:"notification_type"`
	Channel string `json:"channel"`
	Enabled bool   `json:"enabled"`
}

type UpdateFrequencyRequest struct {
	Type string `json:"notification_type"`
	// Frequency is the new frequency key. Empty resets the type to its
	// default frequency.
	Frequency string `json:"frequency"`
}

// --- Handlers ---

// HandlePreferences handles GET/POST /api/notifications/preferences/
func (h *PreferencesHandler) HandlePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGetPreferences(w, r, userID)
	case http.MethodPost:
		h.handleSavePreferences(w, r, userID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *PreferencesHandler) handleGetPreferences(w http.ResponseWriter, r *http.Request, userID int64) {
	prefs, err := h.service.Preferences(r.Context(), userID)
	if err != nil {
		log.Printf("Error getting notification preferences for user %d: %v", userID, err)
		http.Error(w, "Failed to get preferences", http.StatusInternalServerError)
		return
	}

	items := make([]TypePreferencesResponse, 0, len(prefs))
	for _, p := range prefs {
		items = append(items, toTypePreferencesResponse(p))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PreferencesResponse{Preferences: items})
}

// handleSavePreferences applies a bulk settings form. The body is the
// settings page form: {typeKey}_{channelKey} keys for checked channels
// and {typeKey}_frequency keys for frequency selections.
func (h *PreferencesHandler) handleSavePreferences(w http.ResponseWriter, r *http.Request, userID int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBodySize)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	form := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		form[key] = r.PostForm.Get(key)
	}

	if err := h.service.SavePreferences(r.Context(), userID, form); err != nil {
		log.Printf("Error saving notification preferences for user %d: %v", userID, err)
		http.Error(w, "Failed to save preferences", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// HandleChannelSetting handles PUT /api/notifications/preferences/channel/
func (h *PreferencesHandler) HandleChannelSetting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBodySize)
	var req UpdateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	if req.Enabled {
		err = h.service.EnableChannel(r.Context(), userID, req.Type, req.Channel)
	} else {
		err = h.service.DisableChannel(r.Context(), userID, req.Type, req.Channel)
	}
	if err != nil {
		if isPreferenceValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Error updating channel setting for user %d: %v", userID, err)
		http.Error(w, "Failed to update channel setting", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// HandleFrequencySetting handles PUT /api/notifications/preferences/frequency/
func (h *PreferencesHandler) HandleFrequencySetting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBodySize)
	var req UpdateFrequencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	if req.Frequency == "" {
		err = h.service.ResetFrequency(r.Context(), userID, req.Type)
	} else {
		err = h.service.SetFrequency(r.Context(), userID, req.Type, req.Frequency)
	}
	if err != nil {
		if isPreferenceValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Error updating frequency setting for user %d: %v", userID, err)
		http.Error(w, "Failed to update frequency setting", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// --- Helpers ---

func isPreferenceValidationError(err error) bool {
	return errors.Is(err, notification.ErrTypeNotRegistered) ||
		errors.Is(err, notification.ErrChannelNotRegistered) ||
		errors.Is(err, notification.ErrFrequencyNotRegistered) ||
		errors.Is(err, notification.ErrChannelRequired)
}

func toTypePreferencesResponse(p notification.TypePreferences) TypePreferencesResponse {
	channels := make([]ChannelSettingResponse, 0, len(p.Channels))
	for _, cs := range p.Channels {
		channels = append(channels, ChannelSettingResponse{
			Channel:   cs.Channel.Key(),
			Name:      cs.Channel.Name(),
			Enabled:   cs.Enabled,
			Required:  cs.Required,
			Forbidden: cs.Forbidden,
		})
	}

	return TypePreferencesResponse{
		Type:        p.Type.Key(),
		Name:        p.Type.Name(),
		Description: p.Type.Description(),
		Channels:    channels,
		Frequency:   p.Frequency.Key,
	}
}
