package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"herald/internal/domain/notification"
)

// MockPreferenceService implements PreferenceService for testing
type MockPreferenceService struct {
	PreferencesFunc     func(ctx context.Context, userID int64) ([]notification.TypePreferences, error)
	SavePreferencesFunc func(ctx context.Context, userID int64, form map[string]string) error
	SetFrequencyFunc    func(ctx context.Context, userID int64, typeKey, frequencyKey string) error
	ResetFrequencyFunc  func(ctx context.Context, userID int64, typeKey string) error
	EnableChannelFunc   func(ctx context.Context, userID int64, typeKey, channelKey string) error
	DisableChannelFunc  func(ctx context.Context, userID int64, typeKey, channelKey string) error
}

func (m *MockPreferenceService) Preferences(ctx context.Context, userID int64) ([]notification.TypePreferences, error) {
	if m.PreferencesFunc != nil {
		return m.PreferencesFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockPreferenceService) SavePreferences(ctx context.Context, userID int64, form map[string]string) error {
	if m.SavePreferencesFunc != nil {
		return m.SavePreferencesFunc(ctx, userID, form)
	}
	return nil
}

func (m *MockPreferenceService) SetFrequency(ctx context.Context, userID int64, typeKey, frequencyKey string) error {
	if m.SetFrequencyFunc != nil {
		return m.SetFrequencyFunc(ctx, userID, typeKey, frequencyKey)
	}
	return nil
}

func (m *MockPreferenceService) ResetFrequency(ctx context.Context, userID int64, typeKey string) error {
	if m.ResetFrequencyFunc != nil {
		return m.ResetFrequencyFunc(ctx, userID, typeKey)
	}
	return nil
}

func (m *MockPreferenceService) EnableChannel(ctx context.Context, userID int64, typeKey, channelKey string) error {
	if m.EnableChannelFunc != nil {
		return m.EnableChannelFunc(ctx, userID, typeKey, channelKey)
	}
	return nil
}

func (m *MockPreferenceService) DisableChannel(ctx context.Context, userID int64, typeKey, channelKey string) error {
	if m.DisableChannelFunc != nil {
		return m.DisableChannelFunc(ctx, userID, typeKey, channelKey)
	}
	return nil
}

func TestHandlePreferences_Get(t *testing.T) {
	service := &MockPreferenceService{
		PreferencesFunc: func(ctx context.Context, userID int64) ([]notification.TypePreferences, error) {
			return []notification.TypePreferences{
				{
					Type: notification.BaseType{
						TypeKey:      "comment_received",
						TypeName:     "Comment received",
						TypeDesc:     "You received a comment",
						FrequencyKey: "realtime",
					},
					Channels: channelSettingsFixture(),
					Frequency: notification.Frequency{
						Key:      "weekly",
						Name:     "Weekly",
						Realtime: false,
					},
				},
			}, nil
		},
	}
	handler := NewPreferencesHandler(service)

	rr := httptest.NewRecorder()
	handler.HandlePreferences(rr, authenticatedRequest(http.MethodGet, "/api/notifications/preferences/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp PreferencesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Preferences) != 1 {
		t.Fatalf("got %d preference rows, want 1", len(resp.Preferences))
	}

	p := resp.Preferences[0]
	if p.Type != "comment_received" || p.Name != "Comment received" {
		t.Errorf("type row = %q/%q", p.Type, p.Name)
	}
	if p.Frequency != "weekly" {
		t.Errorf("frequency = %q, want %q", p.Frequency, "weekly")
	}
	if len(p.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(p.Channels))
	}
	if !p.Channels[0].Enabled || p.Channels[0].Channel != "website" {
		t.Errorf("first channel = %+v", p.Channels[0])
	}
	if !p.Channels[1].Required {
		t.Errorf("email channel should be required, got %+v", p.Channels[1])
	}
}

func TestHandlePreferences_GetError(t *testing.T) {
	service := &MockPreferenceService{
		PreferencesFunc: func(ctx context.Context, userID int64) ([]notification.TypePreferences, error) {
			return nil, errors.New("db error")
		},
	}
	handler := NewPreferencesHandler(service)

	rr := httptest.NewRecorder()
	handler.HandlePreferences(rr, authenticatedRequest(http.MethodGet, "/api/notifications/preferences/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestHandlePreferences_Save(t *testing.T) {
	var gotForm map[string]string
	service := &MockPreferenceService{
		SavePreferencesFunc: func(ctx context.Context, userID int64, form map[string]string) error {
			gotForm = form
			return nil
		},
	}
	handler := NewPreferencesHandler(service)

	form := url.Values{}
	form.Set("comment_received_website", "on")
	form.Set("comment_received_frequency", "daily")

	req := authenticatedRequest(http.MethodPost, "/api/notifications/preferences/", []byte(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	handler.HandlePreferences(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if _, ok := gotForm["comment_received_website"]; !ok {
		t.Error("checked channel key missing from form")
	}
	if gotForm["comment_received_frequency"] != "daily" {
		t.Errorf("frequency form value = %q, want %q", gotForm["comment_received_frequency"], "daily")
	}
}

func TestHandlePreferences_Unauthorized(t *testing.T) {
	handler := NewPreferencesHandler(&MockPreferenceService{})

	req, _ := http.NewRequest(http.MethodGet, "/api/notifications/preferences/", nil)
	rr := httptest.NewRecorder()
	handler.HandlePreferences(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestHandleChannelSetting(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		service        *MockPreferenceService
		expectedStatus int
	}{
		{
			name: "Enable",
			body: `{"notification_type": "comment_received", "channel": "email", "enabled": true}`,
			service: &MockPreferenceService{
				EnableChannelFunc: func(ctx context.Context, userID int64, typeKey, channelKey string) error {
					if typeKey != "comment_received" || channelKey != "email" {
						return errors.New("unexpected arguments")
					}
					return nil
				},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Disable",
			body: `{"notification_type": "comment_received", "channel": "email", "enabled": false}`,
			service: &MockPreferenceService{
				DisableChannelFunc: func(ctx context.Context, userID int64, typeKey, channelKey string) error {
					return nil
				},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Required Channel",
			body: `{"notification_type": "system_message", "channel": "email", "enabled": false}`,
			service: &MockPreferenceService{
				DisableChannelFunc: func(ctx context.Context, userID int64, typeKey, channelKey string) error {
					return notification.ErrChannelRequired
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Unknown Type",
			body: `{"notification_type": "nope", "channel": "email", "enabled": true}`,
			service: &MockPreferenceService{
				EnableChannelFunc: func(ctx context.Context, userID int64, typeKey, channelKey string) error {
					return notification.ErrTypeNotRegistered
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid Body",
			body:           "not json",
			service:        &MockPreferenceService{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Store Error",
			body: `{"notification_type": "comment_received", "channel": "email", "enabled": true}`,
			service: &MockPreferenceService{
				EnableChannelFunc: func(ctx context.Context, userID int64, typeKey, channelKey string) error {
					return errors.New("db error")
				},
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewPreferencesHandler(tt.service)

			req := authenticatedRequest(http.MethodPut, "/api/notifications/preferences/channel/", []byte(tt.body))

			rr := httptest.NewRecorder()
			handler.HandleChannelSetting(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestHandleFrequencySetting(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		service        *MockPreferenceService
		expectedStatus int
	}{
		{
			name: "Set",
			body: `{"notification_type": "comment_received", "frequency": "daily"}`,
			service: &MockPreferenceService{
				SetFrequencyFunc: func(ctx context.Context, userID int64, typeKey, frequencyKey string) error {
					if typeKey != "comment_received" || frequencyKey != "daily" {
						return errors.New("unexpected arguments")
					}
					return nil
				},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Empty Frequency Resets",
			body: `{"notification_type": "comment_received", "frequency": ""}`,
			service: &MockPreferenceService{
				SetFrequencyFunc: func(ctx context.Context, userID int64, typeKey, frequencyKey string) error {
					return errors.New("SetFrequency should not be called")
				},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Unknown Frequency",
			body: `{"notification_type": "comment_received", "frequency": "hourly"}`,
			service: &MockPreferenceService{
				SetFrequencyFunc: func(ctx context.Context, userID int64, typeKey, frequencyKey string) error {
					return notification.ErrFrequencyNotRegistered
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewPreferencesHandler(tt.service)

			req := authenticatedRequest(http.MethodPut, "/api/notifications/preferences/frequency/", []byte(tt.body))

			rr := httptest.NewRecorder()
			handler.HandleFrequencySetting(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}

// channelSettingsFixture builds a two-channel settings row: an enabled
// website channel and a required email channel.
func channelSettingsFixture() []notification.ChannelSetting {
	return []notification.ChannelSetting{
		{Channel: notification.NewWebsiteChannel(), Enabled: true},
		{Channel: notification.NewEmailChannel(nil, nil, ""), Enabled: true, Required: true},
	}
}
