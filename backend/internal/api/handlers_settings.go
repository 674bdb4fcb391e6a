package api

import (
	"errors"
	"net/http"

	"github.com/tringuyenminh209/mimamori/backend/internal/settings"
	"github.com/tringuyenminh209/mimamori/backend/pkg/router"
)

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) error {
	RespondJSON(w, r, http.StatusOK, h.settings.Get())

	return nil
}

func (h *Handler) RegisterGetSettings(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "getSettings",
		Summary:     "Get settings",
		Description: "Return the broker, topic, chart and alert settings",
		Group:       SettingsGroup,
		Handler:     ErrorHandler(h.GetSettings),
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Current settings",
				Type:        settings.Settings{},
				Examples:    map[string]any{"Defaults": settings.Defaults()},
			},
		}),
	})
}

// UpdateSettings saves new settings. Saving triggers a reconnect with the new
// broker and topics.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) error {
	req, err := DecodeJSON[SettingsRequest](r)
	if err != nil {
		return err
	}

	saved, err := h.settings.Update(req.settings())

	var verr *settings.ValidationError
	if errors.As(err, &verr) {
		return NewValidationError(verr.Fields)
	}

	if err != nil {
		return err
	}

	RespondJSON(w, r, http.StatusOK, saved)

	return nil
}

func (h *Handler) RegisterUpdateSettings(path string, rb *router.RouteBuilder) {
	d := settings.Defaults()

	rb.MustPut(path, router.RouteSpec{
		OperationID: "updateSettings",
		Summary:     "Update settings",
		Description: "Validate and save settings, then reconnect to the broker with them",
		Group:       SettingsGroup,
		Handler:     ErrorHandler(h.UpdateSettings),
		RequestType: &router.RequestBodySpec{
			Type: SettingsRequest{},
			Examples: map[string]any{
				"Defaults": SettingsRequest{
					Broker: d.Broker, DataTopic: d.DataTopic, ControlTopic: d.ControlTopic,
					ChartDataPoints: d.ChartDataPoints, UpdateInterval: d.UpdateInterval,
					AlertDanger: true, AlertCaution: true, AlertCold: true,
				},
			},
		},
		Responses: GenerateResponses(true, map[int]router.ResponseSpec{
			200: {
				Description: "Saved settings",
				Type:        settings.Settings{},
				Examples:    map[string]any{"Defaults": d},
			},
			400: {
				Description: "Invalid settings",
				Type:        ErrorResponse{},
				Examples: map[string]any{
					"Same Topics": ErrorResponse{
						RequestID: zeroUUID, Message: "Validation failed",
						Errors: map[string]string{"controlTopic": "must differ from the data topic"},
					},
				},
			},
		}),
	})
}

func (h *Handler) ResetSettings(w http.ResponseWriter, r *http.Request) error {
	s, err := h.settings.Reset()
	if err != nil {
		return err
	}

	RespondJSON(w, r, http.StatusOK, s)

	return nil
}

func (h *Handler) RegisterResetSettings(path string, rb *router.RouteBuilder) {
	rb.MustDelete(path, router.RouteSpec{
		OperationID: "resetSettings",
		Summary:     "Reset settings",
		Description: "Restore the default settings",
		Group:       SettingsGroup,
		Handler:     ErrorHandler(h.ResetSettings),
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Default settings",
				Type:        settings.Settings{},
				Examples:    map[string]any{"Defaults": settings.Defaults()},
			},
		}),
	})
}
