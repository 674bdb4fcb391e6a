package api

import (
	"net/http"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/reconciler"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
	"github.com/tringuyenminh209/mimamori/backend/pkg/router"
	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

const healthPingTimeout = 2 * time.Second

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) error {
	RespondJSON(w, r, http.StatusOK, PingResponse{Message: "Pong", Status: PingStatusOK, Version: utils.GetVersionShort()})

	return nil
}

func (h *Handler) RegisterPing(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "ping",
		Summary:     "Ping the server",
		Description: "Check if the server is alive",
		Group:       CoreGroup,
		Handler:     ErrorHandler(h.Ping),
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Successful ping response",
				Type:        PingResponse{},
				Examples: map[string]any{
					"Success": PingResponse{Message: "Pong", Status: PingStatusOK, Version: "v1.0.0 (abc1234)"},
				},
			},
		}),
	})
}

// Health reports 503 when the database or the broker link is down. Device
// reachability is informational.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := contextWithTimeout(r, healthPingTimeout)
	defer cancel()

	snap := h.engine.Snapshot()
	resp := HealthResponse{
		Database:        h.history.Ping(ctx) == nil,
		MQTT:            snap.Connectivity == mqtt.Connected,
		Connectivity:    snap.Connectivity,
		DeviceReachable: h.liveness.Reachable(),
	}

	code := http.StatusOK
	if !resp.Database || !resp.MQTT {
		code = http.StatusServiceUnavailable
	}

	RespondJSON(w, r, code, resp)

	return nil
}

func (h *Handler) RegisterHealth(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "health",
		Summary:     "Check server health",
		Description: "Report database and broker status, and whether the device is reachable",
		Group:       CoreGroup,
		Handler:     ErrorHandler(h.Health),
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Healthy",
				Type:        HealthResponse{},
				Examples: map[string]any{
					"Success": HealthResponse{Database: true, MQTT: true, Connectivity: mqtt.Connected, DeviceReachable: true},
				},
			},
			503: {
				Description: "Database or broker unavailable",
				Type:        HealthResponse{},
				Examples: map[string]any{
					"Broker Unavailable": HealthResponse{Database: true, Connectivity: mqtt.Connecting},
				},
			},
		}),
	})
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) error {
	RespondJSON(w, r, http.StatusOK, h.state())

	return nil
}

func (h *Handler) state() StateResponse {
	snap := h.engine.Snapshot()

	resp := StateResponse{
		Reading:         snap.Reading,
		Fan:             snap.Fan,
		Connectivity:    snap.Connectivity,
		DeviceReachable: h.liveness.Reachable(),
	}

	if snap.Reading != nil {
		resp.StatusLabel = snap.Reading.Status.Label()
	}

	if !snap.LastAcceptedAt.IsZero() {
		at := snap.LastAcceptedAt
		resp.LastAcceptedAt = &at
	}

	return resp
}

func (h *Handler) RegisterState(path string, rb *router.RouteBuilder) {
	example := telemetry.Reading{Status: telemetry.StatusCaution, Temperature: 27.4, Humidity: 65, DiscomfortIndex: 76.1, Timestamp: 1_700_000_000_000}

	rb.MustGet(path, router.RouteSpec{
		OperationID: "getState",
		Summary:     "Get the dashboard state",
		Description: "Return the current reading, fan state, broker connectivity and device reachability",
		Group:       DeviceGroup,
		Handler:     ErrorHandler(h.State),
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Current state",
				Type:        StateResponse{},
				Examples: map[string]any{
					"Connected": StateResponse{
						Reading:         &example,
						StatusLabel:     example.Status.Label(),
						Fan:             reconciler.FanState{On: true, Source: reconciler.SourceDevice},
						Connectivity:    mqtt.Connected,
						DeviceReachable: true,
					},
				},
			},
		}),
	})
}

// SetFan applies the user's fan intent. The command is published without waiting
// for the device; its next reading confirms the state.
func (h *Handler) SetFan(w http.ResponseWriter, r *http.Request) error {
	req, err := DecodeJSON[FanRequest](r)
	if err != nil {
		return err
	}

	if req.On == nil {
		return NewValidationError(map[string]string{"on": "required"})
	}

	RespondJSON(w, r, http.StatusOK, h.engine.SetFan(*req.On))

	return nil
}

func (h *Handler) RegisterSetFan(path string, rb *router.RouteBuilder) {
	on := true

	rb.MustPut(path, router.RouteSpec{
		OperationID: "setFan",
		Summary:     "Switch the fan",
		Description: "Switch the remote fan on or off. The state changes immediately and the command is sent to the device",
		Group:       DeviceGroup,
		Handler:     ErrorHandler(h.SetFan),
		RequestType: &router.RequestBodySpec{
			Type:     FanRequest{},
			Examples: map[string]any{"On": FanRequest{On: &on}},
		},
		Responses: GenerateResponses(true, map[int]router.ResponseSpec{
			200: {
				Description: "Fan state after the change",
				Type:        reconciler.FanState{},
				Examples: map[string]any{
					"On": reconciler.FanState{On: true, Source: reconciler.SourceUser},
				},
			},
			400: {
				Description: "Invalid request",
				Type:        ErrorResponse{},
				Examples: map[string]any{
					"Missing Field": ErrorResponse{RequestID: zeroUUID, Message: "Validation failed", Errors: map[string]string{"on": "required"}},
				},
			},
		}),
	})
}
