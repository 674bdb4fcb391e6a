package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/settings"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/router"
)

//nolint:gochecknoglobals // Documentation example
var exampleEntries = []history.Entry{
	{ID: 2, Reading: telemetry.Reading{Status: telemetry.StatusDanger, Temperature: 30.2, Humidity: 70.1, DiscomfortIndex: 28.5, Timestamp: 1_700_000_002_000}},
	{ID: 1, Reading: telemetry.Reading{Status: telemetry.StatusSafe, Temperature: 22, Humidity: 40, DiscomfortIndex: 20, Timestamp: 1_700_000_000_000}},
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) error {
	var (
		entries []history.Entry
		err     error
	)

	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		entries, err = h.history.QueryByStatus(r.Context(), telemetry.Status(status))
	} else {
		entries, err = h.history.QueryAll(r.Context())
	}

	if err != nil {
		return err
	}

	RespondJSON(w, r, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})

	return nil
}

func (h *Handler) RegisterListHistory(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "listHistory",
		Summary:     "List stored readings",
		Description: "List every stored reading, newest first, optionally filtered by status",
		Group:       HistoryGroup,
		Handler:     ErrorHandler(h.ListHistory),
		Parameters: map[string]router.ParameterSpec{
			"status": {
				In:          router.ParameterInQuery,
				Description: "Only return readings with this status (ANZEN, CHUI, KIKEN, SAMUI, REMOTE)",
				Type:        new(string),
			},
		},
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Stored readings",
				Type:        HistoryResponse{},
				Examples: map[string]any{
					"Success": HistoryResponse{Entries: exampleEntries, Count: len(exampleEntries)},
				},
			},
		}),
	})
}

// RecentHistory returns the newest readings for the chart. The default limit is
// the configured chart depth.
func (h *Handler) RecentHistory(w http.ResponseWriter, r *http.Request) error {
	limit, err := queryInt(r, "limit", h.settings.Get().ChartDataPoints)
	if err != nil {
		return err
	}

	if limit < 1 || limit > settings.MaxChartDataPoints {
		return NewValidationError(map[string]string{"limit": "must be between 1 and 500"})
	}

	entries, err := h.history.QueryRecent(r.Context(), limit)
	if err != nil {
		return err
	}

	RespondJSON(w, r, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})

	return nil
}

func (h *Handler) RegisterRecentHistory(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "recentHistory",
		Summary:     "List recent readings",
		Description: "List the newest readings for the chart",
		Group:       HistoryGroup,
		Handler:     ErrorHandler(h.RecentHistory),
		Parameters: map[string]router.ParameterSpec{
			"limit": {
				In:          router.ParameterInQuery,
				Description: "Number of readings, defaults to the configured chart depth",
				Type:        new(int),
			},
		},
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Recent readings",
				Type:        HistoryResponse{},
				Examples: map[string]any{
					"Success": HistoryResponse{Entries: exampleEntries, Count: len(exampleEntries)},
				},
			},
			400: {
				Description: "Invalid limit",
				Type:        ErrorResponse{},
			},
		}),
	})
}

func (h *Handler) LatestHistory(w http.ResponseWriter, r *http.Request) error {
	e, err := h.history.QueryLatest(r.Context())
	if errors.Is(err, history.ErrNotFound) {
		return NewError(http.StatusNotFound, "No readings stored")
	}

	if err != nil {
		return err
	}

	RespondJSON(w, r, http.StatusOK, e)

	return nil
}

func (h *Handler) RegisterLatestHistory(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "latestHistory",
		Summary:     "Get the latest stored reading",
		Description: "Return the newest stored reading",
		Group:       HistoryGroup,
		Handler:     ErrorHandler(h.LatestHistory),
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Latest reading",
				Type:        history.Entry{},
				Examples:    map[string]any{"Success": exampleEntries[0]},
			},
			404: {
				Description: "Nothing stored",
				Type:        ErrorResponse{},
				Examples: map[string]any{
					"Empty": ErrorResponse{RequestID: zeroUUID, Message: "No readings stored"},
				},
			},
		}),
	})
}

func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) error {
	n, err := h.history.DeleteAll(r.Context())
	if err != nil {
		return err
	}

	GetLogger(r.Context()).Info("history cleared", "deleted", n)
	RespondJSON(w, r, http.StatusOK, DeleteHistoryResponse{Deleted: n})

	return nil
}

func (h *Handler) RegisterDeleteHistory(path string, rb *router.RouteBuilder) {
	rb.MustDelete(path, router.RouteSpec{
		OperationID: "deleteHistory",
		Summary:     "Clear history",
		Description: "Delete every stored reading",
		Group:       HistoryGroup,
		Handler:     ErrorHandler(h.DeleteHistory),
		Responses: GenerateResponses(false, map[int]router.ResponseSpec{
			200: {
				Description: "Number of deleted readings",
				Type:        DeleteHistoryResponse{},
				Examples:    map[string]any{"Success": DeleteHistoryResponse{Deleted: 42}},
			},
		}),
	})
}
