package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pulsedesk/pulsedesk/plugin/upstream"
	"github.com/pulsedesk/pulsedesk/syncer"
)

// AccountsResponse lists the discovered accounts with their badge counts.
type AccountsResponse struct {
	Accounts  []syncer.Account `json:"accounts"`
	ActiveKey string           `json:"active_key"`
}

// ItemsResponse carries the items of the active account and the
// current loading/error state.
type ItemsResponse struct {
	ActiveKey string          `json:"active_key"`
	Items     []upstream.Item `json:"items"`
	Loading   bool            `json:"loading"`
	Error     string          `json:"error,omitempty"`
}

// SetActiveAccountRequest selects the focused account.
type SetActiveAccountRequest struct {
	Key string `json:"key"`
}

// SyncStatusResponse reports initialization state and sync counters.
type SyncStatusResponse struct {
	Initialized bool                   `json:"initialized"`
	ActiveKey   string                 `json:"active_key"`
	TTLSeconds  int64                  `json:"ttl_seconds"`
	Metrics     syncer.MetricsSnapshot `json:"metrics"`
}

// GetAccounts returns the discovered accounts with per-account counts.
// GET /api/v1/accounts
func (s *APIV1Service) GetAccounts(c echo.Context) error {
	snapshot := s.Syncer.Snapshot()
	return c.JSON(http.StatusOK, AccountsResponse{
		Accounts:  snapshot.Accounts,
		ActiveKey: snapshot.ActiveKey,
	})
}

// GetItems returns the items of the active account.
// GET /api/v1/items
func (s *APIV1Service) GetItems(c echo.Context) error {
	snapshot := s.Syncer.Snapshot()
	items := snapshot.Items
	if items == nil {
		items = []upstream.Item{}
	}
	return c.JSON(http.StatusOK, ItemsResponse{
		ActiveKey: snapshot.ActiveKey,
		Items:     items,
		Loading:   snapshot.Loading,
		Error:     snapshot.Error,
	})
}

// SetActiveAccount switches the focused account.
// POST /api/v1/accounts/active
func (s *APIV1Service) SetActiveAccount(c echo.Context) error {
	var req SetActiveAccountRequest
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "key is required"})
	}

	if err := s.Syncer.SetActive(c.Request().Context(), req.Key); err != nil {
		return s.syncErrorResponse(c, err)
	}
	return s.GetItems(c)
}

// RefreshSync re-fetches the active account, optionally clearing the
// whole store first.
// POST /api/v1/sync/refresh?force=true
func (s *APIV1Service) RefreshSync(c echo.Context) error {
	force, _ := strconv.ParseBool(c.QueryParam("force"))

	if err := s.Syncer.Refresh(c.Request().Context(), force); err != nil {
		return s.syncErrorResponse(c, err)
	}
	return s.GetItems(c)
}

// GetSyncStatus reports initialization state and counters.
// GET /api/v1/sync/status
func (s *APIV1Service) GetSyncStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, SyncStatusResponse{
		Initialized: s.Syncer.Initialized(),
		ActiveKey:   s.Syncer.ActiveKey(),
		TTLSeconds:  int64(s.Profile.SyncTTL.Seconds()),
		Metrics:     s.Syncer.Metrics().Snapshot(),
	})
}

func (s *APIV1Service) syncErrorResponse(c echo.Context, err error) error {
	var fetchErr *syncer.FetchError

	switch {
	case errors.Is(err, syncer.ErrUnknownKey):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown account"})
	case errors.Is(err, syncer.ErrNotInitialized), errors.Is(err, syncer.ErrNoActiveKey):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &fetchErr):
		slog.Warn("upstream fetch failed", "account", fetchErr.Key, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		slog.Error("sync request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
