package v1

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/pulsedesk/pulsedesk/internal/profile"
	"github.com/pulsedesk/pulsedesk/plugin/upstream"
	"github.com/pulsedesk/pulsedesk/server/middleware"
	"github.com/pulsedesk/pulsedesk/syncer"
)

// APIV1Service exposes the sync layer's read/subscribe contract to the
// dashboard frontend.
type APIV1Service struct {
	Profile *profile.Profile
	Syncer  *syncer.Syncer[upstream.Item]
}

// NewAPIV1Service creates the v1 API service.
func NewAPIV1Service(profile *profile.Profile, s *syncer.Syncer[upstream.Item]) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Syncer:  s,
	}
}

// RegisterRoutes registers the v1 routes with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	limiter := middleware.NewRateLimiter(10, 20)

	group := echoServer.Group("/api/v1")
	group.Use(echomw.CORS())
	group.Use(limiter.Middleware())

	group.GET("/accounts", s.GetAccounts)
	group.GET("/items", s.GetItems)
	group.POST("/accounts/active", s.SetActiveAccount)
	group.POST("/sync/refresh", s.RefreshSync)
	group.GET("/sync/status", s.GetSyncStatus)
}
