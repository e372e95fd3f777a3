package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/model"
	"github.com/iliyamo/tenant-auth/internal/queue"
	queue_publisher "github.com/iliyamo/tenant-auth/internal/service"
)

// internalError logs the failure with context server-side and returns
// the generic 500 body. No internal detail ever reaches the client.
func internalError(c echo.Context, op string, err error) error {
	c.Logger().Errorf("%s: %v", op, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// invalidCredentials is the single response for every credential
// failure: unknown email, wrong password, suspended account. One body
// for all of them keeps the endpoint useless for account enumeration.
func invalidCredentials(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
}

// publishLock emits an account_locked security event. Fire and forget:
// the login response must not wait on the broker.
func publishLock(p *model.Profile, ip string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
			Type:       queue.SecurityAccountLocked,
			ProfileID:  p.ID,
			TenantID:   p.TenantID,
			Email:      p.Email,
			IPAddress:  ip,
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}

// publishSecurity emits any other security event, also fire and forget.
func publishSecurity(eventType string, p *model.Profile) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
			Type:       eventType,
			ProfileID:  p.ID,
			TenantID:   p.TenantID,
			Email:      p.Email,
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}
