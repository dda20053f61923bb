package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/edukit/gradebook/core/user"
)

// roleMiddleware admits only authenticated users holding the given role.
// The user is loaded fresh from the store so a revoked account is locked
// out even while its token is still valid.
func roleMiddleware(svc user.Service, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if usr.Role != role {
				return errInsufficientPerm
			}
			return next(ctx)
		}
	}
}

// rateLimitMiddleware caps a route at n requests per minute per client IP.
func rateLimitMiddleware(n int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(float64(n) / 60),
			Burst:     n,
			ExpiresIn: 3 * time.Minute,
		}),
	})
}
