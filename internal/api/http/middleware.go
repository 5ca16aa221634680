package http

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/chantiers-api/internal/observability"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

// MiddlewareConfig bundles the global middleware settings.
type MiddlewareConfig struct {
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Timeout time.Duration
	// Diagnostics adds the internal failure reason under details.reason.
	Diagnostics bool
}

// RegisterMiddlewares attaches global middlewares. The request logger runs
// outermost so it sees the status written by the error handler.
func RegisterMiddlewares(app *fiber.App, cfg MiddlewareConfig) {
	app.Use(observability.RequestLogger(cfg.Logger, cfg.Metrics))
	if cfg.Timeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.Timeout))
	}
	app.Use(errorHandlingMiddleware(cfg.Logger, cfg.Metrics, cfg.Diagnostics))
}

// ErrorHandler is the fiber.Config fallback for errors raised outside the
// middleware chain.
func ErrorHandler(logger *zap.Logger, diagnostics bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return renderError(c, err, logger, nil, diagnostics)
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics, diagnostics bool) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(fmt.Errorf("panic: %v", r))
			}
			if err != nil {
				err = renderError(c, err, logger, metrics, diagnostics)
			}
		}()
		return c.Next()
	}
}

func renderError(c *fiber.Ctx, err error, logger *zap.Logger, metrics *observability.Metrics, diagnostics bool) error {
	domainErr := toDomainError(err)
	metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)

	body := fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}
	details := make(map[string]any, len(domainErr.Details)+1)
	for k, v := range domainErr.Details {
		details[k] = v
	}
	if diagnostics && domainErr.Err != nil {
		details["reason"] = domainErr.Err.Error()
	}
	if len(details) > 0 {
		body["details"] = details
	}

	fields := []zap.Field{
		zap.String("code", domainErr.Code),
		zap.String("path", c.Path()),
		zap.String("request_id", observability.RequestID(c)),
	}
	if domainErr.Err != nil {
		fields = append(fields, zap.NamedError("reason", domainErr.Err))
	}
	switch {
	case domainErr.HTTPStatus >= fiber.StatusInternalServerError:
		logger.Error("request failed", fields...)
	case domainErr.Err != nil:
		logger.Info("request rejected", fields...)
	}

	return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
}

// toDomainError maps fiber's own errors (unknown route, bad method, body
// limits) into the error taxonomy before falling back to errorutil.
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch {
		case fiberErr.Code == fiber.StatusNotFound || fiberErr.Code == fiber.StatusMethodNotAllowed:
			return apperrors.NewDomainError(apperrors.CodeNotFound, "resource not found", fiberErr.Code, nil)
		case fiberErr.Code == fiber.StatusTooManyRequests:
			return apperrors.NewDomainError(apperrors.CodeRateLimited, fiberErr.Message, fiberErr.Code, nil)
		case fiberErr.Code >= fiber.StatusBadRequest && fiberErr.Code < fiber.StatusInternalServerError:
			return apperrors.NewDomainError(apperrors.CodeValidationFailed, fiberErr.Message, fiberErr.Code, nil)
		}
	}
	return apperrors.ToDomainError(err)
}
