package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chantiers-api/internal/api/dto"
	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/service"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

// LogsHandler serves the admin log views.
type LogsHandler struct {
	logs *service.LogService
}

// NewLogsHandler constructs handler.
func NewLogsHandler(logs *service.LogService) *LogsHandler {
	return &LogsHandler{logs: logs}
}

// List handles GET /logs.
func (h *LogsHandler) List(c *fiber.Ctx) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	overview, err := h.logs.Overview(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.LogsResponse{
			Application: overview.Application,
			Connexions:  dto.NewLoginHistoryResponses(overview.Connexions),
		},
	})
}

// Connexions handles GET /logs/connexions.
func (h *LogsHandler) Connexions(c *fiber.Ctx) error {
	filter, err := historyFilter(c)
	if err != nil {
		return err
	}
	entries, err := h.logs.Connexions(c.UserContext(), filter)
	if err != nil {
		return err
	}
	filter = filter.Normalize()
	return c.JSON(fiber.Map{
		"data": dto.NewLoginHistoryResponses(entries),
		"meta": dto.PageMeta{Limit: filter.Limit, Offset: filter.Offset, Count: len(entries)},
	})
}

func historyFilter(c *fiber.Ctx) (domain.LoginHistoryFilter, error) {
	filter := domain.LoginHistoryFilter{
		SubjectID: c.Query("subject_id"),
		Username:  c.Query("username"),
		Outcome:   domain.LoginOutcome(c.Query("outcome")),
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		return filter, err
	}
	if filter.Since, err = timeQuery(c, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = timeQuery(c, "until"); err != nil {
		return filter, err
	}
	return filter, nil
}

func intQuery(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError("invalid query parameter", map[string]any{key: raw})
	}
	return v, nil
}

func timeQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid query parameter, expected RFC3339", map[string]any{key: raw})
	}
	return &t, nil
}
