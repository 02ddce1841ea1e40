package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/query-service/internal/analysis"
	"github.com/yudduy/cma-analysis/query-service/internal/charts"
	"github.com/yudduy/cma-analysis/query-service/internal/service"
)

type Dashboards interface {
	Versions(ctx context.Context) ([]string, error)
	Report(ctx context.Context, version string) (*service.Dashboard, error)
	Activity(ctx context.Context, since time.Time) ([]analysis.HourlyCount, error)
}

type DashboardHandler struct {
	service Dashboards
	now     func() time.Time
}

func NewDashboardHandler(svc Dashboards) *DashboardHandler {
	return &DashboardHandler{service: svc, now: time.Now}
}

func (h *DashboardHandler) Register(app *fiber.App) {
	app.Get("/", h.Page)
	app.Get("/api/versions", h.GetVersions)
	app.Get("/api/report", h.GetReport)
	app.Get("/api/activity", h.GetActivity)
	app.Get("/charts/:file", h.GetChart)
}

func (h *DashboardHandler) Page(c *fiber.Ctx) error {
	d, err := h.service.Report(c.UserContext(), c.Query("version"))
	var buf bytes.Buffer
	switch {
	case errors.Is(err, service.ErrNoData):
		err = emptyPage.Execute(&buf, nil)
	case err != nil:
		return h.fail(c, err, "failed to load dashboard")
	default:
		err = dashboardPage.Execute(&buf, newPageData(d))
	}
	if err != nil {
		log.WithError(err).Error("render dashboard page")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to render dashboard",
		})
	}

	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

func (h *DashboardHandler) GetVersions(c *fiber.Ctx) error {
	versions, err := h.service.Versions(c.UserContext())
	if err != nil {
		return h.fail(c, err, "failed to fetch versions")
	}
	if versions == nil {
		versions = []string{}
	}
	return c.JSON(fiber.Map{
		"data": versions,
	})
}

func (h *DashboardHandler) GetReport(c *fiber.Ctx) error {
	d, err := h.service.Report(c.UserContext(), c.Query("version"))
	if err != nil {
		return h.fail(c, err, "failed to build report")
	}
	return c.JSON(fiber.Map{
		"data": d,
	})
}

// GetActivity serves hourly counts; ?hours=N limits the window, 0 or
// absent returns all history.
func (h *DashboardHandler) GetActivity(c *fiber.Ctx) error {
	since, err := h.since(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "hours must be a non-negative integer",
		})
	}

	counts, err := h.service.Activity(c.UserContext(), since)
	if err != nil {
		return h.fail(c, err, "failed to fetch activity")
	}
	if counts == nil {
		counts = []analysis.HourlyCount{}
	}
	return c.JSON(fiber.Map{
		"data": counts,
	})
}

func (h *DashboardHandler) since(c *fiber.Ctx) (time.Time, error) {
	raw := c.Query("hours")
	if raw == "" {
		return time.Time{}, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 0 {
		return time.Time{}, fmt.Errorf("invalid hours %q", raw)
	}
	if hours == 0 {
		return time.Time{}, nil
	}
	return h.now().UTC().Add(-time.Duration(hours) * time.Hour), nil
}

func (h *DashboardHandler) GetChart(c *fiber.Ctx) error {
	name, ok := strings.CutSuffix(c.Params("file"), ".svg")
	if !ok || name == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "chart not found",
		})
	}

	var buf bytes.Buffer
	if name == "activity" {
		since, err := h.since(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "hours must be a non-negative integer",
			})
		}
		counts, err := h.service.Activity(c.UserContext(), since)
		if err != nil {
			return h.fail(c, err, "failed to fetch activity")
		}
		err = charts.Activity(&buf, counts)
		if err != nil {
			return h.fail(c, err, "failed to render chart")
		}
	} else {
		d, err := h.service.Report(c.UserContext(), c.Query("version"))
		if err != nil {
			return h.fail(c, err, "failed to build report")
		}
		if err := charts.Render(&buf, name, d.Report); err != nil {
			return h.fail(c, err, "failed to render chart")
		}
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	c.Type("svg")
	return c.Send(buf.Bytes())
}

// fail maps service errors to a status. Unexpected errors are logged and
// reported with a generic message.
func (h *DashboardHandler) fail(c *fiber.Ctx, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrVersionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "version not found"})
	case errors.Is(err, service.ErrNoData):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no tracker data"})
	case errors.Is(err, charts.ErrUnknownChart):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chart not found"})
	case errors.Is(err, charts.ErrNoChartData):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no data to chart"})
	}

	log.WithFields(log.Fields{
		"path":  c.Path(),
		"query": string(c.Request().URI().QueryString()),
		"error": err,
	}).Error(message)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": message,
	})
}

func HealthCheck(c *fiber.Ctx) error {
	return c.SendString("OK")
}
