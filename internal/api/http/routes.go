package httpapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/alerts"
	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Weather  *weather.Service
	SevenDay *weather.SevenDay
	Alerts   *alerts.Service
	Chat     *assistant.Chat
	Store    Pinger
}

type handler struct {
	Deps
}

// reportResponse is the body of every weather report endpoint.
type reportResponse struct {
	Type      weather.ReportType `json:"type"`
	Location  string             `json:"location"`
	Lat       float64            `json:"lat"`
	Lon       float64            `json:"lon"`
	FetchedAt time.Time          `json:"fetchedAt"`
	FromCache bool               `json:"fromCache"`
	Data      json.RawMessage    `json:"data"`
}

func newReportResponse(rec *weather.WeatherRecord, loc weather.ResolvedLocation) reportResponse {
	return reportResponse{
		Type:      rec.ReportType,
		Location:  loc.Name,
		Lat:       loc.Lat,
		Lon:       loc.Lon,
		FetchedAt: rec.FetchedAt,
		FromCache: rec.FromCache,
		Data:      rec.Payload,
	}
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	h := &handler{Deps: deps}

	app.Get("/health", h.health)

	w := app.Group("/api/weather")
	w.Get("/current", h.simpleReport(weather.ReportCurrent))
	w.Get("/forecast", h.forecast)
	w.Get("/forecast/7days", h.sevenDay)
	w.Get("/history", h.history)
	w.Get("/future", h.future)
	w.Get("/marine", h.marine)
	w.Get("/astronomy", h.astronomy)
	w.Get("/timezone", h.simpleReport(weather.ReportTimezone))
	w.Get("/alerts", h.simpleReport(weather.ReportAlerts))

	n := w.Group("/notifications")
	n.Get("/", h.notifications)
	n.Get("/detail", h.notificationDetail)
	n.Post("/subscribe", h.subscribe)
	n.Post("/unsubscribe", h.unsubscribe)
	n.Get("/subscriptions", h.subscriptions)

	chat := app.Group("/api/chat")
	chat.Post("/", h.ask)
	chat.Get("/history", h.chatHistory)
}

func (h *handler) health(c *fiber.Ctx) error {
	body := fiber.Map{"status": "ok", "service": "weather-assistant", "store": "ok"}
	if h.Store != nil {
		if err := h.Store.Ping(c.UserContext()); err != nil {
			body["status"] = "degraded"
			body["store"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(body)
		}
	}
	return c.JSON(body)
}

func (h *handler) report(c *fiber.Ctx, rt weather.ReportType, in locationInput, aux weather.AuxKey) error {
	rec, loc, err := h.Weather.Get(c.UserContext(), rt, in.query(), aux)
	if err != nil {
		return err
	}
	return c.JSON(newReportResponse(rec, loc))
}

// simpleReport serves report types that take nothing beyond a location.
func (h *handler) simpleReport(rt weather.ReportType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in, err := locationFromQuery(c)
		if err != nil {
			return err
		}
		return h.report(c, rt, in, weather.AuxKey{})
	}
}

func (h *handler) forecast(c *fiber.Ctx) error {
	in, err := locationFromQuery(c)
	if err != nil {
		return err
	}
	days, err := daysFromQuery(c, 3, 1, 14)
	if err != nil {
		return err
	}
	return h.report(c, weather.ReportForecast, in, weather.AuxKey{Days: days})
}

func (h *handler) marine(c *fiber.Ctx) error {
	in, err := locationFromQuery(c)
	if err != nil {
		return err
	}
	days, err := daysFromQuery(c, 1, 1, 7)
	if err != nil {
		return err
	}
	return h.report(c, weather.ReportMarine, in, weather.AuxKey{Days: days})
}

func (h *handler) history(c *fiber.Ctx) error {
	in, err := locationFromQuery(c)
	if err != nil {
		return err
	}
	if in.Name == "" {
		return weather.NewValidationError("q", "history requires a place name")
	}
	date, err := dateFromQuery(c, false)
	if err != nil {
		return err
	}
	if err := historyDate(date, h.Weather.Now()); err != nil {
		return err
	}
	return h.report(c, weather.ReportHistory, in, weather.AuxKey{Date: date})
}

func (h *handler) future(c *fiber.Ctx) error {
	in, err := locationFromQuery(c)
	if err != nil {
		return err
	}
	date, err := dateFromQuery(c, false)
	if err != nil {
		return err
	}
	if date <= h.Weather.Now().Format(isoDate) {
		return weather.NewValidationError("date", "must be in the future")
	}
	return h.report(c, weather.ReportFuture, in, weather.AuxKey{Date: date})
}

func (h *handler) astronomy(c *fiber.Ctx) error {
	in, err := locationFromQuery(c)
	if err != nil {
		return err
	}
	date, err := dateFromQuery(c, true)
	if err != nil {
		return err
	}
	if date == "" {
		date = h.Weather.Now().Format(isoDate)
	}
	return h.report(c, weather.ReportAstronomy, in, weather.AuxKey{Date: date})
}

func (h *handler) sevenDay(c *fiber.Ctx) error {
	in, err := locationFromQuery(c)
	if err != nil {
		return err
	}
	rec, loc, err := h.SevenDay.Get(c.UserContext(), in.query())
	if err != nil {
		return err
	}
	return c.JSON(newReportResponse(rec, loc))
}

func (h *handler) notifications(c *fiber.Ctx) error {
	in, err := locationFromQuery(c)
	if err != nil {
		return err
	}
	list, err := h.Alerts.List(c.UserContext(), in.query())
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *handler) notificationDetail(c *fiber.Ctx) error {
	in, err := locationFromQuery(c)
	if err != nil {
		return err
	}
	n, err := h.Alerts.Detail(c.UserContext(), in.query(), strings.TrimSpace(c.Query("id")))
	if err != nil {
		return err
	}
	return c.JSON(n)
}

type subscribeBody struct {
	DeviceID  string   `json:"deviceId" validate:"required,max=200"`
	PushToken string   `json:"pushToken" validate:"max=4096"`
	Location  string   `json:"location"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Severity  string   `json:"severity" validate:"omitempty,oneof=minor moderate severe extreme"`
	Types     []string `json:"types" validate:"max=20,dive,required,max=64"`
}

func (b subscribeBody) location() locationInput {
	return locationInput{Name: strings.TrimSpace(b.Location), Lat: b.Lat, Lon: b.Lon}
}

func (h *handler) subscribe(c *fiber.Ctx) error {
	var body subscribeBody
	if err := c.BodyParser(&body); err != nil {
		return weather.NewValidationError("body", "invalid JSON body")
	}
	body.Severity = strings.ToLower(strings.TrimSpace(body.Severity))
	if err := validate.Struct(body); err != nil {
		return validationError(err)
	}
	loc := body.location()
	if err := loc.check(false); err != nil {
		return err
	}

	sub, err := h.Alerts.Subscribe(c.UserContext(), alerts.SubscribeRequest{
		DeviceID:       body.DeviceID,
		PushToken:      body.PushToken,
		Location:       loc.query(),
		SeverityFilter: body.Severity,
		TypeFilters:    body.Types,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

type unsubscribeBody struct {
	DeviceID string   `json:"deviceId" validate:"required,max=200"`
	Location string   `json:"location"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
}

func (h *handler) unsubscribe(c *fiber.Ctx) error {
	var body unsubscribeBody
	if err := c.BodyParser(&body); err != nil {
		return weather.NewValidationError("body", "invalid JSON body")
	}
	if err := validate.Struct(body); err != nil {
		return validationError(err)
	}
	loc := locationInput{Name: strings.TrimSpace(body.Location), Lat: body.Lat, Lon: body.Lon}
	if err := loc.check(true); err != nil {
		return err
	}

	var q *weather.LocationQuery
	if loc.Name != "" || loc.hasCoords() {
		lq := loc.query()
		q = &lq
	}
	n, err := h.Alerts.Unsubscribe(c.UserContext(), body.DeviceID, q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deviceId": body.DeviceID, "deactivated": n})
}

func (h *handler) subscriptions(c *fiber.Ctx) error {
	deviceID := strings.TrimSpace(c.Query("deviceId"))
	subs, err := h.Alerts.Subscriptions(c.UserContext(), deviceID)
	if err != nil {
		return err
	}
	if subs == nil {
		subs = []weather.AlertSubscription{}
	}
	return c.JSON(fiber.Map{"deviceId": deviceID, "count": len(subs), "subscriptions": subs})
}

type chatBody struct {
	Question  string `json:"question" validate:"required,max=1000"`
	City      string `json:"city" validate:"max=200"`
	SessionID string `json:"sessionId" validate:"max=100"`
}

func (h *handler) ask(c *fiber.Ctx) error {
	var body chatBody
	if err := c.BodyParser(&body); err != nil {
		return weather.NewValidationError("body", "invalid JSON body")
	}
	body.Question = strings.TrimSpace(body.Question)
	body.City = strings.TrimSpace(body.City)
	if err := validate.Struct(body); err != nil {
		return validationError(err)
	}

	resp, err := h.Chat.Ask(c.UserContext(), assistant.ChatRequest{
		Question:  body.Question,
		City:      body.City,
		SessionID: body.SessionID,
	})
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *handler) chatHistory(c *fiber.Ctx) error {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return weather.NewValidationError("limit", "must be a positive integer")
		}
		limit = n
	}
	sessionID := strings.TrimSpace(c.Query("sessionId"))
	if sessionID == "" {
		return weather.NewValidationError("sessionId", "is required")
	}
	records, err := h.Chat.History(c.UserContext(), sessionID, limit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []weather.ChatRecord{}
	}
	return c.JSON(fiber.Map{"sessionId": sessionID, "count": len(records), "history": records})
}
