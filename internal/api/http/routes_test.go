package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/i474232898/weather-assistant/internal/alerts"
	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
)

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

const (
	currentPayload  = `{"location":{"name":"Hanoi","country":"Vietnam"},"current":{"temp_c":29.5,"humidity":70,"condition":{"text":"Partly cloudy"}}}`
	forecastPayload = `{"location":{"name":"Hanoi","country":"Vietnam"},"forecast":{"forecastday":[{"date":"2026-10-19","day":{"maxtemp_c":31,"mintemp_c":24,"avgtemp_c":27,"condition":{"text":"Sunny"}}}]}}`
	alertsPayload   = `{"location":{"name":"Hanoi"},"alerts":{"alert":[{"headline":"Flood warning","severity":"Severe","event":"Flood","effective":"2026-10-19T06:00:00+07:00"}]}}`
)

type fakeUpstream struct {
	mu     sync.Mutex
	calls  []weather.ReportType
	params []weather.Params
	err    error
}

func (u *fakeUpstream) Call(_ context.Context, rt weather.ReportType, p weather.Params) (json.RawMessage, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, rt)
	u.params = append(u.params, p)
	if u.err != nil {
		return nil, u.err
	}
	switch rt {
	case weather.ReportAlerts:
		return json.RawMessage(alertsPayload), nil
	case weather.ReportForecast:
		return json.RawMessage(forecastPayload), nil
	default:
		return json.RawMessage(currentPayload), nil
	}
}

func (u *fakeUpstream) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

type fakeGeocoder struct {
	mu    sync.Mutex
	calls int
}

func (g *fakeGeocoder) Geocode(_ context.Context, name string) (weather.Place, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	switch name {
	case "Hanoi":
		return weather.Place{Name: "Hà Nội, Vietnam", Lat: 21.03, Lon: 105.85}, nil
	case "Hue":
		return weather.Place{Name: "Huế, Vietnam", Lat: 16.46, Lon: 107.59}, nil
	case "Vinh":
		// some geocoders return coordinates without a label
		return weather.Place{Lat: 18.67, Lon: 105.68}, nil
	}
	return weather.Place{}, weather.ErrLocationNotFound
}

type fixture struct {
	app      *fiber.App
	upstream *fakeUpstream
	geocoder *fakeGeocoder
	store    *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	clock := func() time.Time { return testNow }

	mem := store.NewMemoryStore(10)
	up := &fakeUpstream{}
	geo := &fakeGeocoder{}
	svc := weather.NewService(mem, up, geo, weather.WithLogger(log), weather.WithClock(clock))

	chat := assistant.NewChat(
		assistant.NewResolver(nil, assistant.WithResolverLogger(log), assistant.WithResolverClock(clock)),
		assistant.NewComposer(nil, assistant.WithComposerLogger(log)),
		svc, mem, "Hanoi", log,
	)
	app := NewApp(Deps{
		Weather:  svc,
		SevenDay: weather.NewSevenDay(svc, nil, nil),
		Alerts:   alerts.NewService(svc, mem, alerts.LogNotifier{Log: log}, log),
		Chat:     chat,
		Store:    mem,
	}, log)

	return &fixture{app: app, upstream: up, geocoder: geo, store: mem}
}

func (f *fixture) do(t *testing.T, method, target string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, target, raw, err)
		}
	}
	return resp.StatusCode, out
}

func expectError(t *testing.T, status int, body map[string]any, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("expected status %d, got %d (%v)", wantStatus, status, body)
	}
	if body["error"] != wantCode {
		t.Fatalf("expected error code %q, got %v", wantCode, body["error"])
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Fatalf("expected a message, got %v", body)
	}
}

func TestCurrentByNameUsesCanonicalLocation(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/weather/current?location=Hanoi", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if body["location"] != "Hà Nội, Vietnam" || body["fromCache"] != false {
		t.Fatalf("unexpected body %v", body)
	}
	if f.geocoder.calls != 1 || f.upstream.count() != 1 {
		t.Fatalf("expected one geocode and one upstream call, got %d and %d", f.geocoder.calls, f.upstream.count())
	}
	if q := f.upstream.params[0].Query; q != "21.03,105.85" {
		t.Fatalf("expected upstream query by coordinates, got %q", q)
	}

	rec, err := f.store.FindLatest(context.Background(), weather.ReportCurrent, weather.CityKey("Hà Nội, Vietnam"), weather.AuxKey{}, time.Time{})
	if err != nil || rec == nil {
		t.Fatalf("expected stored record, got %v, %v", rec, err)
	}

	status, body = f.do(t, http.MethodGet, "/api/weather/current?location=Hanoi", nil)
	if status != http.StatusOK || body["fromCache"] != true {
		t.Fatalf("expected cached response, got %d %v", status, body)
	}
	if f.upstream.count() != 1 {
		t.Fatalf("cached response must not call upstream, got %d calls", f.upstream.count())
	}
}

func TestCurrentByCoordinates(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/weather/current?lat=16.46&lon=107.59", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if f.geocoder.calls != 0 {
		t.Fatalf("coordinates must not be geocoded")
	}
	if q := f.upstream.params[0].Query; q != "16.46,107.59" {
		t.Fatalf("unexpected upstream query %q", q)
	}
}

func TestLocationValidation(t *testing.T) {
	cases := map[string]string{
		"missing":        "/api/weather/current",
		"lat only":       "/api/weather/current?lat=21.03",
		"lon only":       "/api/weather/timezone?lon=105.85",
		"both forms":     "/api/weather/current?location=Hue&lat=16.4&lon=107.5",
		"non numeric":    "/api/weather/current?lat=north&lon=105.85",
		"lat range":      "/api/weather/alerts?lat=91&lon=105.85",
		"lon range":      "/api/weather/marine?lat=10&lon=-181",
		"forecast days":  "/api/weather/forecast?location=Hue&days=20",
		"zero days":      "/api/weather/forecast?location=Hue&days=0",
		"text days":      "/api/weather/forecast?location=Hue&days=three",
		"marine days":    "/api/weather/marine?location=Hue&days=8",
		"history early":  "/api/weather/history?q=Hanoi&dt=2005-01-01",
		"history format": "/api/weather/history?q=Hanoi&dt=19-10-2026",
		"history future": "/api/weather/history?q=Hanoi&dt=2026-12-01",
		"history date":   "/api/weather/history?q=Hanoi",
		"history coords": "/api/weather/history?lat=21&lon=105&dt=2026-10-10",
		"future past":    "/api/weather/future?location=Hue&date=2026-01-01",
		"astronomy date": "/api/weather/astronomy?location=Hue&date=tomorrow",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			status, body := f.do(t, http.MethodGet, target, nil)
			expectError(t, status, body, http.StatusBadRequest, codeValidation)
			if f.upstream.count() != 0 || f.geocoder.calls != 0 {
				t.Fatalf("invalid requests must not reach providers")
			}
		})
	}
}

func TestPairedCoordinateMessage(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodGet, "/api/weather/current?lat=21.03", nil)
	if msg, _ := body["message"].(string); msg != "lat/lon: lat and lon must be provided together" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestReportParametersReachUpstream(t *testing.T) {
	f := newFixture(t)

	targets := []string{
		"/api/weather/forecast?location=Hue",
		"/api/weather/marine?location=Hue",
		"/api/weather/history?q=Hue&dt=2026-10-10",
		"/api/weather/future?city=Hue&dt=2026-12-25",
		"/api/weather/astronomy?location=Hue",
	}
	for _, target := range targets {
		if status, body := f.do(t, http.MethodGet, target, nil); status != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (%v)", target, status, body)
		}
	}

	want := []weather.Params{
		{Days: 3},
		{Days: 1},
		{Date: "2026-10-10"},
		{Date: "2026-12-25"},
		{Date: "2026-10-19"},
	}
	for i, w := range want {
		got := f.upstream.params[i]
		if got.Days != w.Days || got.Date != w.Date {
			t.Errorf("%s: expected days=%d date=%q, got days=%d date=%q", targets[i], w.Days, w.Date, got.Days, got.Date)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		target     string
		upstream   error
		wantStatus int
		wantCode   string
	}{
		{"unknown place", "/api/weather/current?location=Atlantis", nil, http.StatusNotFound, codeLocationNotFound},
		{"transport", "/api/weather/current?location=Hue", &weather.UpstreamError{Provider: "weatherapi", Transport: true, Err: errors.New("timeout")}, http.StatusServiceUnavailable, codeUpstreamUnavailable},
		{"upstream 4xx", "/api/weather/current?location=Hue", &weather.UpstreamError{Provider: "weatherapi", StatusCode: 400, Message: "No matching location found."}, http.StatusBadRequest, codeUpstream},
		{"upstream 5xx", "/api/weather/current?location=Hue", &weather.UpstreamError{Provider: "weatherapi", StatusCode: 500, Message: "boom"}, http.StatusBadGateway, codeUpstream},
		{"unexpected", "/api/weather/current?location=Hue", errors.New("disk on fire"), http.StatusInternalServerError, codeInternal},
		{"no route", "/api/nothing", nil, http.StatusNotFound, codeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.upstream.err = tc.upstream
			status, body := f.do(t, http.MethodGet, tc.target, nil)
			expectError(t, status, body, tc.wantStatus, tc.wantCode)
		})
	}
}

func TestUnknownPlaceSkipsUpstream(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/weather/forecast?location=Atlantis&days=2", nil)
	if f.upstream.count() != 0 {
		t.Fatalf("expected no upstream calls, got %d", f.upstream.count())
	}
}

func TestInternalErrorIsLogged(t *testing.T) {
	log, hook := test.NewNullLogger()
	mem := store.NewMemoryStore(10)
	svc := weather.NewService(mem, &fakeUpstream{err: errors.New("disk on fire")}, &fakeGeocoder{}, weather.WithLogger(log))
	app := NewApp(Deps{Weather: svc, Store: mem}, log)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/weather/timezone?location=Hue", nil), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel || entry.Message != "request failed" {
		t.Fatalf("expected request failure to be logged, got %+v", entry)
	}
}

func TestNotificationsFlow(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/weather/notifications?location=Hanoi", nil)
	if status != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("expected one notification, got %d %v", status, body)
	}
	list := body["notifications"].([]any)
	id := list[0].(map[string]any)["id"].(string)

	status, body = f.do(t, http.MethodGet, "/api/weather/notifications/detail?location=Hanoi&id="+id, nil)
	if status != http.StatusOK || body["headline"] != "Flood warning" {
		t.Fatalf("unexpected detail %d %v", status, body)
	}

	status, body = f.do(t, http.MethodGet, "/api/weather/notifications/detail?location=Hanoi&id=missing", nil)
	expectError(t, status, body, http.StatusNotFound, codeAlertNotFound)

	status, body = f.do(t, http.MethodGet, "/api/weather/notifications/detail?location=Hanoi", nil)
	expectError(t, status, body, http.StatusBadRequest, codeValidation)
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/weather/notifications/subscribe", map[string]any{
		"deviceId": "device-1",
		"location": "Hanoi",
		"severity": "Severe",
		"types":    []string{"flood"},
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", status, body)
	}

	status, body = f.do(t, http.MethodGet, "/api/weather/notifications/subscriptions?deviceId=device-1", nil)
	if status != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("expected one subscription, got %d %v", status, body)
	}

	status, body = f.do(t, http.MethodPost, "/api/weather/notifications/unsubscribe", map[string]any{
		"deviceId": "device-1",
		"location": "Hanoi",
	})
	if status != http.StatusOK || body["deactivated"] != float64(1) {
		t.Fatalf("expected one deactivation, got %d %v", status, body)
	}

	_, body = f.do(t, http.MethodGet, "/api/weather/notifications/subscriptions?deviceId=device-1", nil)
	if body["count"] != float64(0) {
		t.Fatalf("expected no active subscriptions, got %v", body)
	}
}

func TestSubscribeValidation(t *testing.T) {
	cases := map[string]map[string]any{
		"no device":    {"location": "Hanoi"},
		"no location":  {"deviceId": "d"},
		"bad severity": {"deviceId": "d", "location": "Hanoi", "severity": "apocalyptic"},
		"half coords":  {"deviceId": "d", "lat": 21.0},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			status, body := f.do(t, http.MethodPost, "/api/weather/notifications/subscribe", payload)
			expectError(t, status, body, http.StatusBadRequest, codeValidation)
		})
	}
}

func TestSubscriptionsRequireDevice(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/api/weather/notifications/subscriptions", nil)
	expectError(t, status, body, http.StatusBadRequest, codeValidation)
}

func TestChatAnswersAndRecordsHistory(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{
		"question":  "How hot is it right now?",
		"city":      "Hanoi",
		"sessionId": "s-1",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if answer, _ := body["answer"].(string); answer == "" {
		t.Fatalf("expected an answer, got %v", body)
	}
	if body["sessionId"] != "s-1" || body["location"] != "Hà Nội, Vietnam" {
		t.Fatalf("unexpected body %v", body)
	}

	status, body = f.do(t, http.MethodGet, "/api/chat/history?sessionId=s-1", nil)
	if status != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("expected one history record, got %d %v", status, body)
	}
}

func TestChatValidation(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{"question": "   "})
	expectError(t, status, body, http.StatusBadRequest, codeValidation)

	status, body = f.do(t, http.MethodGet, "/api/chat/history?sessionId=s-1&limit=-2", nil)
	expectError(t, status, body, http.StatusBadRequest, codeValidation)

	status, body = f.do(t, http.MethodGet, "/api/chat/history", nil)
	expectError(t, status, body, http.StatusBadRequest, codeValidation)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/health", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", status, body)
	}

	log, _ := test.NewNullLogger()
	app := NewApp(Deps{Store: failingPinger{}}, log)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the store is down, got %d", resp.StatusCode)
	}
}

func TestRequestNamesSurviveLaterRequests(t *testing.T) {
	f := newFixture(t)
	if !f.app.Config().Immutable {
		t.Fatal("request values must be copied before they are stored")
	}

	if status, body := f.do(t, http.MethodGet, "/api/weather/current?location=Vinh", nil); status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	for _, target := range []string{"/api/weather/current?location=Hue", "/api/weather/timezone?location=Hanoi"} {
		f.do(t, http.MethodGet, target, nil)
	}

	rec, err := f.store.FindLatest(context.Background(), weather.ReportCurrent, weather.CityKey("Vinh"), weather.AuxKey{}, time.Time{})
	if err != nil || rec == nil {
		t.Fatalf("expected the record stored under the requested name, got %v, %v", rec, err)
	}
	if rec.Location.City != "Vinh" {
		t.Fatalf("stored name changed to %q", rec.Location.City)
	}
}
