package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/i474232898/weather-assistant/internal/retry"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
)

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// scriptedGenerator returns its responses in order, then repeats the last one.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	resets    int
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, prompt)

	var err error
	if len(g.errs) > 0 {
		err = g.errs[min(i, len(g.errs)-1)]
	}
	if err != nil {
		return "", err
	}
	if len(g.responses) == 0 {
		return "", nil
	}
	return g.responses[min(i, len(g.responses)-1)], nil
}

func (g *scriptedGenerator) Reset() {
	g.mu.Lock()
	g.resets++
	g.mu.Unlock()
}

var errModelDown = errors.New("model unavailable")

const (
	currentPayload   = `{"location":{"name":"Hanoi","country":"Vietnam","tz_id":"Asia/Bangkok","localtime":"2026-10-19 15:00"},"current":{"temp_c":29.5,"feelslike_c":33,"humidity":70,"wind_kph":12,"condition":{"text":"Partly cloudy"}}}`
	forecastPayload  = `{"location":{"name":"Hanoi","country":"Vietnam"},"forecast":{"forecastday":[{"date":"2026-10-19","day":{"maxtemp_c":31,"mintemp_c":24,"avgtemp_c":27,"condition":{"text":"Sunny"}},"hour":[{"time":"2026-10-19 15:00","temp_c":30.2,"condition":{"text":"Sunny"}}]},{"date":"2026-10-20","day":{"maxtemp_c":30,"mintemp_c":23.5,"avgtemp_c":26,"daily_chance_of_rain":80,"condition":{"text":"Moderate rain"}},"hour":[{"time":"2026-10-20 09:00","temp_c":25.1,"condition":{"text":"Light rain"}}]}]}}`
	historyPayload   = `{"location":{"name":"Hanoi","country":"Vietnam"},"forecast":{"forecastday":[{"date":"2026-10-17","day":{"maxtemp_c":30,"mintemp_c":22,"avgtemp_c":25.4,"condition":{"text":"Overcast"}}}]}}`
	astronomyPayload = `{"location":{"name":"Hanoi"},"astronomy":{"astro":{"sunrise":"05:55 AM","sunset":"05:32 PM","moonrise":"10:01 AM","moonset":"08:45 PM","moon_phase":"Waxing Crescent"}}}`
	alertsPayload    = `{"location":{"name":"Hanoi"},"alerts":{"alert":[{"headline":"Flood warning","severity":"Severe","event":"Flood","effective":"2026-10-19T06:00:00+07:00","expires":"2026-10-20T06:00:00+07:00"}]}}`
)

// stubUpstream serves canned payloads per report type and records the calls.
type stubUpstream struct {
	mu     sync.Mutex
	calls  []weather.ReportType
	params []weather.Params
	fail   map[weather.ReportType]error
}

func (u *stubUpstream) Call(_ context.Context, rt weather.ReportType, p weather.Params) (json.RawMessage, error) {
	u.mu.Lock()
	u.calls = append(u.calls, rt)
	u.params = append(u.params, p)
	err := u.fail[rt]
	u.mu.Unlock()
	if err != nil {
		return nil, err
	}

	switch rt {
	case weather.ReportCurrent:
		return json.RawMessage(currentPayload), nil
	case weather.ReportForecast:
		return json.RawMessage(forecastPayload), nil
	case weather.ReportHistory:
		return json.RawMessage(historyPayload), nil
	case weather.ReportAstronomy:
		return json.RawMessage(astronomyPayload), nil
	case weather.ReportAlerts:
		return json.RawMessage(alertsPayload), nil
	default:
		return json.RawMessage(`{}`), nil
	}
}

func (u *stubUpstream) called(rt weather.ReportType) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.calls {
		if c == rt {
			n++
		}
	}
	return n
}

// stubGeocoder knows a fixed set of places.
type stubGeocoder struct {
	places map[string]weather.Place
}

func (g stubGeocoder) Geocode(_ context.Context, name string) (weather.Place, error) {
	if p, ok := g.places[name]; ok {
		return p, nil
	}
	return weather.Place{}, weather.ErrLocationNotFound
}

var testPlaces = stubGeocoder{places: map[string]weather.Place{
	"Hanoi": {Name: "Hà Nội, Vietnam", Lat: 21.03, Lon: 105.85},
	"Hà Nội": {Name: "Hà Nội, Vietnam", Lat: 21.03, Lon: 105.85},
	"Hue":   {Name: "Huế, Vietnam", Lat: 16.46, Lon: 107.59},
}}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func fastPolicy() retry.Policy {
	p := retry.Exponential(3, time.Millisecond)
	return p
}

type chatFixture struct {
	chat     *Chat
	upstream *stubUpstream
	store    *store.MemoryStore
	gen      *scriptedGenerator
}

// newChatFixture wires a Chat whose resolver and composer share gen. A nil gen
// runs rules and templates only.
func newChatFixture(gen *scriptedGenerator) chatFixture {
	upstream := &stubUpstream{}
	mem := store.NewMemoryStore(0)
	svc := weather.NewService(mem, upstream, testPlaces, weather.WithClock(fixedNow), weather.WithLogger(quietLogger()))

	var g Generator
	if gen != nil {
		g = gen
	}
	resolver := NewResolver(g, WithResolverClock(fixedNow), WithResolverLogger(quietLogger()))
	composer := NewComposer(g, WithComposerPolicy(fastPolicy()), WithComposerLogger(quietLogger()))

	return chatFixture{
		chat:     NewChat(resolver, composer, svc, mem, "Hanoi", quietLogger()),
		upstream: upstream,
		store:    mem,
		gen:      gen,
	}
}
