package weather

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	buckets []ForecastBucket
	err     error
	calls   int
}

func (f *fakeSource) FiveDay(context.Context, float64, float64) ([]ForecastBucket, error) {
	f.calls++
	return f.buckets, f.err
}

type fakePredictor struct {
	days  []DailyForecast
	err   error
	calls int
}

func (f *fakePredictor) PredictDays(_ context.Context, _ []DailyForecast, _ PlausibleRanges, _ int) ([]DailyForecast, error) {
	f.calls++
	out := make([]DailyForecast, len(f.days))
	copy(out, f.days)
	return out, f.err
}

// fiveDayBuckets builds eight 3-hour buckets per day for five days.
func fiveDayBuckets() []ForecastBucket {
	zone := time.FixedZone("ICT", 7*3600)
	start := time.Date(2026, 10, 20, 1, 0, 0, 0, zone)
	var out []ForecastBucket
	for d := 0; d < 5; d++ {
		for h := 0; h < 8; h++ {
			temp := 24 + float64(h%4) + float64(d)*0.5
			cond := ConditionCloudy
			if h < 3 {
				cond = ConditionRain
			}
			out = append(out, ForecastBucket{
				Time:      start.AddDate(0, 0, d).Add(time.Duration(h*3) * time.Hour),
				TempC:     temp,
				TempMinC:  temp - 0.5,
				TempMaxC:  temp + 0.5,
				Humidity:  75 + float64(h),
				WindMS:    2 + float64(h%3)*0.5,
				Condition: cond,
			})
		}
	}
	return out
}

func plausibleDays() []DailyForecast {
	return []DailyForecast{
		{TempMinC: 24, TempMaxC: 28, TempAvgC: 26, Humidity: 78, WindMS: 2.5, Condition: ConditionCloudy},
		{TempMinC: 25, TempMaxC: 29, TempAvgC: 27, Humidity: 80, WindMS: 2.8, Condition: ConditionRain},
	}
}

func TestAggregateDaily(t *testing.T) {
	days := AggregateDaily(fiveDayBuckets(), 5)
	if len(days) != 5 {
		t.Fatalf("expected 5 days, got %d", len(days))
	}
	first := days[0]
	if first.Date != "2026-10-20" {
		t.Fatalf("unexpected first date %s", first.Date)
	}
	if first.TempMinC != 23.5 || first.TempMaxC != 27.5 {
		t.Fatalf("unexpected extremes %v..%v", first.TempMinC, first.TempMaxC)
	}
	if first.TempAvgC != 25.5 {
		t.Fatalf("unexpected mean %v", first.TempAvgC)
	}
	if first.Condition != ConditionCloudy {
		t.Fatalf("expected majority condition cloudy, got %s", first.Condition)
	}
}

func TestAggregateDailyCapsDays(t *testing.T) {
	if got := len(AggregateDaily(fiveDayBuckets(), 3)); got != 3 {
		t.Fatalf("expected 3 days, got %d", got)
	}
}

func TestComputeRangesWidensObservedExtremes(t *testing.T) {
	observed := AggregateDaily(fiveDayBuckets(), 5)
	r := ComputeRanges(observed)

	if r.TempC.Min >= 23.5 || r.TempC.Max <= 29.5 {
		t.Fatalf("temperature range should extend beyond observed extremes, got %+v", r.TempC)
	}
	if r.Humidity.Min < 0 || r.Humidity.Max > 100 {
		t.Fatalf("humidity range must stay within 0..100, got %+v", r.Humidity)
	}
	if r.WindMS.Min < 0 {
		t.Fatalf("wind range must not be negative, got %+v", r.WindMS)
	}
}

func TestValidatePredicted(t *testing.T) {
	ranges := ComputeRanges(AggregateDaily(fiveDayBuckets(), 5))

	if err := ValidatePredicted(plausibleDays(), ranges, 2); err != nil {
		t.Fatalf("expected plausible days to pass, got %v", err)
	}

	cases := map[string]func([]DailyForecast){
		"too hot":       func(d []DailyForecast) { d[1].TempMaxC = 45 },
		"humid":         func(d []DailyForecast) { d[0].Humidity = 101 },
		"windy":         func(d []DailyForecast) { d[0].WindMS = 30 },
		"condition":     func(d []DailyForecast) { d[1].Condition = "tornado" },
		"inconsistent":  func(d []DailyForecast) { d[0].TempAvgC = 23.9 },
		"missing a day": nil,
	}
	for name, mutate := range cases {
		days := plausibleDays()
		if mutate != nil {
			mutate(days)
		} else {
			days = days[:1]
		}
		if err := ValidatePredicted(days, ranges, 2); err == nil {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func newSevenDay(source ForecastSource, predictor Predictor) (*SevenDay, *fakeRecords) {
	records := &fakeRecords{}
	svc, _ := newTestService(records, &fakeUpstream{}, nil)
	return NewSevenDay(svc, source, predictor), records
}

func decodeSevenDay(t *testing.T, rec *WeatherRecord) SevenDayForecast {
	t.Helper()
	var out SevenDayForecast
	if err := json.Unmarshal(rec.Payload, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return out
}

func TestSevenDayAcceptsPlausiblePrediction(t *testing.T) {
	source := &fakeSource{buckets: fiveDayBuckets()}
	predictor := &fakePredictor{days: plausibleDays()}
	sd, _ := newSevenDay(source, predictor)

	rec, _, err := sd.Get(context.Background(), coords(21.03, 105.85))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := decodeSevenDay(t, rec)
	if len(out.Days) != 7 || out.PredictedDays != 2 || out.Notice != noticeSevenDay {
		t.Fatalf("expected 7 days with prediction, got %d days, notice %q", len(out.Days), out.Notice)
	}
	if out.Days[5].Date != "2026-10-25" || out.Days[6].Date != "2026-10-26" || !out.Days[6].Predicted {
		t.Fatalf("predicted days misdated: %+v", out.Days[5:])
	}
}

func TestSevenDayRejectsOutOfRangePrediction(t *testing.T) {
	days := plausibleDays()
	days[1].TempMaxC = 60
	source := &fakeSource{buckets: fiveDayBuckets()}
	sd, _ := newSevenDay(source, &fakePredictor{days: days})

	rec, _, err := sd.Get(context.Background(), coords(21.03, 105.85))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := decodeSevenDay(t, rec)
	if len(out.Days) != 5 || out.PredictedDays != 0 {
		t.Fatalf("expected both predicted days dropped, got %d days", len(out.Days))
	}
	if out.Notice != noticeRejected {
		t.Fatalf("unexpected notice %q", out.Notice)
	}
	for _, d := range out.Days {
		if d.Predicted {
			t.Fatalf("no predicted day may survive rejection")
		}
	}
}

func TestSevenDayPredictorFailureFallsBack(t *testing.T) {
	sd, _ := newSevenDay(&fakeSource{buckets: fiveDayBuckets()}, &fakePredictor{err: errors.New("quota exceeded")})

	rec, _, err := sd.Get(context.Background(), coords(21.03, 105.85))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := decodeSevenDay(t, rec); len(out.Days) != 5 || out.Notice != noticePredictError {
		t.Fatalf("expected 5-day fallback, got %d days, notice %q", len(out.Days), out.Notice)
	}
}

func TestSevenDayIsCached(t *testing.T) {
	source := &fakeSource{buckets: fiveDayBuckets()}
	sd, records := newSevenDay(source, nil)

	for i := 0; i < 2; i++ {
		if _, _, err := sd.Get(context.Background(), coords(21.03, 105.85)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if source.calls != 1 || records.saveCount() != 1 {
		t.Fatalf("expected one build and one write, got %d and %d", source.calls, records.saveCount())
	}
}

func TestSevenDaySourceErrorPropagates(t *testing.T) {
	boom := &UpstreamError{Provider: "openweathermap", Transport: true, Err: errors.New("timeout")}
	sd, records := newSevenDay(&fakeSource{err: boom}, nil)

	if _, _, err := sd.Get(context.Background(), coords(1, 1)); !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if records.saveCount() != 0 {
		t.Fatalf("failed builds must not be stored")
	}
}
