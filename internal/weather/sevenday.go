package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	observedDays  = 5
	predictedDays = 2

	noticeSevenDay     = "7-day forecast: 5 days from provider data, 2 days AI-predicted"
	noticeNoPredictor  = "5-day forecast only: prediction is disabled"
	noticePredictError = "5-day forecast only: prediction unavailable"
	noticeRejected     = "5-day forecast only: predicted days failed plausibility checks"
	noticeShortHistory = "forecast limited to provider data"
)

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies in r.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// PlausibleRanges are the bounds predicted days must respect.
type PlausibleRanges struct {
	TempC    Range `json:"tempC"`
	Humidity Range `json:"humidityPercent"`
	WindMS   Range `json:"windSpeedMs"`
}

// SevenDayForecast is the payload of a sevenDayForecast record.
type SevenDayForecast struct {
	Location      string          `json:"location"`
	Days          []DailyForecast `json:"days"`
	ObservedDays  int             `json:"observedDays"`
	PredictedDays int             `json:"predictedDays"`
	Ranges        PlausibleRanges `json:"ranges"`
	Notice        string          `json:"notice"`
}

// Predictor extrapolates additional forecast days from observed ones.
type Predictor interface {
	PredictDays(ctx context.Context, observed []DailyForecast, ranges PlausibleRanges, n int) ([]DailyForecast, error)
}

// ComputeRanges derives plausible bounds from observed days: the observed extremes
// widened by two standard deviations of the daily means, with a minimum margin.
func ComputeRanges(days []DailyForecast) PlausibleRanges {
	if len(days) == 0 {
		return PlausibleRanges{}
	}

	temps := make([]float64, 0, len(days))
	hums := make([]float64, 0, len(days))
	winds := make([]float64, 0, len(days))
	tMin, tMax := math.Inf(1), math.Inf(-1)
	for _, d := range days {
		temps = append(temps, d.TempAvgC)
		hums = append(hums, d.Humidity)
		winds = append(winds, d.WindMS)
		tMin = math.Min(tMin, d.TempMinC)
		tMax = math.Max(tMax, d.TempMaxC)
	}

	_, tSD := meanStddev(temps)
	_, hSD := meanStddev(hums)
	_, wSD := meanStddev(winds)

	tMargin := math.Max(2*tSD, 2)
	hMargin := math.Max(2*hSD, 5)
	wMargin := math.Max(2*wSD, 1)

	hLo, hHi := minMax(hums)
	wLo, wHi := minMax(winds)

	return PlausibleRanges{
		TempC: Range{Min: round1(tMin - tMargin), Max: round1(tMax + tMargin)},
		Humidity: Range{
			Min: round1(math.Max(0, hLo-hMargin)),
			Max: round1(math.Min(100, hHi+hMargin)),
		},
		WindMS: Range{
			Min: round1(math.Max(0, wLo-wMargin)),
			Max: round1(wHi + wMargin),
		},
	}
}

// ValidatePredicted checks every predicted day against ranges and the fixed
// condition vocabulary. Any failure rejects the whole set.
func ValidatePredicted(days []DailyForecast, ranges PlausibleRanges, want int) error {
	if len(days) != want {
		return fmt.Errorf("expected %d predicted days, got %d", want, len(days))
	}
	for i, d := range days {
		switch {
		case !d.Condition.IsKnown():
			return fmt.Errorf("day %d: unknown condition %q", i, d.Condition)
		case !ranges.TempC.Contains(d.TempMinC), !ranges.TempC.Contains(d.TempMaxC), !ranges.TempC.Contains(d.TempAvgC):
			return fmt.Errorf("day %d: temperature outside %.1f..%.1f", i, ranges.TempC.Min, ranges.TempC.Max)
		case d.TempMinC > d.TempMaxC || d.TempAvgC < d.TempMinC || d.TempAvgC > d.TempMaxC:
			return fmt.Errorf("day %d: inconsistent min/avg/max temperature", i)
		case !ranges.Humidity.Contains(d.Humidity):
			return fmt.Errorf("day %d: humidity outside %.1f..%.1f", i, ranges.Humidity.Min, ranges.Humidity.Max)
		case !ranges.WindMS.Contains(d.WindMS):
			return fmt.Errorf("day %d: wind outside %.1f..%.1f", i, ranges.WindMS.Min, ranges.WindMS.Max)
		}
	}
	return nil
}

// SevenDay composes the seven-day forecast: five aggregated provider days plus two
// predicted days that pass the plausibility gate.
type SevenDay struct {
	svc       *Service
	source    ForecastSource
	predictor Predictor
	log       logrus.FieldLogger
}

// NewSevenDay creates a SevenDay. predictor may be nil to serve 5 days only.
func NewSevenDay(svc *Service, source ForecastSource, predictor Predictor) *SevenDay {
	return &SevenDay{
		svc:       svc,
		source:    source,
		predictor: predictor,
		log:       svc.log.WithField("component", "seven_day"),
	}
}

// Get resolves q and returns the cached or freshly built seven-day forecast record.
func (s *SevenDay) Get(ctx context.Context, q LocationQuery) (*WeatherRecord, ResolvedLocation, error) {
	loc, err := s.svc.Resolve(ctx, q)
	if err != nil {
		return nil, ResolvedLocation{}, err
	}

	rec, err := s.svc.Cached(ctx, ReportSevenDayForecast, loc.Key, AuxKey{}, func(ctx context.Context) (json.RawMessage, error) {
		forecast, err := s.Build(ctx, loc)
		if err != nil {
			return nil, err
		}
		return json.Marshal(forecast)
	})
	if err != nil {
		return nil, loc, err
	}
	return rec, loc, nil
}

// Build fetches and aggregates provider data and runs the prediction gate.
func (s *SevenDay) Build(ctx context.Context, loc ResolvedLocation) (SevenDayForecast, error) {
	buckets, err := s.source.FiveDay(ctx, loc.Lat, loc.Lon)
	if err != nil {
		return SevenDayForecast{}, err
	}

	observed := AggregateDaily(buckets, observedDays)
	if len(observed) == 0 {
		return SevenDayForecast{}, fmt.Errorf("secondary provider returned no forecast data")
	}

	out := SevenDayForecast{
		Location:     loc.Name,
		Days:         observed,
		ObservedDays: len(observed),
		Ranges:       ComputeRanges(observed),
	}

	switch {
	case len(observed) < observedDays:
		out.Notice = noticeShortHistory
		return out, nil
	case s.predictor == nil:
		out.Notice = noticeNoPredictor
		return out, nil
	}

	predicted, err := s.predictor.PredictDays(ctx, observed, out.Ranges, predictedDays)
	if err != nil {
		s.log.WithError(err).WithField("location", loc.Name).Warn("forecast prediction failed")
		out.Notice = noticePredictError
		return out, nil
	}
	if err := ValidatePredicted(predicted, out.Ranges, predictedDays); err != nil {
		s.log.WithError(err).WithField("location", loc.Name).Warn("rejecting predicted forecast days")
		out.Notice = noticeRejected
		return out, nil
	}

	last, err := time.Parse("2006-01-02", observed[len(observed)-1].Date)
	if err != nil {
		out.Notice = noticeRejected
		return out, nil
	}
	for i := range predicted {
		predicted[i].Date = last.AddDate(0, 0, i+1).Format("2006-01-02")
		predicted[i].Predicted = true
	}

	out.Days = append(out.Days, predicted...)
	out.PredictedDays = len(predicted)
	out.Notice = noticeSevenDay
	return out, nil
}

func minMax(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
