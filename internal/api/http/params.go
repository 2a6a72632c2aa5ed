package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/common"
	"github.com/i474232898/weather-assistant/internal/weather"
)

const (
	isoDate = "2006-01-02"
	// historyFloor is the oldest date the history report accepts.
	historyFloor = "2010-01-01"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validationError converts validator failures into a weather.ValidationError
// for the first failing field.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return weather.NewValidationError("", err.Error())
	}
	fe := ve[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return weather.NewValidationError(field, "is required")
	case "required_with":
		return weather.NewValidationError("lat/lon", "lat and lon must be provided together")
	case "gte", "lte":
		return weather.NewValidationError(field, rangeMessage(fe))
	case "min", "max":
		return weather.NewValidationError(field, fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param()))
	case "datetime":
		return weather.NewValidationError(field, "must be a date in YYYY-MM-DD format")
	case "oneof":
		return weather.NewValidationError(field, "must be one of "+strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return weather.NewValidationError(field, "is invalid")
	}
}

var fieldRanges = map[string]string{
	"lat": "between -90 and 90",
	"lon": "between -180 and 180",
}

func rangeMessage(fe validator.FieldError) string {
	if r := fieldRanges[fe.Field()]; r != "" {
		return "must be " + r
	}
	if fe.Tag() == "gte" {
		return "must be at least " + fe.Param()
	}
	return "must be at most " + fe.Param()
}

// locationInput is the location part of a request: a place name XOR a
// coordinate pair.
type locationInput struct {
	Name string   `json:"location"`
	Lat  *float64 `json:"lat" validate:"required_with=Lon,omitempty,gte=-90,lte=90"`
	Lon  *float64 `json:"lon" validate:"required_with=Lat,omitempty,gte=-180,lte=180"`
}

func (l locationInput) hasCoords() bool { return l.Lat != nil || l.Lon != nil }

// check validates l. When optional is true an empty location is allowed.
func (l locationInput) check(optional bool) error {
	if err := validate.Struct(l); err != nil {
		return validationError(err)
	}
	switch {
	case l.Name != "" && l.hasCoords():
		return weather.NewValidationError("location", "provide either location or lat/lon, not both")
	case l.Name == "" && !l.hasCoords() && !optional:
		return weather.NewValidationError("location", "location or lat/lon is required")
	}
	return nil
}

func (l locationInput) query() weather.LocationQuery {
	return weather.LocationQuery{Name: l.Name, Lat: l.Lat, Lon: l.Lon}
}

// locationFromQuery reads location (aliases q and city) and lat/lon.
func locationFromQuery(c *fiber.Ctx) (locationInput, error) {
	in := locationInput{
		Name: strings.TrimSpace(firstQuery(c, "location", "q", "city")),
	}
	var err error
	if in.Lat, err = floatQuery(c, "lat"); err != nil {
		return in, err
	}
	if in.Lon, err = floatQuery(c, "lon"); err != nil {
		return in, err
	}
	return in, in.check(false)
}

func firstQuery(c *fiber.Ctx, keys ...string) string {
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = c.Query(k)
	}
	return common.FirstNonEmpty(values...)
}

func floatQuery(c *fiber.Ctx, key string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, weather.NewValidationError(key, "must be numeric")
	}
	return &f, nil
}

// daysFromQuery parses days with a default, enforcing [min, max].
func daysFromQuery(c *fiber.Ctx, def, min, max int) (int, error) {
	raw := strings.TrimSpace(c.Query("days"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, weather.NewValidationError("days", "must be an integer")
	}
	if err := validate.Var(n, fmt.Sprintf("gte=%d,lte=%d", min, max)); err != nil {
		return 0, weather.NewValidationError("days", fmt.Sprintf("must be between %d and %d", min, max))
	}
	return n, nil
}

type dateInput struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// dateFromQuery reads date (alias dt). An empty date is returned as "" when
// optional.
func dateFromQuery(c *fiber.Ctx, optional bool) (string, error) {
	in := dateInput{Date: strings.TrimSpace(firstQuery(c, "date", "dt"))}
	if in.Date == "" && optional {
		return "", nil
	}
	if err := validate.Struct(in); err != nil {
		return "", validationError(err)
	}
	return in.Date, nil
}

// historyDate validates a history date: not before historyFloor and not after today.
func historyDate(date string, now time.Time) error {
	if date < historyFloor {
		return weather.NewValidationError("date", "must be on or after "+historyFloor)
	}
	if date > now.UTC().Format(isoDate) {
		return weather.NewValidationError("date", "must not be in the future")
	}
	return nil
}
