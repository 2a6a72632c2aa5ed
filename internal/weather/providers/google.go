package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// geocoder keeps its API key in a package variable.
var googleKeyMu sync.Mutex

// GoogleGeocoder resolves place names with the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey string

	forward func(geocoder.Address) (geocoder.Location, error)
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey:  apiKey,
		forward: geocoder.Geocoding,
		reverse: geocoder.GeocodingReverse,
	}
}

type geocodeResult struct {
	place weather.Place
	err   error
}

// Geocode resolves name to coordinates, then reverse-geocodes them for the
// formatted address used as the canonical name.
func (g *GoogleGeocoder) Geocode(ctx context.Context, name string) (weather.Place, error) {
	if g.apiKey == "" {
		return weather.Place{}, fmt.Errorf("google geocoding api key is not configured")
	}

	done := make(chan geocodeResult, 1)
	go func() {
		done <- g.lookup(name)
	}()

	select {
	case <-ctx.Done():
		return weather.Place{}, &weather.UpstreamError{Provider: "google", Transport: true, Err: ctx.Err()}
	case res := <-done:
		return res.place, res.err
	}
}

func (g *GoogleGeocoder) lookup(name string) geocodeResult {
	googleKeyMu.Lock()
	geocoder.ApiKey = g.apiKey
	loc, err := g.forward(geocoder.Address{City: name})
	if err != nil {
		googleKeyMu.Unlock()
		if isZeroResults(err) {
			return geocodeResult{err: weather.ErrLocationNotFound}
		}
		return geocodeResult{err: &weather.UpstreamError{Provider: "google", Message: err.Error()}}
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		googleKeyMu.Unlock()
		return geocodeResult{err: weather.ErrLocationNotFound}
	}

	label := name
	addresses, err := g.reverse(loc)
	googleKeyMu.Unlock()
	if err == nil && len(addresses) > 0 {
		if formatted := addresses[0].FormattedAddress; formatted != "" {
			label = formatted
		}
	}

	return geocodeResult{place: weather.Place{Name: label, Lat: loc.Latitude, Lon: loc.Longitude}}
}

func isZeroResults(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "zero_results") || strings.Contains(msg, "no results")
}
