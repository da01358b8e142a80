// Package geodistance implements the distance provider over public
// OSM services: Nominatim for geocoding and OSRM for routing.
package geodistance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"restaurant-checkout/internal/geo"
	"restaurant-checkout/internal/logger"
)

// Provider is an HTTP-backed geo.DistanceProvider.
type Provider struct {
	client      *http.Client
	geocoderURL string
	routerURL   string
	logger      *logger.Logger
}

// NewProvider creates a provider against the given service base URLs.
func NewProvider(geocoderURL, routerURL string, timeout time.Duration, log *logger.Logger) *Provider {
	return &Provider{
		client:      &http.Client{Timeout: timeout},
		geocoderURL: geocoderURL,
		routerURL:   routerURL,
		logger:      log,
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves free-form address text to coordinates. An empty
// result set means the address is unknown, reported as nil, nil.
func (p *Provider) Geocode(ctx context.Context, addressText string) (*geo.Coordinates, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&limit=1",
		p.geocoderURL, url.QueryEscape(addressText))

	var results []nominatimResult
	if err := p.getJSON(ctx, endpoint, &results); err != nil {
		return nil, fmt.Errorf("geocoder request failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoder returned invalid latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoder returned invalid longitude %q: %w", results[0].Lon, err)
	}
	return &geo.Coordinates{Latitude: lat, Longitude: lon}, nil
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

// DistanceKm measures the road distance between two points. A route the
// router cannot build is reported as nil, nil.
func (p *Provider) DistanceKm(ctx context.Context, origin, dest geo.Coordinates, mode geo.TravelMode) (*float64, error) {
	endpoint := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		p.routerURL, mode,
		origin.Longitude, origin.Latitude,
		dest.Longitude, dest.Latitude)

	var response osrmResponse
	if err := p.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("router request failed: %w", err)
	}
	if response.Code != "Ok" || len(response.Routes) == 0 {
		p.logger.Warn("route_not_found", "Router returned no route", "",
			map[string]interface{}{
				"code":   response.Code,
				"origin": origin.String(),
				"dest":   dest.String(),
			})
		return nil, nil
	}

	km := response.Routes[0].Distance / 1000.0
	return &km, nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "restaurant-checkout/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
