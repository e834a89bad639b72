package autoconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

type Car struct {
	ID           ID                  `json:"id"`
	Brand        string              `json:"brand"`
	Model        string              `json:"model"`
	Type         string              `json:"type"`
	Transmission string              `json:"transmission,omitempty"`
	Capacity     json.Number         `json:"capacity,omitempty"`
	Luggage      json.Number         `json:"luggage,omitempty"`
	Doors        json.Number         `json:"doors,omitempty"`
	Price        decimal.NullDecimal `json:"price"`
	Features     StringList          `json:"features,omitempty"`
	Description  string              `json:"description,omitempty"`

	// Image is base64 SVG/JPEG data or a URL, as stored by the backend.
	Image string `json:"image,omitempty"`
}

// OccupiedRange is one booked span of a car, both ends inclusive.
type OccupiedRange struct {
	StartDate Date `json:"startDate"`
	EndDate   Date `json:"endDate"`
}

func (c Client) ListCars(ctx context.Context) ([]Car, error) {
	var out []Car
	if _, err := c.doJSON(ctx, http.MethodGet, "api/cars", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchCarCatalog returns the browse-page listing, which carries
// descriptions and images.
func (c Client) FetchCarCatalog(ctx context.Context) ([]Car, error) {
	var out []Car
	if _, err := c.doJSON(ctx, http.MethodGet, "api/cars/fetching", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c Client) CarSlider(ctx context.Context) ([]Car, error) {
	var out []Car
	if _, err := c.doJSON(ctx, http.MethodGet, "api/carslider/data-retrieve", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CarRatings maps car id to its average feedback rating.
func (c Client) CarRatings(ctx context.Context) (map[string]float64, error) {
	out := map[string]float64{}
	if _, err := c.doJSON(ctx, http.MethodGet, "api/cars/ratings", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c Client) OccupiedDates(ctx context.Context, carID ID) ([]OccupiedRange, error) {
	var out []OccupiedRange
	if _, err := c.doJSON(ctx, http.MethodGet, "api/occupied-dates/"+url.PathEscape(carID.String()), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
