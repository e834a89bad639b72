// Package fleet serves the car listings and per-car availability views the
// date pickers use.
package fleet

import (
	"context"
	"strings"
	"time"

	"autoconnect/internal/apperr"
	"autoconnect/internal/availability"
	"autoconnect/internal/booking"
	"autoconnect/pkg/autoconnect"
)

type Backend interface {
	ListCars(ctx context.Context) ([]autoconnect.Car, error)
	FetchCarCatalog(ctx context.Context) ([]autoconnect.Car, error)
	CarSlider(ctx context.Context) ([]autoconnect.Car, error)
	CarRatings(ctx context.Context) (map[string]float64, error)
	OccupiedDates(ctx context.Context, carID autoconnect.ID) ([]autoconnect.OccupiedRange, error)
}

// RatedCar is a car with its average feedback rating (0 when unrated).
type RatedCar struct {
	autoconnect.Car
	Rating float64 `json:"rating"`
}

type Service struct {
	backend Backend
	Now     func() time.Time
}

func NewService(backend Backend) *Service {
	return &Service{backend: backend, Now: time.Now}
}

func (s *Service) today() time.Time {
	return availability.Day(s.Now().In(autoconnect.DayZone))
}

func (s *Service) Cars(ctx context.Context) ([]autoconnect.Car, error) {
	cars, err := s.backend.ListCars(ctx)
	if err != nil {
		return nil, apperr.FromBackend(err, "load cars")
	}
	return nonNil(cars), nil
}

func (s *Service) Catalog(ctx context.Context) ([]autoconnect.Car, error) {
	cars, err := s.backend.FetchCarCatalog(ctx)
	if err != nil {
		return nil, apperr.FromBackend(err, "load car catalog")
	}
	return nonNil(cars), nil
}

// Featured returns the slider cars with their ratings. Missing ratings are
// not an error; the cars are shown unrated.
func (s *Service) Featured(ctx context.Context) ([]RatedCar, error) {
	cars, err := s.backend.CarSlider(ctx)
	if err != nil {
		return nil, apperr.FromBackend(err, "load featured cars")
	}
	ratings, err := s.backend.CarRatings(ctx)
	if err != nil {
		ratings = nil
	}
	out := make([]RatedCar, 0, len(cars))
	for _, c := range cars {
		out = append(out, RatedCar{Car: c, Rating: ratings[c.ID.String()]})
	}
	return out, nil
}

func (s *Service) Occupied(ctx context.Context, carID string) (availability.OccupiedSet, error) {
	if strings.TrimSpace(carID) == "" {
		return nil, apperr.Validation("VALIDATION_FAILED", "missing car id")
	}
	ranges, err := s.backend.OccupiedDates(ctx, autoconnect.ID(carID))
	if err != nil {
		return nil, apperr.FromBackend(err, "load occupied dates")
	}
	return booking.OccupiedFromWire(ranges), nil
}

// Calendar lays out month for carID. exempt, when set, is the caller's own
// booking period, which never shows as blocked.
func (s *Service) Calendar(ctx context.Context, carID string, month time.Time, exempt *availability.Interval) ([]availability.CalendarDay, error) {
	occ, err := s.Occupied(ctx, carID)
	if err != nil {
		return nil, err
	}
	return availability.Calendar(occ, month, s.today(), exempt), nil
}

// Nearest returns the first free day for carID on or after from. A zero
// from, or one in the past, starts today.
func (s *Service) Nearest(ctx context.Context, carID string, from time.Time, exempt *availability.Interval) (time.Time, error) {
	occ, err := s.Occupied(ctx, carID)
	if err != nil {
		return time.Time{}, err
	}
	start := s.today()
	if !from.IsZero() && availability.Day(from).After(start) {
		start = availability.Day(from)
	}
	d, ok := availability.NearestAvailableDate(occ, start, availability.DefaultHorizonDays, exempt)
	if !ok {
		return time.Time{}, apperr.Conflict("NO_AVAILABILITY", "the selected car has no free dates in the next year", nil)
	}
	return d, nil
}

func nonNil(cars []autoconnect.Car) []autoconnect.Car {
	if cars == nil {
		return []autoconnect.Car{}
	}
	return cars
}
