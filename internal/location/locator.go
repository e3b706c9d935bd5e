package location

import (
	"context"

	"driverhub/internal/model"
)

// Locator answers "where is the device right now". Implementations are
// expected to honor ctx deadlines; the reporter never blocks past its
// configured timeout and substitutes the fallback coordinate instead.
type Locator interface {
	Locate(ctx context.Context) (model.GeoPoint, error)
}

// Fixed always reports the same point. Used as the device stand-in when no
// positioning source is available.
type Fixed struct {
	Point model.GeoPoint
}

func (f Fixed) Locate(ctx context.Context) (model.GeoPoint, error) {
	return f.Point, nil
}

// Func adapts a function to the Locator interface.
type Func func(ctx context.Context) (model.GeoPoint, error)

func (f Func) Locate(ctx context.Context) (model.GeoPoint, error) { return f(ctx) }
