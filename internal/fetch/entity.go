package fetch

import (
	"context"
	"fmt"
)

// Entity is one record of the remote collection.
type Entity struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Height   int    `json:"height"` // decimetres
	Weight   int    `json:"weight"` // hectograms
	ImageRef string `json:"image_ref,omitempty"`
}

// HasImage reports whether the remote record carried an image reference.
func (e Entity) HasImage() bool { return e.ImageRef != "" }

// HeightMetres converts the remote decimetre value.
func (e Entity) HeightMetres() float64 { return float64(e.Height) / 10 }

// WeightKilograms converts the remote hectogram value.
func (e Entity) WeightKilograms() float64 { return float64(e.Weight) / 10 }

func (e Entity) String() string { return fmt.Sprintf("#%d %s", e.ID, e.Name) }

// Fetcher retrieves a single entity by id. Implementations return an
// *Error for every failure.
type Fetcher interface {
	Fetch(ctx context.Context, id int) (Entity, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id int) (Entity, error)

func (f FetcherFunc) Fetch(ctx context.Context, id int) (Entity, error) { return f(ctx, id) }
