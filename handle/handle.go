// Package handle defines the opaque references to remote entities that the
// wait and retry primitives operate on.
//
// Handles are created by the driver layer (a browser session, an HTTP
// client). The core never constructs or destroys them; it only evaluates
// conditions against them and classifies their validity.
package handle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Handle is an opaque reference to a remote entity such as a UI element or an
// HTTP session resource.
type Handle interface {
	// ID is the stable identity of the reference itself. Two Handle values with
	// the same ID refer to the same logical entity.
	ID() string

	// Description is a human-readable label used in errors and reports,
	// e.g. `button#submit` or `GET /policies/42`.
	Description() string
}

// Generation identifies the version of the remote entity behind a Handle.
// It changes whenever the entity is replaced (for example a DOM re-render).
type Generation string

// Unknown is the zero Generation.
const Unknown Generation = ""

// GenerationSource reports the current generation of a handle. It is
// implemented by the driver layer.
type GenerationSource interface {
	CurrentGeneration(ctx context.Context, h Handle) (Generation, error)
}

// GenerationFunc adapts a function to GenerationSource.
type GenerationFunc func(ctx context.Context, h Handle) (Generation, error)

func (f GenerationFunc) CurrentGeneration(ctx context.Context, h Handle) (Generation, error) {
	return f(ctx, h)
}

// NewGeneration returns a fresh random generation token. Drivers that do not
// have a natural version marker can mint one per remote replacement.
func NewGeneration() Generation {
	return Generation(uuid.NewString())
}

// Describe returns h's description, tolerating nil handles.
func Describe(h Handle) string {
	if h == nil {
		return "<nil handle>"
	}
	if d := h.Description(); d != "" {
		return d
	}
	return h.ID()
}

// Ref is a minimal Handle implementation for drivers that only need an
// identity and a label.
type Ref struct {
	Key   string
	Label string
}

// NewRef returns a Ref with a random identity.
func NewRef(label string) Ref {
	return Ref{Key: uuid.NewString(), Label: label}
}

func (r Ref) ID() string          { return r.Key }
func (r Ref) Description() string { return r.Label }

func (r Ref) String() string {
	return fmt.Sprintf("%s(%s)", r.Label, r.Key)
}

// Rect is the on-screen geometry of a rendered element, used by layout
// stability checks.
type Rect struct {
	X, Y          int
	Width, Height int
}
