// Package capture acquires images and PDF documents for analysis.
//
// A Provider turns a user's selection into a Handle: a validated copy of the
// content in the cache directory. The entitlement gate never looks inside a
// Handle; it only forwards it to the analyzer.
package capture

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/hpungsan/atlas/internal/errors"
)

// Kind is the type of content a capture action acquires.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// ErrCancelled is returned when the user backs out of a capture.
// It is an expected outcome, not a failure.
var ErrCancelled = stderrors.New("capture cancelled")

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindImage:
		return KindImage, nil
	case KindDocument:
		return KindDocument, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("kind must be one of: image, document (got %q)", s))
}

// Label is the human-facing description of the content type.
func (k Kind) Label() string {
	if k == KindDocument {
		return "PDF Document"
	}
	return "Image"
}

// Handle is an acquired piece of content.
type Handle struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name,omitempty"`
	MediaType   string `json:"media_type"`
	Size        int64  `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// Provider supplies content of the requested kind.
// Implementations return ErrCancelled (possibly wrapped) when the user backs out.
type Provider interface {
	Capture(ctx context.Context, kind Kind) (*Handle, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, kind Kind) (*Handle, error)

// Capture implements Provider.
func (f ProviderFunc) Capture(ctx context.Context, kind Kind) (*Handle, error) {
	return f(ctx, kind)
}

// Selection is what the user picked: a name and the content bytes.
type Selection struct {
	Name string
	Body io.ReadCloser
}

// Picker asks the user for content. It stands in for the platform image or
// document picker.
type Picker interface {
	Pick(ctx context.Context, kind Kind) (*Selection, error)
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(ctx context.Context, kind Kind) (*Selection, error)

// Pick implements Picker.
func (f PickerFunc) Pick(ctx context.Context, kind Kind) (*Selection, error) {
	return f(ctx, kind)
}

// IsCancelled reports whether err means the user backed out, including
// context cancellation.
func IsCancelled(err error) bool {
	return stderrors.Is(err, ErrCancelled) || stderrors.Is(err, context.Canceled)
}
