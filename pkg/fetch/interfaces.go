//go:generate mockgen -destination=mocks/fetch.go . Opener
package fetch

import (
	"context"
	"io"
	"net/url"
)

// Opener opens a location for reading.
//
// A missing resource is not an error: Open returns ok == false and a nil error.
// A non-nil error means the transfer itself failed and wraps errors.ErrTransfer
// (or errors.ErrUnsupported for schemes the opener cannot serve).
type Opener interface {
	Open(ctx context.Context, u *url.URL) (rc io.ReadCloser, ok bool, err error)
}
