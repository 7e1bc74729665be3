// Package decoder turns fetched bytes into render-ready values. Dispatch is
// purely on the resource kind; decoders have no side effects.
package decoder

import (
	"errors"
	"fmt"

	"assetload/pkg/common"
	"assetload/pkg/downloader"
)

var (
	ErrMalformedImage  = errors.New("malformed image")
	ErrMalformedAudio  = errors.New("malformed audio")
	ErrEncoding        = errors.New("text encoding error")
	ErrUnsupportedKind = errors.New("no decoder for kind")
)

// DecodeError wraps a decode failure. It matches one of the sentinel errors
// above and the underlying cause.
type DecodeError struct {
	Kind    common.Kind
	Locator string
	Err     error
	Cause   error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode %s %s: %v: %v", e.Kind, e.Locator, e.Err, e.Cause)
	}
	return fmt.Sprintf("decode %s %s: %v", e.Kind, e.Locator, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Decoder converts a fetch result into a value of the given kind.
type Decoder interface {
	Decode(raw *downloader.Raw, kind common.Kind) (common.Value, error)
}

// options holds configuration for the default decoder.
type options struct {
	stripHTML bool
}

// Option is a functional option for configuring the default decoder.
type Option func(*options)

// WithStripHTML makes text/html documents decode to their visible text.
func WithStripHTML(strip bool) Option {
	return func(o *options) {
		o.stripHTML = strip
	}
}

// Immutable
type decoder struct {
	opts options
}

// New returns the default decoder.
func New(opts ...Option) Decoder {
	d := &decoder{}
	for _, opt := range opts {
		opt(&d.opts)
	}
	return d
}

func (d *decoder) Decode(raw *downloader.Raw, kind common.Kind) (common.Value, error) {
	var (
		v   common.Value
		err error
	)
	switch kind {
	case common.KindImage:
		v, err = decodeImage(raw.Data)
		if err != nil {
			return common.Value{}, &DecodeError{Kind: kind, Locator: raw.Locator, Err: ErrMalformedImage, Cause: err}
		}
	case common.KindAudio:
		v, err = decodeAudio(raw.Data)
		if err != nil {
			return common.Value{}, &DecodeError{Kind: kind, Locator: raw.Locator, Err: ErrMalformedAudio, Cause: err}
		}
	case common.KindText:
		v, err = decodeText(raw.Data, raw.ContentType, d.opts.stripHTML)
		if err != nil {
			return common.Value{}, &DecodeError{Kind: kind, Locator: raw.Locator, Err: ErrEncoding, Cause: err}
		}
	default:
		return common.Value{}, &DecodeError{Kind: kind, Locator: raw.Locator, Err: ErrUnsupportedKind}
	}
	return v, nil
}
