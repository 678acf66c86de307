// Package codec resolves encoding tags to streaming decoders. Each decoder
// exposes the number of decoded bytes emitted so far, which is what makes
// record offsets stable across re-decodes of the same source.
package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/mcollard0/nixIndex/internal/errs"
)

// Decoder is a decoded byte stream. Pos reports how many decoded bytes have
// been emitted; it is cheap and may be called between any two reads.
type Decoder interface {
	io.ReadCloser
	Pos() int64
}

// Spec is a resolved encoding tag. The zero value is not usable; obtain one
// from Resolve.
type Spec struct {
	name  string
	shift int
	k     kind
}

type kind struct {
	streaming  bool
	takesShift bool
	minShift   int
	maxShift   int
	open       func(ctx context.Context, r io.Reader, shift int) (io.Reader, error)
	enc        func(w io.Writer, shift int) (io.WriteCloser, error)
}

var kinds = map[string]kind{
	"none": {
		streaming: true,
		open:      func(_ context.Context, r io.Reader, _ int) (io.Reader, error) { return r, nil },
		enc:       func(w io.Writer, _ int) (io.WriteCloser, error) { return nopWriteCloser{w}, nil },
	},

	"gzip":   {streaming: true, open: openGzip, enc: encGzip},
	"zlib":   {streaming: true, open: openZlib, enc: encZlib},
	"bzip2":  {streaming: true, open: openBzip2},
	"brotli": {streaming: true, open: openBrotli, enc: encBrotli},
	"zstd":   {streaming: true, open: openZstd, enc: encZstd},
	"lz4":    {streaming: true, open: openLZ4, enc: encLZ4},
	"s2":     {streaming: true, open: openS2, enc: encS2},
	"xz":     {streaming: true, open: openXz},

	"base64":  {streaming: true, open: openBase64, enc: encBase64},
	"ascii85": {streaming: true, open: openASCII85, enc: encASCII85},
	"hex":     {streaming: true, open: openHex, enc: encHex},

	"rot":    {streaming: true, takesShift: true, minShift: 0, maxShift: 25, open: openRotate, enc: encRotate},
	"caesar": {streaming: true, takesShift: true, minShift: -24, maxShift: 24, open: openRotate, enc: encRotate},

	"uuencode": {streaming: true, open: openUU},
	"xxencode": {streaming: true, open: openXX},

	"zip": {streaming: false, open: openZip, enc: encZip},
	"tar": {streaming: true, open: openTar, enc: encTar},
}

const defaultRotShift = 13

// Resolve parses an encoding tag ("gzip", "caesar:3", "rot") into a Spec.
// Unknown tags and out-of-range shifts fail with a CodecUnsupported error.
func Resolve(tag string) (Spec, error) {
	name := strings.ToLower(strings.TrimSpace(tag))
	arg := ""
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name, arg = name[:i], name[i+1:]
	}
	k, ok := kinds[name]
	if !ok {
		return Spec{}, errs.Errorf(errs.KindCodecUnsupported, "unknown encoding %q", tag)
	}
	s := Spec{name: name, k: k}
	if !k.takesShift {
		if arg != "" {
			return Spec{}, errs.Errorf(errs.KindCodecUnsupported, "encoding %q takes no parameter", name)
		}
		return s, nil
	}
	switch {
	case arg == "" && name == "rot":
		s.shift = defaultRotShift
	case arg == "":
		return Spec{}, errs.Errorf(errs.KindCodecUnsupported, "encoding %q requires a shift, e.g. %s:3", name, name)
	default:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Spec{}, errs.Errorf(errs.KindCodecUnsupported, "invalid shift %q for encoding %q", arg, name)
		}
		if n < k.minShift || n > k.maxShift {
			return Spec{}, errs.Errorf(errs.KindCodecUnsupported, "shift %d out of range [%d, %d] for encoding %q", n, k.minShift, k.maxShift, name)
		}
		s.shift = n
	}
	return s, nil
}

// Tag returns the normalized tag, suitable for persisting in the catalog and
// re-resolving at search time.
func (s Spec) Tag() string {
	if s.k.takesShift {
		return fmt.Sprintf("%s:%d", s.name, s.shift)
	}
	return s.name
}

// Streaming reports whether the decoder emits output without buffering the
// whole input. Callers must consult this before choosing a search strategy:
// a non-streaming codec holds the entire decoded stream in memory.
func (s Spec) Streaming() bool { return s.k.streaming }

// NewDecoder wraps r in the decoder for this encoding. The returned Decoder
// counts decoded bytes from zero.
func (s Spec) NewDecoder(ctx context.Context, r io.Reader) (Decoder, error) {
	inner, err := s.k.open(ctx, r, s.shift)
	if err != nil {
		return nil, errs.At(errs.KindDecode, 0, err)
	}
	return newCounting(inner), nil
}

// HasEncoder reports whether the encoding supports the encode direction
// (used by the fixture generator; several legacy decoders are decode-only).
func (s Spec) HasEncoder() bool { return s.k.enc != nil }

// NewEncoder returns a writer that encodes into w. Close flushes any
// buffered frames.
func (s Spec) NewEncoder(w io.Writer) (io.WriteCloser, error) {
	if s.k.enc == nil {
		return nil, errs.Errorf(errs.KindCodecUnsupported, "encoding %q has no encoder", s.name)
	}
	return s.k.enc(w, s.shift)
}

// counting wraps the raw decoder output with position tracking and error
// classification. Reads past the error boundary keep returning the same
// error; partial output before it remains observable.
type counting struct {
	r io.Reader
	n int64
}

func newCounting(r io.Reader) *counting { return &counting{r: r} }

func (c *counting) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF {
		err = classify(c.n, err)
	}
	return n, err
}

func (c *counting) Pos() int64 { return c.n }

func (c *counting) Close() error {
	if cl, ok := c.r.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func classify(pos int64, err error) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return errs.At(errs.KindIO, pos, err)
	}
	return errs.At(errs.KindDecode, pos, err)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
