package codec

import (
	"context"
	"encoding/ascii85"
	"encoding/base64"
	"encoding/hex"
	"io"

	"golang.org/x/text/transform"
)

// The textual decoders ignore whitespace anywhere in the input. Encoders in
// the wild wrap their output at 64 or 76 columns, so the raw stream is run
// through a whitespace-stripping transformer before the stdlib decoder sees
// it. Invalid trailing groups surface as decode errors from the stdlib layer.

func openBase64(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	return base64.NewDecoder(base64.StdEncoding, stripSpace(r)), nil
}

func encBase64(w io.Writer, _ int) (io.WriteCloser, error) {
	return base64.NewEncoder(base64.StdEncoding, w), nil
}

func openASCII85(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	return ascii85.NewDecoder(stripSpace(r)), nil
}

func encASCII85(w io.Writer, _ int) (io.WriteCloser, error) {
	return ascii85.NewEncoder(w), nil
}

func openHex(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	return hex.NewDecoder(stripSpace(r)), nil
}

func encHex(w io.Writer, _ int) (io.WriteCloser, error) {
	return nopWriteCloser{hex.NewEncoder(w)}, nil
}

func stripSpace(r io.Reader) io.Reader {
	return transform.NewReader(r, dropSpace{})
}

// dropSpace removes ASCII whitespace from the stream.
type dropSpace struct{ transform.NopResetter }

func (dropSpace) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		switch b {
		case ' ', '\t', '\r', '\n', '\v', '\f':
			nSrc++
			continue
		}
		if nDst == len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = b
		nDst++
		nSrc++
	}
	return nDst, nSrc, nil
}
