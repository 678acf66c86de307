package codec

import (
	"context"
	"io"

	"golang.org/x/text/transform"
)

// rot and caesar rotate ASCII letters and leave every other byte untouched.
// Encoding with shift N rotates right by N; decoding rotates left by the
// same amount, so caesar:-N decodes text that was rotated left.

func openRotate(_ context.Context, r io.Reader, shift int) (io.Reader, error) {
	return transform.NewReader(r, rotate{shift: -shift}), nil
}

func encRotate(w io.Writer, shift int) (io.WriteCloser, error) {
	return transform.NewWriter(w, rotate{shift: shift}), nil
}

type rotate struct {
	transform.NopResetter
	shift int
}

func (t rotate) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
		err = transform.ErrShortDst
	}
	for i := 0; i < n; i++ {
		dst[i] = rotByte(src[i], t.shift)
	}
	return n, n, err
}

func rotByte(b byte, shift int) byte {
	s := shift % 26
	if s < 0 {
		s += 26
	}
	switch {
	case b >= 'a' && b <= 'z':
		return 'a' + (b-'a'+byte(s))%26
	case b >= 'A' && b <= 'Z':
		return 'A' + (b-'A'+byte(s))%26
	default:
		return b
	}
}
