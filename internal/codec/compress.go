package codec

import (
	"context"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/cosnicolaou/pbzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/xi2/xz"
)

func openGzip(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	// A source may be several concatenated members; gzip handles that by
	// default. Keep reading across member boundaries.
	zr.Multistream(true)
	return zr, nil
}

func encGzip(w io.Writer, _ int) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func openZlib(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	return zlib.NewReader(r)
}

func encZlib(w io.Writer, _ int) (io.WriteCloser, error) {
	return zlib.NewWriter(w), nil
}

func openBzip2(ctx context.Context, r io.Reader, _ int) (io.Reader, error) {
	return pbzip2.NewReader(ctx, r), nil
}

func openBrotli(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	return brotli.NewReader(r), nil
}

func encBrotli(w io.Writer, _ int) (io.WriteCloser, error) {
	return brotli.NewWriter(w), nil
}

func openZstd(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

func encZstd(w io.Writer, _ int) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func openLZ4(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	return lz4.NewReader(r), nil
}

func encLZ4(w io.Writer, _ int) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func openS2(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	return s2.NewReader(r), nil
}

func encS2(w io.Writer, _ int) (io.WriteCloser, error) {
	return s2.NewWriter(w), nil
}

func openXz(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	return xz.NewReader(r, 0)
}
