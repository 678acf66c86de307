package codec

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
)

// Archive decoders emit the bytes of the first regular file in the archive.
// tar streams; zip needs random access to its central directory, so the whole
// encoded input is buffered and the codec is declared non-streaming.

func openTar(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("tar archive has no regular file")
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeReg {
			return tr, nil
		}
	}
}

func openZip(_ context.Context, r io.Reader, _ int) (io.Reader, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Mode().IsRegular() {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("zip archive has no regular file")
}

// Archive encoders wrap the payload as a single member named "payload".
// Member size must be known before the header is written, so writes are
// buffered until Close.

func encTar(w io.Writer, _ int) (io.WriteCloser, error) {
	return &bufArchive{w: w, finish: finishTar}, nil
}

func encZip(w io.Writer, _ int) (io.WriteCloser, error) {
	return &bufArchive{w: w, finish: finishZip}, nil
}

type bufArchive struct {
	w      io.Writer
	buf    bytes.Buffer
	finish func(w io.Writer, payload []byte) error
	closed bool
}

func (a *bufArchive) Write(p []byte) (int, error) { return a.buf.Write(p) }

func (a *bufArchive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.finish(a.w, a.buf.Bytes())
}

func finishTar(w io.Writer, payload []byte) error {
	tw := tar.NewWriter(w)
	hdr := &tar.Header{Name: "payload", Mode: 0o644, Size: int64(len(payload))}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(payload); err != nil {
		return err
	}
	return tw.Close()
}

func finishZip(w io.Writer, payload []byte) error {
	zw := zip.NewWriter(w)
	f, err := zw.Create("payload")
	if err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		return err
	}
	return zw.Close()
}
