// Package generate builds test fixtures: fetch a payload, unwrap a zip or
// tar archive, encode it with a named codec, and repeat the encoded output
// until a target byte length is reached. Payloads in other archive formats
// are not unwrapped; they are encoded as they are.
package generate

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mcollard0/nixIndex/internal/codec"
	"github.com/mcollard0/nixIndex/internal/errs"
	"github.com/mcollard0/nixIndex/internal/units"
)

type Options struct {
	// Exactly one of URL or File supplies the payload.
	URL  string
	File string
	// Encoding must name a codec with an encoder.
	Encoding    string
	TargetBytes int64
	// OutPath is the fixture destination; empty picks an OS temp path.
	OutPath string
}

// Run writes the fixture and returns its path and size. Generation is
// deterministic for a given payload and encoding.
func Run(ctx context.Context, log *zap.SugaredLogger, opts Options) (string, int64, error) {
	spec, err := codec.Resolve(opts.Encoding)
	if err != nil {
		return "", 0, err
	}
	if !spec.HasEncoder() {
		return "", 0, errs.Errorf(errs.KindCodecUnsupported, "encoding %q is decode-only; pick one with an encoder", spec.Tag())
	}
	if opts.TargetBytes <= 0 {
		return "", 0, errs.Errorf(errs.KindIO, "target size must be positive")
	}

	payload, err := fetch(ctx, opts)
	if err != nil {
		return "", 0, err
	}
	payload, err = unwrapArchive(ctx, payload)
	if err != nil {
		return "", 0, err
	}

	var encoded bytes.Buffer
	enc, err := spec.NewEncoder(&encoded)
	if err != nil {
		return "", 0, err
	}
	if _, err := enc.Write(payload); err != nil {
		return "", 0, errs.E(errs.KindIO, err)
	}
	if err := enc.Close(); err != nil {
		return "", 0, errs.E(errs.KindIO, err)
	}
	if encoded.Len() == 0 {
		return "", 0, errs.Errorf(errs.KindIO, "payload encoded to zero bytes")
	}

	outPath := opts.OutPath
	if outPath == "" {
		tmp, err := os.CreateTemp("", "nixindex-fixture-*.bin")
		if err != nil {
			return "", 0, errs.E(errs.KindIO, err)
		}
		outPath = tmp.Name()
		_ = tmp.Close()
	}

	written, err := writeRepeated(outPath, encoded.Bytes(), opts.TargetBytes)
	if err != nil {
		return "", 0, err
	}
	log.Infow("fixture generated",
		"path", outPath,
		"payload", units.Bytes(int64(len(payload))),
		"written", units.Bytes(written),
		"encoding", spec.Tag())
	return outPath, written, nil
}

func fetch(ctx context.Context, opts Options) ([]byte, error) {
	switch {
	case opts.URL != "" && opts.File != "":
		return nil, errs.Errorf(errs.KindIO, "give either a url or a file, not both")
	case opts.URL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
		if err != nil {
			return nil, errs.E(errs.KindIO, err)
		}
		client := &http.Client{Timeout: 2 * time.Minute}
		resp, err := client.Do(req)
		if err != nil {
			return nil, errs.E(errs.KindIO, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, errs.Errorf(errs.KindIO, "fetch %s: %s", opts.URL, resp.Status)
		}
		b, err := io.ReadAll(resp.Body)
		return b, errs.E(errs.KindIO, err)
	case opts.File != "":
		b, err := os.ReadFile(opts.File)
		return b, errs.E(errs.KindIO, err)
	default:
		return nil, errs.Errorf(errs.KindIO, "a url or a file is required")
	}
}

// unwrapArchive replaces an archive payload with its first regular member.
// Non-archive payloads pass through untouched.
func unwrapArchive(ctx context.Context, payload []byte) ([]byte, error) {
	tag := ""
	switch {
	case len(payload) >= 4 && bytes.Equal(payload[:4], []byte("PK\x03\x04")):
		tag = "zip"
	case len(payload) >= 262 && bytes.Equal(payload[257:262], []byte("ustar")):
		tag = "tar"
	default:
		return payload, nil
	}
	spec, err := codec.Resolve(tag)
	if err != nil {
		return nil, err
	}
	dec, err := spec.NewDecoder(ctx, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

// writeRepeated writes whole copies of encoded until total >= target, via a
// temp file renamed into place.
func writeRepeated(outPath string, encoded []byte, target int64) (int64, error) {
	tmp := outPath + ".part"
	_ = os.Remove(tmp)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errs.E(errs.KindIO, err)
	}
	var written int64
	for written < target {
		n, err := f.Write(encoded)
		written += int64(n)
		if err != nil {
			_ = f.Close()
			return written, errs.E(errs.KindIO, err)
		}
	}
	if err := f.Close(); err != nil {
		return written, errs.E(errs.KindIO, err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return written, errs.E(errs.KindIO, err)
	}
	return written, nil
}
