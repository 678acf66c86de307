package catalog

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/mcollard0/nixIndex/internal/errs"
)

const fingerprintWindow = 64 << 10

// Fingerprint hashes the first 64 KiB of the file plus its size. It is cheap
// enough to run on every search open and catches the common failure of the
// source file being replaced after import, which would silently invalidate
// every recorded offset.
func Fingerprint(path string) (sum uint64, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errs.E(errs.KindIO, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return 0, 0, errs.E(errs.KindIO, err)
	}
	h := xxhash.New()
	if _, err := io.Copy(h, io.LimitReader(f, fingerprintWindow)); err != nil {
		return 0, 0, errs.E(errs.KindIO, err)
	}
	var tail [8]byte
	putUint64(tail[:], uint64(st.Size()))
	_, _ = h.Write(tail[:])
	return h.Sum64(), st.Size(), nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
