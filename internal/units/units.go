// Package units parses the operator-facing chunk-size syntax and formats
// byte counts for summaries.
package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize parses an integer with an optional K/KB, M/MB, G/GB suffix
// (case-insensitive). A bare integer means kibibytes. Any other suffix is
// rejected.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	var mult int64
	switch strings.ToUpper(strings.TrimSpace(s[i:])) {
	case "", "K", "KB":
		mult = 1 << 10
	case "M", "MB":
		mult = 1 << 20
	case "G", "GB":
		mult = 1 << 30
	default:
		return 0, fmt.Errorf("invalid size suffix %q", s[i:])
	}
	return n * mult, nil
}

// Bytes renders a byte count in IEC form ("1.5 MiB") for log lines and
// summary output.
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
