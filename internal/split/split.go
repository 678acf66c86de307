// Package split turns a decoded byte stream into records delimited by a
// literal byte string or a regular expression. Offsets are measured in the
// decoded coordinate space, so they stay valid across re-decodes.
package split

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/mcollard0/nixIndex/internal/errs"
)

// RegexMarker prefixes a separator spec that should be compiled as a regular
// expression instead of taken literally.
const RegexMarker = "re:"

type Separator struct {
	lit []byte
	re  *regexp.Regexp
}

// Parse compiles a separator spec. Specs starting with "re:" are regular
// expressions; everything else is a literal with standard backslash escapes
// (\n, \t, \r, \0, \\, \xNN). Compile failures abort import at startup.
func Parse(spec string) (Separator, error) {
	if strings.HasPrefix(spec, RegexMarker) {
		pat := spec[len(RegexMarker):]
		re, err := regexp.Compile(pat)
		if err != nil {
			return Separator{}, errs.E(errs.KindSeparatorCompile, err)
		}
		if re.MatchString("") {
			return Separator{}, errs.Errorf(errs.KindSeparatorCompile, "separator pattern %q matches the empty string", pat)
		}
		return Separator{re: re}, nil
	}
	lit, err := unescape(spec)
	if err != nil {
		return Separator{}, errs.E(errs.KindSeparatorCompile, err)
	}
	if len(lit) == 0 {
		return Separator{}, errs.Errorf(errs.KindSeparatorCompile, "empty separator")
	}
	return Separator{lit: lit}, nil
}

func unescape(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i == len(s) {
			return nil, fmt.Errorf("trailing backslash in separator")
		}
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		case '\\':
			out = append(out, '\\')
		case 'x':
			if i+2 >= len(s) {
				return nil, fmt.Errorf("short \\x escape in separator")
			}
			hi, ok1 := hexVal(s[i+1])
			lo, ok2 := hexVal(s[i+2])
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("bad \\x escape %q in separator", s[i:i+3])
			}
			out = append(out, hi<<4|lo)
			i += 2
		default:
			return nil, fmt.Errorf("unknown escape \\%c in separator", s[i])
		}
	}
	return out, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Record is the half-open byte range [Start, End) in decoded coordinates.
// Bytes aliases the splitter's buffer and stays valid until the next call to
// Next; copy if you need to hold it longer.
type Record struct {
	Index int64
	Start int64
	End   int64
	Bytes []byte
}

type Splitter struct {
	r       io.Reader
	sep     Separator
	chunk   []byte
	buf     []byte
	base    int64 // decoded offset of buf[0]
	index   int64
	scanPos int // literal fast path: buf is separator-free before this point
	eof     bool
}

// New reads decoded bytes from r in chunkSize chunks. The buffer holds at
// most one in-flight record plus one read chunk.
func New(r io.Reader, sep Separator, chunkSize int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &Splitter{r: r, sep: sep, chunk: make([]byte, chunkSize)}
}

// Next returns the next record, or io.EOF after the final one. A trailing
// partial record with no terminal separator is emitted provided it is
// non-empty. Adjacent separators yield records with Start == End.
func (s *Splitter) Next() (Record, error) {
	for {
		if i, j, ok := s.match(); ok {
			rec := Record{Index: s.index, Start: s.base, End: s.base + int64(i), Bytes: s.buf[:i]}
			s.index++
			s.buf = s.buf[j:]
			s.base += int64(j)
			s.scanPos = 0
			return rec, nil
		}
		if s.eof {
			if len(s.buf) == 0 {
				return Record{}, io.EOF
			}
			rec := Record{Index: s.index, Start: s.base, End: s.base + int64(len(s.buf)), Bytes: s.buf}
			s.index++
			s.base += int64(len(s.buf))
			s.buf = nil
			s.scanPos = 0
			return rec, nil
		}
		if err := s.fill(); err != nil {
			return Record{}, err
		}
	}
}

// match locates the next separator in the buffer. A regex match that touches
// the end of the buffer is not accepted until EOF, because further input
// could extend it across the chunk boundary.
func (s *Splitter) match() (start, end int, ok bool) {
	if s.sep.re != nil {
		loc := s.sep.re.FindIndex(s.buf)
		if loc == nil {
			return 0, 0, false
		}
		if loc[1] == len(s.buf) && !s.eof {
			return 0, 0, false
		}
		return loc[0], loc[1], true
	}
	i := bytes.Index(s.buf[s.scanPos:], s.sep.lit)
	if i < 0 {
		// keep a look-behind of len(lit)-1 bytes unscanned
		if n := len(s.buf) - len(s.sep.lit) + 1; n > s.scanPos {
			s.scanPos = n
		}
		return 0, 0, false
	}
	i += s.scanPos
	return i, i + len(s.sep.lit), true
}

func (s *Splitter) fill() error {
	n, err := s.r.Read(s.chunk)
	if n > 0 {
		s.buf = append(s.buf, s.chunk[:n]...)
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	return err
}
