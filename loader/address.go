package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/pagesim/mem/vm"
)

// ErrMalformedLine is returned for lines that cannot be parsed.
var ErrMalformedLine = errors.New("malformed line")

// Format is the base in which a number is written.
type Format string

// The supported formats.
const (
	FormatHex Format = "hex"
	FormatDec Format = "dec"
	FormatBin Format = "bin"
)

// Base returns the numeric base of the format.
func (f Format) Base() int {
	switch f {
	case FormatDec:
		return 10
	case FormatBin:
		return 2
	default:
		return 16
	}
}

func (f Format) prefix() string {
	switch f {
	case FormatHex:
		return "0x"
	case FormatBin:
		return "0b"
	default:
		return ""
	}
}

// ParseFormat converts "hex", "dec" or "bin", in any case, to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))

	switch f {
	case FormatHex, FormatDec, FormatBin:
		return f, nil
	}

	return "", fmt.Errorf("%w: unknown format %q", ErrMalformedLine, s)
}

// ParseAddress parses a number written in the given format. A 0x or 0b
// prefix matching the format is accepted. Negative values and values that do
// not fit in 64 bits are out of range.
func ParseAddress(text string, format Format) (uint64, error) {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: negative address %s",
			vm.ErrAddressOutOfRange, text)
	}

	s = strings.TrimPrefix(s, "+")
	if p := format.prefix(); p != "" && len(s) > len(p) &&
		strings.EqualFold(s[:len(p)], p) {
		s = s[len(p):]
	}

	value, err := strconv.ParseUint(s, format.Base(), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s", vm.ErrAddressOutOfRange, text)
		}

		return 0, fmt.Errorf("%w: %q is not a %s number",
			ErrMalformedLine, text, format)
	}

	return value, nil
}

// An AddressLine is one parsed line of an address list.
type AddressLine struct {
	Text   string
	Format Format
	Value  uint64
}

// ParseAddressLine parses lines of the form "<value> <hex|dec|bin>".
func ParseAddressLine(line string) (AddressLine, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return AddressLine{}, fmt.Errorf(
			"%w: expected \"<address> <hex|dec|bin>\", got %q",
			ErrMalformedLine, line)
	}

	format, err := ParseFormat(fields[1])
	if err != nil {
		return AddressLine{}, err
	}

	value, err := ParseAddress(fields[0], format)
	if err != nil {
		return AddressLine{}, err
	}

	return AddressLine{Text: fields[0], Format: format, Value: value}, nil
}

// A LineError reports a line of an address list that could not be parsed.
// Reading can continue after a LineError.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// An AddressScanner reads address lines one at a time. Blank lines and lines
// starting with # are skipped. "exit" and "quit" end the list.
type AddressScanner struct {
	scanner *bufio.Scanner
	line    int
	done    bool
}

// NewAddressScanner creates an AddressScanner reading from r.
func NewAddressScanner(r io.Reader) *AddressScanner {
	return &AddressScanner{scanner: bufio.NewScanner(r)}
}

// Next returns the next address. It returns io.EOF at the end of the list
// and a *LineError for lines that cannot be parsed.
func (s *AddressScanner) Next() (AddressLine, error) {
	for !s.done && s.scanner.Scan() {
		s.line++

		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if isQuit(text) {
			s.done = true
			break
		}

		addr, err := ParseAddressLine(text)
		if err != nil {
			return AddressLine{}, &LineError{Line: s.line, Text: text, Err: err}
		}

		return addr, nil
	}

	if err := s.scanner.Err(); err != nil {
		return AddressLine{}, err
	}

	return AddressLine{}, io.EOF
}

func isQuit(text string) bool {
	switch strings.ToLower(text) {
	case "exit", "quit":
		return true
	}

	return false
}
