package whitelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrMalformedLine is wrapped by every ParseWarning
	ErrMalformedLine = errors.New("malformed whitelist line")
	// ErrNotLoaded is returned when a whitelist file could not be opened
	ErrNotLoaded = errors.New("whitelist not loaded")
)

const (
	// OptionalSuffix marks whitelist files whose absence is not worth a warning
	OptionalSuffix = ".local"
	// MaxLineLength bounds a single whitelist line
	MaxLineLength       = 64 * 1024
	warningPrefixLength = 64
)

var (
	dottedQuad  = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(/\d{1,2})?$`)
	partialIPv4 = regexp.MustCompile(`^\d{1,3}\.\d{1,3}(\.\d{1,3})?$`)
	ipv6Token   = regexp.MustCompile(`^[^/\s]*:[^/\s]*(/\d{1,3})?$`)
)

// ParseWarning reports a line that could not be classified. It is never fatal.
type ParseWarning struct {
	Line int
	Text string
}

func (w ParseWarning) Error() string {
	return fmt.Sprintf("line %d: %q", w.Line, w.Text)
}

func (w ParseWarning) Unwrap() error {
	return ErrMalformedLine
}

// Parse reads a whitelist, one entry per line. Blank lines and lines starting with '#'
// are ignored. Entries that look like an address or pattern but fail to convert are
// dropped silently; lines that fit no entry form, or are longer than MaxLineLength, are
// reported as warnings and skipped.
func Parse(r io.Reader) (*Set, []ParseWarning, error) {
	set := &Set{}
	var warnings []ParseWarning

	reader := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, tooLong, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, warnings, fmt.Errorf("failed to read whitelist: %w", err)
		}
		lineNo++

		if tooLong {
			warnings = append(warnings, ParseWarning{Line: lineNo, Text: raw + "..."})
			continue
		}

		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, ok, err := parseLine(line)
		if err != nil {
			warnings = append(warnings, ParseWarning{Line: lineNo, Text: line})
			continue
		}
		if ok {
			set.add(entry)
		}
	}

	return set, warnings, nil
}

// readLine returns the next line without its terminator. A line longer than
// MaxLineLength is consumed in full but only its first warningPrefixLength bytes are
// returned, with tooLong set.
func readLine(r *bufio.Reader) (string, bool, error) {
	var buf []byte
	length := 0
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if length > 0 && errors.Is(err, io.EOF) {
				break
			}
			return "", false, err
		}
		length += len(chunk)
		if len(buf) <= MaxLineLength {
			buf = append(buf, chunk...)
		}
		if !isPrefix {
			break
		}
	}

	if length > MaxLineLength {
		return string(buf[:warningPrefixLength]), true, nil
	}
	return string(buf), false, nil
}

// parseLine classifies a trimmed, non-comment line. ok is false when the line had a
// recognised form but did not convert.
func parseLine(line string) (Entry, bool, error) {
	switch {
	case len(line) >= 2 && strings.HasPrefix(line, "/") && strings.HasSuffix(line, "/"):
		re, err := regexp.Compile("(?i)" + line[1:len(line)-1])
		if err != nil {
			return nil, false, nil
		}
		return HostEntry{Pattern: re}, true, nil

	case dottedQuad.MatchString(line):
		if !strings.Contains(line, "/") {
			line += "/32"
		}
		return networkEntry(line, true)

	case partialIPv4.MatchString(line):
		octets := strings.Split(line, ".")
		for len(octets) < 4 {
			octets = append(octets, "0")
		}
		return networkEntry(strings.Join(octets, ".")+"/24", true)

	case ipv6Token.MatchString(line):
		if !strings.Contains(line, "/") {
			line += "/128"
		}
		return networkEntry(line, false)

	case !strings.ContainsAny(line, " \t"):
		re, err := regexp.Compile(`(?i)(^|\.)` + regexp.QuoteMeta(line) + `$`)
		if err != nil {
			return nil, false, nil
		}
		return HostEntry{Pattern: re}, true, nil
	}

	return nil, false, ErrMalformedLine
}

func networkEntry(cidr string, want4 bool) (Entry, bool, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil || prefix.Addr().Is4() != want4 {
		return nil, false, nil
	}
	return NetworkEntry{Prefix: prefix.Masked()}, true, nil
}

// LoadFile parses the whitelist at path. Open and read failures do not abort
// configuration: a missing file ending in OptionalSuffix is silent, anything else is
// logged as a warning.
// Either way ErrNotLoaded is returned and the caller keeps its current set.
func LoadFile(path string, logger *zap.Logger) (*Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		if !(errors.Is(err, os.ErrNotExist) && strings.HasSuffix(path, OptionalSuffix)) {
			logger.Warn("Failed to open whitelist file", zap.String("file", path), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}
	defer f.Close()

	set, warnings, err := Parse(f)
	for _, w := range warnings {
		logger.Warn("Skipping malformed whitelist line",
			zap.String("file", path),
			zap.Int("line", w.Line),
			zap.String("text", w.Text))
	}
	if err != nil {
		logger.Warn("Failed to read whitelist file", zap.String("file", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}

	logger.Info("Loaded whitelist",
		zap.String("file", path),
		zap.Int("networks", len(set.networks)),
		zap.Int("hostnames", len(set.hosts)))

	return set, nil
}
