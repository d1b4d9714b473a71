package scorer

import (
	"context"
	"fmt"
	"net/netip"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
)

var (
	statusScore    = regexp.MustCompile(`(?i)\bscore=(-?\d+(?:\.\d+)?)`)
	statusRequired = regexp.MustCompile(`(?i)\brequired=(-?\d+(?:\.\d+)?)`)
	statusTests    = regexp.MustCompile(`(?is)\btests=(.*?)(?:\s+[a-z_]+=|$)`)

	// from helo (rdns [ip]) as written by postfix and sendmail
	receivedFrom = regexp.MustCompile(`(?i)^\s*from\s+\S+\s+\((?:([^\s\[\]()]+)\s+)?\[(?:ipv6:)?([0-9a-f:.]+)\]`)
)

// HeaderScorer reads the verdict a content scanner left in the message headers,
// such as "X-Spam-Status: Yes, score=5.0 required=5.0 tests=A,B"
type HeaderScorer struct {
	statusHeader     string
	firstContactRule string
}

// NewHeaderScorer creates a scorer for the given status header and first contact rule
func NewHeaderScorer(statusHeader, firstContactRule string) *HeaderScorer {
	return &HeaderScorer{
		statusHeader:     statusHeader,
		firstContactRule: firstContactRule,
	}
}

// Score parses the status header. ErrNoStatus is returned when it is absent.
func (s *HeaderScorer) Score(_ context.Context, _ []byte, hdr textproto.MIMEHeader) (*Score, error) {
	value := hdr.Get(s.statusHeader)
	if value == "" {
		return nil, ErrNoStatus
	}
	return ParseStatus(value, s.firstContactRule)
}

// ParseStatus parses a status header value. Missing fields parse as zero.
func ParseStatus(value, firstContactRule string) (*Score, error) {
	score := &Score{}

	if m := statusScore.FindStringSubmatch(value); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid score %q: %w", m[1], err)
		}
		score.Score = f
	}
	if m := statusRequired.FindStringSubmatch(value); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid required score %q: %w", m[1], err)
		}
		score.Required = f
	}
	if m := statusTests.FindStringSubmatch(value); m != nil {
		for _, t := range strings.Split(m[1], ",") {
			t = strings.TrimSpace(t)
			if t != "" && !strings.EqualFold(t, "none") {
				score.Tests = append(score.Tests, t)
			}
		}
	}

	score.FirstContact = hasRule(score.Tests, firstContactRule)
	return score, nil
}

// ParseReceived extracts the reverse DNS name and address of the connecting client from
// a Received header value. A client without reverse DNS yields an empty hostname.
func ParseReceived(value string) (hostname string, addr netip.Addr, ok bool) {
	m := receivedFrom.FindStringSubmatch(value)
	if m == nil {
		return "", netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(m[2])
	if err != nil {
		return "", netip.Addr{}, false
	}
	hostname = m[1]
	if strings.EqualFold(hostname, "unknown") {
		hostname = ""
	}
	return hostname, addr.Unmap(), true
}

// ClientFromHeaders returns the client recorded in the topmost Received header
func ClientFromHeaders(hdr textproto.MIMEHeader) (hostname string, addr netip.Addr, ok bool) {
	received := hdr.Values("Received")
	if len(received) == 0 {
		return "", netip.Addr{}, false
	}
	return ParseReceived(received[0])
}
