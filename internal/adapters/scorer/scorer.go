package scorer

import (
	"context"
	"errors"
	"net/textproto"
	"strings"
)

// ErrNoStatus is returned by HeaderScorer when the message carries no status header
var ErrNoStatus = errors.New("no spam status header")

// Score is what the content scanner said about a message
type Score struct {
	Score        float64
	Required     float64
	Tests        []string
	FirstContact bool
}

// Scorer derives a Score for a message
type Scorer interface {
	Score(ctx context.Context, raw []byte, hdr textproto.MIMEHeader) (*Score, error)
}

// hasRule reports whether rule appears in tests, case-insensitively
func hasRule(tests []string, rule string) bool {
	if rule == "" {
		return false
	}
	for _, t := range tests {
		if strings.EqualFold(t, rule) {
			return true
		}
	}
	return false
}
