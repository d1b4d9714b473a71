package scorer

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/teamwork/spamc"
	"go.uber.org/zap"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		score        float64
		required     float64
		tests        []string
		firstContact bool
	}{
		{
			name:     "ham",
			value:    "No, score=-0.1 required=5.0 tests=DKIM_SIGNED,DKIM_VALID autolearn=ham version=3.4.6",
			score:    -0.1,
			required: 5.0,
			tests:    []string{"DKIM_SIGNED", "DKIM_VALID"},
		},
		{
			name:         "first contact",
			value:        "Yes, score=6.2 required=5.0 tests=BAYES_50,GREY_FIRST_CONTACT autolearn=no",
			score:        6.2,
			required:     5.0,
			tests:        []string{"BAYES_50", "GREY_FIRST_CONTACT"},
			firstContact: true,
		},
		{
			name:         "unfolded tests",
			value:        "No, score=2.5 required=5.0 tests=BAYES_00, GREY_FIRST_CONTACT,\tRDNS_NONE version=3.4.6",
			score:        2.5,
			required:     5.0,
			tests:        []string{"BAYES_00", "GREY_FIRST_CONTACT", "RDNS_NONE"},
			firstContact: true,
		},
		{
			name:     "no tests",
			value:    "No, score=0.0 required=5.0 tests=none autolearn=ham",
			required: 5.0,
		},
		{
			name:  "no fields",
			value: "No",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, err := ParseStatus(tc.value, "GREY_FIRST_CONTACT")
			require.NoError(t, err)
			assert.InDelta(t, tc.score, score.Score, 1e-9)
			assert.InDelta(t, tc.required, score.Required, 1e-9)
			assert.Equal(t, tc.tests, score.Tests)
			assert.Equal(t, tc.firstContact, score.FirstContact)
		})
	}
}

func TestHeaderScorerMissingHeader(t *testing.T) {
	s := NewHeaderScorer("X-Spam-Status", "GREY_FIRST_CONTACT")
	_, err := s.Score(context.Background(), nil, textproto.MIMEHeader{})
	assert.ErrorIs(t, err, ErrNoStatus)
}

func TestParseReceived(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		hostname string
		addr     string
	}{
		{
			name:     "postfix",
			value:    "from mx.example.org (mail.example.org [192.0.2.10]) by mx.local (Postfix) with ESMTPS id 4Tq; Mon, 4 Mar 2024 10:00:00 +0000",
			hostname: "mail.example.org",
			addr:     "192.0.2.10",
		},
		{
			name:  "no reverse dns",
			value: "from helo.example.org (unknown [198.51.100.7]) by mx.local (Postfix) with ESMTP",
			addr:  "198.51.100.7",
		},
		{
			name:     "ipv6",
			value:    "from mx6.example.org (mx6.example.org [IPv6:2001:db8::25]) by mx.local (Postfix)",
			hostname: "mx6.example.org",
			addr:     "2001:db8::25",
		},
		{
			name:  "bracket only",
			value: "from helo ([203.0.113.4]) by mx.local",
			addr:  "203.0.113.4",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hostname, addr, ok := ParseReceived(tc.value)
			require.True(t, ok)
			assert.Equal(t, tc.hostname, hostname)
			assert.Equal(t, netip.MustParseAddr(tc.addr), addr)
		})
	}

	_, _, ok := ParseReceived("by mx.local (Postfix, from userid 0) id 12345")
	assert.False(t, ok)
}

func TestClientFromHeadersUsesTopmost(t *testing.T) {
	hdr := textproto.MIMEHeader{}
	hdr.Add("Received", "from a.example (a.example [192.0.2.1]) by mx.local")
	hdr.Add("Received", "from b.example (b.example [192.0.2.2]) by a.example")

	hostname, addr, ok := ClientFromHeaders(hdr)
	require.True(t, ok)
	assert.Equal(t, "a.example", hostname)
	assert.Equal(t, "192.0.2.1", addr.String())

	_, _, ok = ClientFromHeaders(textproto.MIMEHeader{})
	assert.False(t, ok)
}

type mockSpamd struct {
	mock.Mock
}

func (m *mockSpamd) Symbols(ctx context.Context, msg io.Reader, hdr spamc.Header) (*spamc.ResponseSymbols, error) {
	args := m.Called(ctx, msg, hdr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*spamc.ResponseSymbols), args.Error(1)
}

func (m *mockSpamd) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestSpamcScorerPrefersHeader(t *testing.T) {
	client := &mockSpamd{}
	s := newSpamcScorer(client, "X-Spam-Status", "GREY_FIRST_CONTACT", zap.NewNop())

	hdr := textproto.MIMEHeader{}
	hdr.Set("X-Spam-Status", "No, score=1.0 required=5.0 tests=GREY_FIRST_CONTACT")

	score, err := s.Score(context.Background(), []byte("Subject: hi\r\n\r\nbody"), hdr)
	require.NoError(t, err)
	assert.True(t, score.FirstContact)
	client.AssertNotCalled(t, "Symbols", mock.Anything, mock.Anything, mock.Anything)
}

func TestSpamcScorerAsksSpamd(t *testing.T) {
	client := &mockSpamd{}
	resp := &spamc.ResponseSymbols{Symbols: []string{"BAYES_00", "GREY_FIRST_CONTACT"}}
	resp.Score = 1.5
	resp.BaseScore = 5.0
	client.On("Symbols", mock.Anything, mock.Anything, mock.Anything).Return(resp, nil)

	s := newSpamcScorer(client, "X-Spam-Status", "GREY_FIRST_CONTACT", zap.NewNop())
	score, err := s.Score(context.Background(), []byte("Subject: hi\r\n\r\nbody"), textproto.MIMEHeader{})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, score.Score, 1e-9)
	assert.InDelta(t, 5.0, score.Required, 1e-9)
	assert.True(t, score.FirstContact)
	client.AssertExpectations(t)
}

func TestSpamcScorerError(t *testing.T) {
	client := &mockSpamd{}
	client.On("Symbols", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	client.On("Ping", mock.Anything).Return(errors.New("connection refused"))

	s := newSpamcScorer(client, "X-Spam-Status", "GREY_FIRST_CONTACT", zap.NewNop())
	_, err := s.Score(context.Background(), []byte("x"), textproto.MIMEHeader{})
	assert.ErrorContains(t, err, "spamd")
	assert.Error(t, s.Ping(context.Background()))
}
