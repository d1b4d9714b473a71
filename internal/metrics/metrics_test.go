package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/greylist-filter/internal/core"
)

var _ core.Metrics = (*Collector)(nil)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveDecision(t *testing.T) {
	c := NewCollector()

	c.ObserveDecision(core.Decision{Value: 1})
	c.ObserveDecision(core.Decision{Value: 1, Reason: core.ReasonNotExpired})
	c.ObserveDecision(core.Decision{Value: 0, Reason: core.ReasonElapsed})
	c.ObserveDecision(core.Decision{Value: 0, Reason: "10.0.0.0/8 triggered"})
	c.ObserveDecision(core.Decision{Value: 0, Reason: "(?i)(^|\\.)example\\.org$ triggered"})
	c.ObserveDecision(core.Decision{Value: 0, Reason: core.ReasonStoreUnavailable, Skipped: true})

	out := scrape(t, c)
	assert.Contains(t, out, `greylist_decisions_total{reason="first_contact",result="greylisted"} 1`)
	assert.Contains(t, out, `greylist_decisions_total{reason="not_expired",result="greylisted"} 1`)
	assert.Contains(t, out, `greylist_decisions_total{reason="elapsed",result="accepted"} 1`)
	assert.Contains(t, out, `greylist_decisions_total{reason="whitelisted",result="accepted"} 2`)
	assert.Contains(t, out, `greylist_decisions_total{reason="store_unavailable",result="skipped"} 1`)
}

func TestObserveStoreError(t *testing.T) {
	c := NewCollector()
	c.ObserveStoreError("get")
	c.ObserveStoreError("get")
	c.ObserveStoreError("set")

	out := scrape(t, c)
	assert.Contains(t, out, `greylist_store_errors_total{op="get"} 2`)
	assert.Contains(t, out, `greylist_store_errors_total{op="set"} 1`)
}

func TestReasonLabel(t *testing.T) {
	assert.Equal(t, "not_spam", reasonLabel(core.ReasonNotSpam))
	assert.Equal(t, "reputable", reasonLabel(core.ReasonReputable))
	assert.Equal(t, "other", reasonLabel("something else"))
}
