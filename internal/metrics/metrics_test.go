package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/IdleWarden/internal/monitor"
)

func TestObserve(t *testing.T) {
	m := New()

	for _, ev := range []monitor.Event{
		{Type: monitor.EventArmed},
		{Type: monitor.EventArmed},
		{Type: monitor.EventWarning},
		{Type: monitor.EventExtended},
		{Type: monitor.EventWarning},
		{Type: monitor.EventExpired, Reason: monitor.ReasonDeclined},
		{Type: monitor.EventLogoutFailed},
		{Type: monitor.EventDisarmed, Reason: monitor.ReasonDeclined},
		{Type: monitor.EventExpired, Reason: "terminated by admin"},
	} {
		m.Observe(ev)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArmedMonitors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Warnings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Extensions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LogoutFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Expiries.WithLabelValues(monitor.ReasonDeclined)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Expiries.WithLabelValues("admin")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Connections.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "idlewarden_connections 3")
	assert.Contains(t, string(body), "go_goroutines")
}
