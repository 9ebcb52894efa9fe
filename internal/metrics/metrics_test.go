package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observers(t *testing.T) {
	m := New()

	m.ObserveResponse("cache")
	m.ObserveResponse("model")
	m.ObserveResponse("model")
	m.SetIndexedChunks(7)
	m.RecordEmailSent(OutcomeSent)
	m.RecordEmailSent(OutcomeFailed)
	m.RecordInboxMessage(OutcomeReplied)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.responsesTotal.WithLabelValues("cache")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.responsesTotal.WithLabelValues("model")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.indexedChunks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emailsSentTotal.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inboxMessagesTotal.WithLabelValues(OutcomeReplied)))
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/policies/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policies/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/policies/{id}", "404")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordEmailSent(OutcomeSent)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `autoreply_emails_sent_total{outcome="sent"} 1`))
}
