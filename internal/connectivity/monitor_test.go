package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitorSample(t *testing.T) {
	up := true
	m := NewMonitor(ProbeFunc(func(context.Context) bool { return up }), time.Second)
	assert.True(t, m.Online())

	up = false
	assert.False(t, m.Sample(context.Background()))
	assert.False(t, m.Online())

	up = true
	assert.True(t, m.Sample(context.Background()))
	assert.Equal(t, "online=true samples=2", m.String())
}

func TestMonitorTimeout(t *testing.T) {
	slow := ProbeFunc(func(ctx context.Context) bool {
		<-ctx.Done()
		return false
	})
	m := NewMonitor(slow, 10*time.Millisecond)
	assert.False(t, m.Sample(context.Background()))
}

func TestHTTPProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	ctx := context.Background()
	assert.True(t, HTTPProbe{URL: ok.URL}.Online(ctx))
	assert.False(t, HTTPProbe{URL: broken.URL}.Online(ctx))
	assert.False(t, HTTPProbe{URL: "http://127.0.0.1:1"}.Online(ctx))
}
