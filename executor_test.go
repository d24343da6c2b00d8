package loadtest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kwhite/loadtest"
)

func TestExecutorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("User-Agent"), "loadtest")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := loadtest.NewExecutor(time.Second)
	o := e.Execute(context.Background(), "", srv.URL)

	assert.True(t, o.Success)
	assert.Equal(t, "200", o.Code)
	assert.Equal(t, 11, o.Bytes)
	assert.GreaterOrEqual(t, o.LatencyMs, 0.0)
	assert.Empty(t, o.Error)
}

func TestExecutorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := loadtest.NewExecutor(time.Second)
	o := e.Execute(context.Background(), http.MethodGet, srv.URL)

	assert.False(t, o.Success)
	assert.Equal(t, "500", o.Code)
	assert.NotEmpty(t, o.Error)
}

func TestExecutorClientErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := loadtest.NewExecutor(time.Second)
	o := e.Execute(context.Background(), http.MethodGet, srv.URL)

	assert.False(t, o.Success)
	assert.Equal(t, "404", o.Code)
}

func TestExecutorTimeoutIsTimedOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	e := loadtest.NewExecutor(20 * time.Millisecond)
	o := e.Execute(context.Background(), http.MethodGet, srv.URL)

	assert.False(t, o.Success)
	assert.Equal(t, loadtest.CodeTimeout, o.Code)
	assert.NotEmpty(t, o.Error)
	// Latency is measured up to the failure point, never left at zero.
	assert.Greater(t, o.LatencyMs, 0.0)
}

func TestExecutorConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := loadtest.NewExecutor(time.Second)
	o := e.Execute(context.Background(), http.MethodGet, srv.URL)

	assert.False(t, o.Success)
	assert.NotEmpty(t, o.Error)
	assert.Contains(t, []string{loadtest.CodeError, loadtest.CodeTimeout}, o.Code)
}

func TestExecutorInvalidMethod(t *testing.T) {
	e := loadtest.NewExecutor(time.Second)
	o := e.Execute(context.Background(), "BAD METHOD", "http://localhost")

	assert.False(t, o.Success)
	assert.Equal(t, loadtest.CodeError, o.Code)
}
