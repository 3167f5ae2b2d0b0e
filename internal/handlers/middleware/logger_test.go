package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type loggerFunc func(string, ...any)

func (f loggerFunc) Info(msg string, v ...any) { f(msg, v...) }

func TestLoggerMiddleware(t *testing.T) {
	called := 0
	var msg string
	var args []any

	logger := loggerFunc(func(m string, v ...any) {
		called++
		msg = m
		args = v
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, err := w.Write([]byte(`{"error": "Insufficient funds"}`))
		require.NoError(t, err, "should write response")
	})

	middleware := LoggerMiddleware(logger)
	srv := httptest.NewServer(middleware(h))
	defer srv.Close()

	body := strings.NewReader(`{"amount": 15000, "reason": "payout"}`)
	resp, err := http.Post(srv.URL+"/api/wallets/SW-0000000042/debit", "application/json", body)
	require.NoError(t, err, "should make request to test server")
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "should read response body")
	defer resp.Body.Close() // nolint:errcheck

	require.Equalf(t, http.StatusPaymentRequired, resp.StatusCode, "should pass the handler status through. Resp: %s", string(respBody))

	require.Equal(t, 1, called, "logger should be called once")
	require.Equal(t, "request handled", msg)
	require.Len(t, args, 10, "logger should log 10 fields")
	require.Equal(t, "method", args[0])
	require.Equal(t, "POST", args[1])
	require.Equal(t, "path", args[2])
	require.Equal(t, "/api/wallets/SW-0000000042/debit", args[3])
	require.Equal(t, "duration", args[4])
	require.NotEmpty(t, args[5], "duration should not be empty")
	require.Equal(t, "status", args[6])
	require.Equal(t, http.StatusPaymentRequired, args[7])
	require.Equal(t, "size", args[8])
	require.Equal(t, len(`{"error": "Insufficient funds"}`), args[9], "size should match the written body")
}

func TestLoggerMiddleware_DefaultStatus(t *testing.T) {
	var args []any
	logger := loggerFunc(func(_ string, v ...any) { args = v })

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("ok"))
		require.NoError(t, err)
	})

	srv := httptest.NewServer(LoggerMiddleware(logger)(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/transactions")
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	require.Equal(t, http.StatusOK, args[7], "implicit 200 should be logged when WriteHeader is never called")
}
