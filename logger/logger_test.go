package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://auth.example.test/reload-config?secret=s3cr3t", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.Header.Set("Authorization", "Bearer abc")

	entry := ForRequest(r)
	require.Equal(t, "203.0.113.9", entry.Data["ip"])
	require.Equal(t, "auth.example.test", entry.Data["host"])
	require.Equal(t, "/reload-config", entry.Data["path"])
	require.Equal(t, http.MethodPost, entry.Data["method"])
	for _, v := range entry.Data {
		require.NotContains(t, v, "s3cr3t")
	}
}
