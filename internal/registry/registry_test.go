package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	require.True(t, CanTransitionTo(Stopped, Starting))
	require.True(t, CanTransitionTo(Starting, Running))
	require.True(t, CanTransitionTo(Running, Stopping))
	require.True(t, CanTransitionTo(Stopping, Stopped))
	require.False(t, CanTransitionTo(Stopped, Running))
	require.False(t, CanTransitionTo(Running, Starting))
}

func TestInfoURL(t *testing.T) {
	require.Equal(t, "", Info{}.URL())
	require.Equal(t, "http://127.0.0.1:4873", Info{Host: "127.0.0.1", Port: 4873}.URL())
}

func TestPing_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/-/ping", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, Ping(context.Background(), srv.URL))
}

func TestPing_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := Ping(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestPing_EmptyURL(t *testing.T) {
	err := Ping(context.Background(), "")
	require.Error(t, err)
}

func TestIsProcessAlive_CurrentProcess(t *testing.T) {
	require.True(t, isProcessAlive(os.Getpid()))
}

func TestIsProcessAlive_BogusPID(t *testing.T) {
	require.False(t, isProcessAlive(999999999))
}
