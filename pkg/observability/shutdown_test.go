package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager_Defaults(t *testing.T) {
	sm := NewShutdownManager(nil, 0)
	assert.Equal(t, 30*time.Second, sm.timeout)
	assert.NotNil(t, sm.logger)
}

func TestShutdown_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	var order []string
	for _, name := range []string{"postgres", "redis", "http"} {
		name := name
		sm.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	sm.Register("ignored", nil)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"http", "redis", "postgres"}, order)
}

func TestShutdown_ContinuesAfterFailure(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	ran := false
	sm.Register("first", func(context.Context) error {
		ran = true
		return nil
	})
	sm.Register("broken", func(context.Context) error {
		return errors.New("close failed")
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: close failed")
	assert.True(t, ran)
}

func TestShutdown_IgnoresParentCancellation(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	var hookErr error
	sm.Register("check", func(ctx context.Context) error {
		hookErr = ctx.Err()
		return nil
	})

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.Shutdown(parent))
	assert.NoError(t, hookErr)
}

func TestShutdown_Timeout(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), 20*time.Millisecond)
	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdown_HTTPServer(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Start()
	defer srv.Close()

	sm := NewShutdownManager(NopLogger(), time.Second)
	sm.Register("http", srv.Config.Shutdown)

	assert.NoError(t, sm.Shutdown(context.Background()))
}
