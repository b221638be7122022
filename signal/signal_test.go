package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRequestShutdown asserts that a shutdown request closes the shutdown
// channel and that a second interceptor can only start after the first one
// exits.
func TestRequestShutdown(t *testing.T) {
	interceptor, err := Intercept()
	require.NoError(t, err)
	require.True(t, interceptor.Listening())

	_, err = Intercept()
	require.Error(t, err)

	interceptor.RequestShutdown()

	select {
	case <-interceptor.ShutdownChannel():
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown channel not closed")
	}
	require.False(t, interceptor.Listening())

	// Further requests must not block.
	interceptor.RequestShutdown()

	require.Eventually(t, func() bool {
		next, err := Intercept()
		if err != nil {
			return false
		}
		next.RequestShutdown()
		<-next.ShutdownChannel()

		return true
	}, 5*time.Second, 10*time.Millisecond)
}
