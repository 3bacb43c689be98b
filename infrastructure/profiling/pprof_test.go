package profiling_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/profiling"
)

func TestStart_Disabled(t *testing.T) {
	addr, err := profiling.Start(context.Background(), profiling.Config{}, infralogger.NewNop())
	require.NoError(t, err)
	assert.Empty(t, addr)
}

func TestStart_ServesIndex(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, err := profiling.Start(ctx, profiling.Config{Enabled: true, Address: "127.0.0.1:0"}, infralogger.NewNop())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/debug/pprof/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
