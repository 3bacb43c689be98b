package http_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrahttp "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/http"
)

func TestNewClient_Defaults(t *testing.T) {
	c := infrahttp.NewClient(nil)
	assert.Equal(t, infrahttp.DefaultTimeout, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, infrahttp.DefaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, infrahttp.DefaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.Equal(t, infrahttp.DefaultTimeout, tr.ResponseHeaderTimeout)
}

func TestNewClient_Overrides(t *testing.T) {
	c := infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: 3 * time.Second, MaxIdleConnsPerHost: 2})
	assert.Equal(t, 3*time.Second, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 2, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 3*time.Second, tr.ResponseHeaderTimeout)
}
