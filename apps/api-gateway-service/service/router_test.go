package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgtalk/pkg/logger"
)

func newTestRouter(t *testing.T) *ProxyRouter {
	t.Helper()
	log, err := logger.NewLogger("error")
	require.NoError(t, err)
	return NewProxyRouter(nil, log)
}

func TestServiceForPath(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		path    string
		service string
		wantErr bool
	}{
		{"/api/v1/messages/send", "message-service", false},
		{"/api/v1/conversations/snapshot", "conversation-service", false},
		{"/api/v1/presence/42", "presence-service", false},
		{"/api/v1/calls/initiate", "call-service", false},
		{"/api/v1/ptt/grant", "ptt-service", false},
		{"/api/v1/gateway/stats", "im-gateway-service", false},
		{"/api/v1/unknown/thing", "", true},
		{"/api/v2/messages/send", "", true},
		{"/healthz", "", true},
	}
	for _, tc := range cases {
		name, err := router.ServiceForPath(tc.path)
		if tc.wantErr {
			assert.Error(t, err, tc.path)
			continue
		}
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.service, name, tc.path)
	}
}

func TestResolveFallsBackToStaticPorts(t *testing.T) {
	router := newTestRouter(t)

	addr, err := router.Resolve("message-service")
	require.NoError(t, err)
	assert.Equal(t, "localhost:21001", addr)

	addr, err = router.Resolve("im-gateway-service")
	require.NoError(t, err)
	assert.Equal(t, "localhost:21006", addr)

	_, err = router.Resolve("nonexistent-service")
	assert.Error(t, err)
}
