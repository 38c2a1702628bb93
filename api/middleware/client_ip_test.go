package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveIgnoresHeadersFromUntrustedPeer(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:40000"
	req.Header.Set("X-Forwarded-For", "198.51.100.77")
	req.Header.Set("X-Real-IP", "198.51.100.78")

	require.Equal(t, "203.0.113.5", proxies.Resolve(req))
	require.Equal(t, "203.0.113.5", TrustedProxies{}.Resolve(req))
}

func TestResolveWalksForwardedForFromTheRight(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 "})
	require.NoError(t, err)

	cases := []struct {
		name string
		xff  string
		want string
	}{
		{name: "single hop", xff: "198.51.100.7", want: "198.51.100.7"},
		{name: "client forged leftmost", xff: "1.1.1.1, 198.51.100.7, 10.0.0.3", want: "198.51.100.7"},
		{name: "all trusted", xff: "10.0.0.9, 192.0.2.1", want: "10.0.0.9"},
		{name: "garbage hop stops the walk", xff: "198.51.100.7, not-an-ip, 10.0.0.3", want: "10.0.0.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.1.2.3:443"
			req.Header.Set("X-Forwarded-For", tc.xff)
			require.Equal(t, tc.want, proxies.Resolve(req))
		})
	}
}

func TestResolveUsesRealIPFromTrustedPeer(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"192.0.2.1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:8080"
	req.Header.Set("X-Real-IP", "198.51.100.9")
	require.Equal(t, "198.51.100.9", proxies.Resolve(req))

	req.Header.Set("X-Real-IP", "junk")
	require.Equal(t, "192.0.2.1", proxies.Resolve(req))
}

func TestParseTrustedProxiesRejectsInvalidEntries(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"10.0.0.0/99"})
	require.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	require.Error(t, err)

	proxies, err := ParseTrustedProxies([]string{"", "  "})
	require.NoError(t, err)
	require.Empty(t, proxies.prefixes)
}

func TestClientIPReadsResolvedValue(t *testing.T) {
	var seen string
	handler := ClientIPResolver(TrustedProxies{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:40000"
	req.Header.Set("X-Forwarded-For", "198.51.100.77")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "203.0.113.5", seen)

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = "198.51.100.1:1"
	require.Equal(t, "198.51.100.1", ClientIP(bare))
}
