package practicum

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwbot/internal/homework"
	logx "hwbot/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{Endpoint: srv.URL + "/api/user_api/homework_statuses/", Token: "secret"}, srv.Client(), logx.Nop())
	require.NoError(t, err)
	return c, srv
}

func TestFetchSendsCursorAndAuth(t *testing.T) {
	var gotAuth, gotFrom, gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFrom = r.URL.Query().Get("from_date")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"homeworks":[{"homework_name":"Proj1","status":"approved"}],"current_date":1000}`))
	})

	v, err := c.Fetch(context.Background(), 1700000000)
	require.NoError(t, err)
	assert.Equal(t, "OAuth secret", gotAuth)
	assert.Equal(t, "1700000000", gotFrom)
	assert.Equal(t, "/api/user_api/homework_statuses/", gotPath)

	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, m, "homeworks")
	assert.EqualValues(t, 1000, m["current_date"])
}

func TestFetchNon200IsEndpointUnavailable(t *testing.T) {
	for _, code := range []int{http.StatusNoContent, http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable} {
		code := code
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		})
		_, err := c.Fetch(context.Background(), 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, homework.ErrEndpointUnavailable, "code %d", code)
	}
}

func TestFetchInvalidJSONIsFetchError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})
	_, err := c.Fetch(context.Background(), 1)
	assert.ErrorIs(t, err, homework.ErrFetch)
}

func TestFetchTransportFailureMessageIsStable(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err1 := c.Fetch(context.Background(), 1)
	_, err2 := c.Fetch(context.Background(), 2)
	require.Error(t, err1)
	require.Error(t, err2)

	kind := homework.KindOf(err1)
	assert.True(t, kind == homework.ErrFetch || kind == homework.ErrEndpointUnavailable, "kind %v", kind)
	assert.Equal(t, err1.Error(), err2.Error())
	assert.NotContains(t, err1.Error(), "from_date")
}

func TestTransportFaultDropsAddresses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "connection reset",
			err: &url.Error{Op: "Get", URL: "http://127.0.0.1:39177/?from_date=1", Err: &net.OpError{
				Op:     "read",
				Net:    "tcp",
				Source: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 46822},
				Addr:   &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 39177},
				Err:    &os.SyscallError{Syscall: "read", Err: syscall.ECONNRESET},
			}},
			want: "read: connection reset by peer",
		},
		{
			name: "plain cause",
			err:  &url.Error{Op: "Get", URL: "http://x/?from_date=2", Err: io.ErrUnexpectedEOF},
			want: "unexpected EOF",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transportFault(tt.err))
		})
	}
}

// resettingServer reads one request per connection and aborts it with a TCP RST.
func resettingServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			r := bufio.NewReader(conn)
			for {
				line, err := r.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				_ = tc.SetLinger(0)
			}
			_ = conn.Close()
		}
	}()
	return "http://" + ln.Addr().String() + "/"
}

func TestFetchConnectionResetMessageIsStable(t *testing.T) {
	c, err := New(Config{Endpoint: resettingServer(t), Token: "secret"}, &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}, logx.Nop())
	require.NoError(t, err)

	_, err1 := c.Fetch(context.Background(), 1)
	_, err2 := c.Fetch(context.Background(), 2)
	require.Error(t, err1)
	require.Error(t, err2)

	assert.ErrorIs(t, err1, homework.ErrFetch)
	assert.Equal(t, err1.Error(), err2.Error())
	assert.NotContains(t, err1.Error(), "127.0.0.1")
}

func TestFetchCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, 1)
	assert.ErrorIs(t, err, homework.ErrFetch)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{}, nil, logx.Nop())
	assert.Error(t, err)

	c, err := New(Config{Token: "t"}, nil, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, c.Endpoint())
}
