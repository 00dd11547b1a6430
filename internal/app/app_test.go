package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hwbot/internal/config"
	"hwbot/internal/poller"
	kit "hwbot/internal/transport"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	args := m.Called(to, text)
	return args.Get(0).(kit.MessageRef), args.Error(1)
}

func testConfig(endpoint string) *config.Config {
	off := false
	return &config.Config{
		PracticumToken: "p",
		TelegramToken:  "t",
		ChatID:         77,
		Endpoint:       endpoint,
		PollTimeout:    time.Second,
		ErrorRetention: 24 * time.Hour,
		SendTimeout:    time.Second,
		RatePerSec:     10,
		Logging:        config.LoggingConfig{Level: "error", Console: &off},
	}
}

func TestAppPollsAndNotifies(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "OAuth p", r.Header.Get("Authorization"))
		if calls == 1 {
			_, _ = w.Write([]byte(`{"homeworks":[{"homework_name":"Proj1","status":"approved"}],"current_date":1000}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	target := kit.ChatTarget{ChatID: 77}
	s := &mockSender{}
	s.On("SendText", target, `Changed status of "Proj1". Работа проверена: ревьюеру всё понравилось. Ура!`).
		Return(kit.MessageRef{ChatID: 77, MessageID: 1}, nil).Once()
	s.On("SendText", target, "[WARNING] Resource "+srv.URL+" is unavailable: HTTP 502").
		Return(kit.MessageRef{ChatID: 77, MessageID: 2}, nil).Once()

	a, err := New(testConfig(srv.URL), WithSender(s), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	a.Poller().RunOnce(ctx)
	a.Poller().RunOnce(ctx)
	a.Poller().RunOnce(ctx) // same failure again: suppressed

	s.AssertExpectations(t)
	st := a.Poller().Stats()
	assert.EqualValues(t, 3, st.Iterations)
	assert.EqualValues(t, 1, st.Suppressed)
}

func TestAppRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"homeworks":[],"current_date":1}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	wait := func(c context.Context, d time.Duration) error {
		cancel()
		return c.Err()
	}

	a, err := New(testConfig(srv.URL), WithSender(&mockSender{}), WithHTTPClient(srv.Client()),
		WithPollerOptions(poller.WithWait(wait)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Run(ctx))
	assert.EqualValues(t, 1, a.Poller().Stats().Iterations)
}

func TestNewRejectsBadTunables(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.PollInterval = "whenever"
	_, err := New(cfg, WithSender(&mockSender{}))
	assert.Error(t, err)

	cfg = testConfig("http://127.0.0.1:1")
	cfg.Verdicts = map[string]string{"accepted": "x"}
	_, err = New(cfg, WithSender(&mockSender{}))
	assert.Error(t, err)
}

// listenNotifySocket stands in for systemd's NOTIFY_SOCKET.
func listenNotifySocket(t *testing.T) *net.UnixConn {
	t.Helper()
	dir, err := os.MkdirTemp("", "sd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func drainNotifications(conn *net.UnixConn) []string {
	var out []string
	buf := make([]byte, 4096)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			return out
		}
		out = append(out, string(buf[:n]))
	}
}

func TestRunFeedsWatchdogBetweenPolls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"homeworks":[],"current_date":1}`))
	}))
	defer srv.Close()

	conn := listenNotifySocket(t)
	t.Setenv("WATCHDOG_USEC", "100000")
	t.Setenv("WATCHDOG_PID", strconv.Itoa(os.Getpid()))

	// The poll interval stays at its default, far beyond the watchdog.
	wait := func(c context.Context, d time.Duration) error {
		<-c.Done()
		return c.Err()
	}
	a, err := New(testConfig(srv.URL), WithSender(&mockSender{}), WithHTTPClient(srv.Client()),
		WithPollerOptions(poller.WithWait(wait)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	msgs := drainNotifications(conn)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "READY=1", msgs[0])
	assert.Equal(t, "STOPPING=1", msgs[len(msgs)-1])

	pings := 0
	for _, m := range msgs {
		if m == "WATCHDOG=1" {
			pings++
		}
	}
	assert.GreaterOrEqual(t, pings, 2, "notifications: %v", msgs)
	assert.Contains(t, msgs, "STATUS=last poll ok")
}
