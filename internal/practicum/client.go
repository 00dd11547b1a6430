package practicum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hwbot/internal/homework"
	logx "hwbot/pkg/logx"
)

const (
	DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"
	DefaultTimeout  = 30 * time.Second

	// maxBodyBytes caps how much of a response body is decoded.
	maxBodyBytes = 4 << 20
)

type Config struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// Client fetches homework statuses from the Practicum API.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

// New returns a Client. hc may be nil, in which case a client with
// cfg.Timeout is created.
func New(cfg Config, hc *http.Client, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("practicum token is empty")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("practicum endpoint: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, log: log}, nil
}

func (c *Client) Endpoint() string { return c.cfg.Endpoint }

// Fetch requests statuses changed since from (unix seconds) and returns the
// decoded JSON body. It does not check the body shape.
func (c *Client) Fetch(ctx context.Context, from int64) (any, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, c.fail(homework.ErrFetch, "API request failed: bad endpoint", err)
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(from, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, c.fail(homework.ErrFetch, "API request failed: "+err.Error(), err)
	}
	req.Header.Set("Authorization", "OAuth "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, c.fail(homework.ErrEndpointUnavailable,
				fmt.Sprintf("Resource %s is unavailable: connection refused", c.cfg.Endpoint), err)
		}
		return nil, c.fail(homework.ErrFetch, "API request failed: "+transportFault(err), err)
	}
	defer resp.Body.Close()

	c.log.Debug("api responded",
		logx.Int("status", resp.StatusCode),
		logx.Int64("from_date", from),
		logx.Duration("took", time.Since(started)),
	)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, c.fail(homework.ErrEndpointUnavailable,
			fmt.Sprintf("Resource %s is unavailable: HTTP %d", c.cfg.Endpoint, resp.StatusCode), nil)
	}

	var out any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, c.fail(homework.ErrFetch, "API request failed: invalid JSON body", err)
	}
	return out, nil
}

// transportFault describes a failed round trip without the parts that change
// between identical failures: the query string carried by *url.Error and the
// socket addresses carried by *net.OpError. The result is used as a
// deduplication key.
func transportFault(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		err = ue.Err
	}
	var op *net.OpError
	if errors.As(err, &op) && op.Err != nil {
		inner := op.Err
		for next := errors.Unwrap(inner); next != nil; next = errors.Unwrap(inner) {
			inner = next
		}
		return op.Op + ": " + inner.Error()
	}
	return err.Error()
}

func (c *Client) fail(kind error, msg string, cause error) error {
	err := homework.NewError(kind, msg, cause)
	c.log.Error(msg, logx.Err(cause))
	return err
}
