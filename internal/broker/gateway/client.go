// Package gateway is the broker.Client backed by the brokerage's REST and websocket gateway.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"warrant_bot/internal/broker"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Client struct {
	cfg config.Broker
	log *zap.Logger

	http     *http.Client
	wsDialer *websocket.Dialer
	now      func() time.Time

	mu     sync.RWMutex
	quotes map[string]models.Quote // streamed, newest per symbol
	subs   map[string]struct{}
	conn   *websocket.Conn
	connMu sync.Mutex // serialises websocket writes

	onConn func(bool)
}

var _ broker.Client = (*Client)(nil)

func NewClient(cfg config.Broker, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:      cfg,
		log:      log.Named("gateway"),
		http:     &http.Client{Timeout: cfg.Timeout},
		wsDialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		now:      time.Now,
		quotes:   make(map[string]models.Quote),
		subs:     make(map[string]struct{}),
	}
}

// OnConnChange registers a callback for websocket connect/disconnect.
func (c *Client) OnConnChange(fn func(connected bool)) { c.onConn = fn }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// sign authenticates a request as HMAC-SHA256 over timestamp, method, path and body.
func (c *Client) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.AppSecret))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = sonic.Marshal(body); err != nil {
			return fmt.Errorf("%s %s marshal: %w", method, path, err)
		}
	}

	target := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s %s new request: %w", method, path, err)
	}

	ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("X-API-KEY", c.cfg.AppKey)
	req.Header.Set("X-API-TIMESTAMP", ts)
	req.Header.Set("X-API-SIGNATURE", c.sign(ts, method, path, string(payload)))
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// transport failures never reached the gateway's business logic
		return broker.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return broker.Transient(fmt.Errorf("%s %s read body: %w", method, path, err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, broker.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return broker.Transient(fmt.Errorf("%s %s http %d: %s", method, path, resp.StatusCode, string(data)))
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("%s %s http %d: %s", method, path, resp.StatusCode, string(data))
	}

	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s %s decode: %w; body=%s", method, path, err, string(data))
	}
	if env.Code != 0 {
		return fmt.Errorf("%s %s error: code=%d msg=%s", method, path, env.Code, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s decode data: %w", method, path, err)
	}
	return nil
}
