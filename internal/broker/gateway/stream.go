package gateway

import (
	"context"
	"time"
	"warrant_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const pingEvery = 20 * time.Second

type wsFrame struct {
	Type string   `json:"type"`
	Data quoteDTO `json:"data"`
}

type wsSubscribe struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

func (c *Client) cachedQuote(symbol string) (models.Quote, bool) {
	if c.cfg.QuoteMaxAge <= 0 {
		return models.Quote{}, false
	}
	c.mu.RLock()
	q, ok := c.quotes[symbol]
	c.mu.RUnlock()
	if !ok || c.now().Sub(q.Timestamp) > c.cfg.QuoteMaxAge {
		return models.Quote{}, false
	}
	return q, true
}

// Subscribe adds symbols to the quote stream. Already-connected streams get a
// subscribe frame immediately; otherwise the symbols are sent on the next connect.
func (c *Client) Subscribe(symbols ...string) {
	var fresh []string
	c.mu.Lock()
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := c.subs[s]; !ok {
			c.subs[s] = struct{}{}
			fresh = append(fresh, s)
		}
	}
	c.mu.Unlock()
	if len(fresh) == 0 {
		return
	}
	if err := c.write(wsSubscribe{Op: "subscribe", Symbols: fresh}); err != nil {
		c.log.Debug("subscribe deferred until reconnect", zap.Strings("symbols", fresh), zap.Error(err))
	}
}

func (c *Client) write(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	b, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(c.now().Add(c.cfg.Timeout))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	if c.onConn != nil {
		c.onConn(conn != nil)
	}
}

// RunStream keeps one websocket open and feeds the quote cache until ctx ends.
func (c *Client) RunStream(ctx context.Context) {
	if c.cfg.WSURL == "" {
		c.log.Info("quote stream disabled, no ws_url")
		return
	}
	for {
		if err := c.streamOnce(ctx); err != nil {
			c.log.Warn("quote stream dropped", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) streamOnce(ctx context.Context) error {
	conn, _, err := c.wsDialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		_ = conn.Close()
	}()

	c.mu.RLock()
	syms := make([]string, 0, len(c.subs))
	for s := range c.subs {
		syms = append(syms, s)
	}
	c.mu.RUnlock()
	if len(syms) > 0 {
		if err := c.write(wsSubscribe{Op: "subscribe", Symbols: syms}); err != nil {
			return err
		}
	}
	c.log.Info("quote stream connected", zap.Int("symbols", len(syms)))

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				// unblock ReadMessage
				_ = conn.Close()
				return
			case <-stopPing:
				return
			case <-t.C:
				_ = c.write(map[string]string{"op": "ping"})
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var f wsFrame
		if err := sonic.Unmarshal(msg, &f); err != nil || f.Type != "quote" || f.Data.Symbol == "" {
			continue
		}
		q := f.Data.model()
		if q.Price <= 0 {
			continue
		}
		c.mu.Lock()
		if prev, ok := c.quotes[q.Symbol]; ok {
			// frames may omit static fields
			if q.LotSize == 0 {
				q.LotSize = prev.LotSize
			}
			if q.Name == "" {
				q.Name = prev.Name
			}
		}
		c.quotes[q.Symbol] = q
		c.mu.Unlock()
	}
}
