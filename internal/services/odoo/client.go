package odoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/logger"
)

// Client represents an Odoo XML-RPC client. The authenticated uid is cached
// for SessionTTL and dropped whenever a call fails.
type Client struct {
	URL       string
	Database  string
	Username  string
	Password  string
	CommonURL string
	ObjectURL string

	transport  http.RoundTripper
	sessionTTL time.Duration
	clock      clock.Clock
	log        zerolog.Logger

	mu     sync.Mutex
	uid    int64
	authAt time.Time
}

// NewClient creates a new Odoo client
func NewClient(cfg config.OdooConfig, clk clock.Clock) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	url := strings.TrimRight(cfg.URL, "/")
	return &Client{
		URL:        url,
		Database:   cfg.Database,
		Username:   cfg.Username,
		Password:   cfg.Password,
		CommonURL:  fmt.Sprintf("%s/xmlrpc/2/common", url),
		ObjectURL:  fmt.Sprintf("%s/xmlrpc/2/object", url),
		transport:  transport,
		sessionTTL: cfg.SessionTTL,
		clock:      clk,
		log:        logger.Component("odoo"),
	}
}

// call runs one XML-RPC call, abandoning it when ctx ends
func (c *Client) call(ctx context.Context, endpoint, method string, args []interface{}, reply interface{}) error {
	client, err := xmlrpc.NewClient(endpoint, c.transport)
	if err != nil {
		return errs.Wrap(err, "failed to create XML-RPC client")
	}

	done := make(chan error, 1)
	go func() { done <- client.Call(method, args, reply) }()

	select {
	case err := <-done:
		client.Close()
		return err
	case <-ctx.Done():
		go func() {
			<-done
			client.Close()
		}()
		return ctx.Err()
	}
}

// Authenticate returns the cached uid, logging in again once the session is older than SessionTTL
func (c *Client) Authenticate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.uid != 0 && c.clock.Now().Sub(c.authAt) < c.sessionTTL {
		uid := c.uid
		c.mu.Unlock()
		return uid, nil
	}
	c.mu.Unlock()

	args := []interface{}{c.Database, c.Username, c.Password, map[string]interface{}{}}
	var raw interface{}
	if err := c.call(ctx, c.CommonURL, "authenticate", args, &raw); err != nil {
		return 0, errs.Mark(errs.Wrap(err, "odoo authentication failed"), errs.ErrExternal)
	}

	// Odoo answers false instead of a fault for bad credentials
	var uid int64
	switch v := raw.(type) {
	case int64:
		uid = v
	case int:
		uid = int64(v)
	}
	if uid == 0 {
		return 0, errs.Mark(errs.New("odoo authentication failed: invalid credentials"), errs.ErrExternal)
	}

	c.mu.Lock()
	c.uid = uid
	c.authAt = c.clock.Now()
	c.mu.Unlock()

	c.log.Info().Int64("uid", uid).Str("db", c.Database).Msg("🔐 authenticated with Odoo")
	return uid, nil
}

// invalidate forces the next call to log in again
func (c *Client) invalidate() {
	c.mu.Lock()
	c.uid = 0
	c.mu.Unlock()
}

func isAccessDenied(err error) bool {
	var fault xmlrpc.FaultError
	if !errs.As(err, &fault) {
		return false
	}
	s := strings.ToLower(fault.String)
	return strings.Contains(s, "access denied") || strings.Contains(s, "accessdenied") || strings.Contains(s, "session expired")
}

// executeKw runs model.method through execute_kw, re-authenticating once on access errors
func (c *Client) executeKw(ctx context.Context, model, method string, positional []interface{}, kwargs map[string]interface{}, reply interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		uid, err := c.Authenticate(ctx)
		if err != nil {
			return err
		}

		args := []interface{}{c.Database, uid, c.Password, model, method, positional}
		if kwargs != nil {
			args = append(args, kwargs)
		}

		err = c.call(ctx, c.ObjectURL, "execute_kw", args, reply)
		if err == nil {
			return nil
		}

		c.invalidate()
		if attempt == 0 && isAccessDenied(err) {
			c.log.Warn().Str("model", model).Str("method", method).Msg("odoo session rejected, re-authenticating")
			continue
		}
		return errs.Mark(errs.Wrapf(err, "odoo %s.%s", model, method), errs.ErrExternal)
	}
	return errs.Mark(errs.Newf("odoo %s.%s: access denied", model, method), errs.ErrExternal)
}

// remarshal converts raw XML-RPC maps into typed structs through JSON
func remarshal(raw interface{}, result interface{}) error {
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return errs.Wrap(err, "failed to marshal raw result")
	}
	if err := json.Unmarshal(jsonData, result); err != nil {
		return errs.Wrap(err, "failed to unmarshal into target")
	}
	return nil
}

// SearchRead performs a generic search_read operation
func (c *Client) SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, limit int, result interface{}) error {
	var raw []map[string]interface{}
	kwargs := map[string]interface{}{
		"fields": fields,
		"limit":  limit,
	}
	if err := c.executeKw(ctx, model, "search_read", []interface{}{domain}, kwargs, &raw); err != nil {
		return err
	}
	return remarshal(raw, result)
}

// Read reads records by IDs
func (c *Client) Read(ctx context.Context, model string, ids []int64, fields []string, result interface{}) error {
	var raw []map[string]interface{}
	kwargs := map[string]interface{}{"fields": fields}
	if err := c.executeKw(ctx, model, "read", []interface{}{ids}, kwargs, &raw); err != nil {
		return err
	}
	return remarshal(raw, result)
}

// Create creates a new record
func (c *Client) Create(ctx context.Context, model string, values map[string]interface{}) (int64, error) {
	var id int64
	if err := c.executeKw(ctx, model, "create", []interface{}{values}, nil, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// Write updates existing record(s)
func (c *Client) Write(ctx context.Context, model string, ids []int64, values map[string]interface{}) error {
	var success bool
	if err := c.executeKw(ctx, model, "write", []interface{}{ids, values}, nil, &success); err != nil {
		return err
	}
	if !success {
		return errs.Mark(errs.Newf("odoo %s.write returned false", model), errs.ErrExternal)
	}
	return nil
}

// CallMethod calls a custom method on an Odoo model
func (c *Client) CallMethod(ctx context.Context, model, method string, ids []int64) (interface{}, error) {
	var result interface{}
	if err := c.executeKw(ctx, model, method, []interface{}{ids}, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Version calls the unauthenticated common.version endpoint
func (c *Client) Version(ctx context.Context) (map[string]interface{}, error) {
	var info map[string]interface{}
	if err := c.call(ctx, c.CommonURL, "version", nil, &info); err != nil {
		return nil, errs.Mark(errs.Wrap(err, "odoo version"), errs.ErrExternal)
	}
	return info, nil
}
