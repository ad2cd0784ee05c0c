package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client batches transition points to one bucket. Every point carries a
// site tag so several devices can share the bucket.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	closed atomic.Bool

	errMu   sync.Mutex
	onError func(error)
}

// Connect pings the server and returns a client whose writes never block.
// It returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig, site string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(positive(cfg.BatchSize, defaultBatchSize)).
		SetFlushInterval(positive(cfg.FlushInterval, uint(defaultFlushInterval/time.Second)) * 1000)
	if site != "" {
		opts.AddDefaultTag("site", site)
	}
	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if ok, err := influx.Ping(ctx); err != nil || !ok {
		influx.Close()
		if err == nil {
			err = fmt.Errorf("%s is not ready", cfg.URL)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{influx: influx, writer: influx.WriteAPI(cfg.Org, cfg.Bucket)}
	go c.forwardErrors(c.writer.Errors())
	return c, nil
}

func positive(v int, fallback uint) uint {
	if v <= 0 {
		return fallback
	}
	return uint(v) //nolint:gosec // v > 0
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.Lock()
		fn := c.onError
		c.errMu.Unlock()
		if fn != nil {
			fn(err)
		}
	}
}

// SetOnError registers fn for asynchronous batch write failures.
func (c *Client) SetOnError(fn func(error)) {
	c.errMu.Lock()
	c.onError = fn
	c.errMu.Unlock()
}

// IsConnected reports whether the client still accepts points.
func (c *Client) IsConnected() bool {
	return c.writer != nil && !c.closed.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	ok, err := c.influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb health check: server not ready")
	}
	return nil
}

// Flush sends the buffered batch now.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Close flushes outstanding points and releases the client.
func (c *Client) Close() error {
	if c.influx == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}
