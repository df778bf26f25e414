package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

const (
	measurementTransition = "node_transition"
	measurementStatus     = "node_status"
)

// StatusSample is one node_status point.
type StatusSample struct {
	State       int
	StateName   string
	Color       uint32
	Iterations  uint64
	Disconnects uint64
	InitFailed  bool
}

// WriteTransition records a supervisor state change.
func (c *Client) WriteTransition(device, from, to, reason string, at time.Time) {
	c.write(write.NewPoint(
		measurementTransition,
		map[string]string{
			"device": device,
			"from":   from,
			"to":     to,
		},
		map[string]any{
			"reason": reason,
		},
		at,
	))
}

// WriteStatus records a status sample.
func (c *Client) WriteStatus(device string, s StatusSample, at time.Time) {
	c.write(write.NewPoint(
		measurementStatus,
		map[string]string{
			"device": device,
			"state":  s.StateName,
		},
		map[string]any{
			"state":       s.State,
			"color":       int64(s.Color),
			"iterations":  int64(s.Iterations),  //nolint:gosec // loop counter fits
			"disconnects": int64(s.Disconnects), //nolint:gosec // event counter fits
			"init_failed": s.InitFailed,
		},
		at,
	))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(p)
}

// RunSampler writes sample() every interval until ctx is cancelled.
func (c *Client) RunSampler(ctx context.Context, clk clock.Clock, interval time.Duration, device func() string, sample func() StatusSample) {
	tick := make(chan struct{}, 1)
	for {
		c.WriteStatus(device(), sample(), clk.Now())

		timer := clk.AfterFunc(interval, func() { tick <- struct{}{} })
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-tick:
		}
	}
}
