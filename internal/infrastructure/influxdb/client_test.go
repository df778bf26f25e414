package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

type fakeServer struct {
	healthy bool
	err     error
	closed  bool
}

func (f *fakeServer) Ping(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return f.healthy, f.err
}

func (f *fakeServer) Close() { f.closed = true }

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func tagValue(p *write.Point, key string) string {
	for _, tag := range p.TagList() {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func fieldValue(p *write.Point, key string) any {
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// =============================================================================
// Connection
// =============================================================================

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:59999",
		Token:   "token",
		Org:     "graylogic",
		Bucket:  "nodes",
	}
	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		server  *fakeServer
		closed  bool
		wantErr error
		anyErr  bool
	}{
		{"healthy", &fakeServer{healthy: true}, false, nil, false},
		{"unhealthy", &fakeServer{healthy: false}, false, nil, true},
		{"ping error", &fakeServer{err: errors.New("refused")}, false, nil, true},
		{"closed", &fakeServer{healthy: true}, true, ErrNotConnected, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(tt.server, &fakeWriter{})
			if tt.closed {
				_ = c.Close()
			}
			err := c.HealthCheck(context.Background())
			if (err != nil) != tt.anyErr {
				t.Fatalf("HealthCheck() error = %v, wantErr %v", err, tt.anyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("HealthCheck() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClose(t *testing.T) {
	server := &fakeServer{healthy: true}
	writer := &fakeWriter{}
	c := newClient(server, writer)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if !server.closed || writer.flushes != 1 {
		t.Errorf("closed = %v, flushes = %d; want true, 1", server.closed, writer.flushes)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	c.Flush()
	c.WriteTransition("ABCDEF", "a", "b", "", time.Now())
	if writer.flushes != 1 || len(writer.points) != 0 {
		t.Errorf("writes after Close: flushes = %d, points = %d", writer.flushes, len(writer.points))
	}
}

func TestWriteErrorsCallback(t *testing.T) {
	c := newClient(&fakeServer{healthy: true}, &fakeWriter{})
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	ch := make(chan error, 1)
	ch <- errors.New("batch rejected")
	close(ch)
	c.handleWriteErrors(ch)

	select {
	case err := <-got:
		if err.Error() != "batch rejected" {
			t.Errorf("callback error = %v", err)
		}
	default:
		t.Fatal("callback not invoked")
	}
}

// =============================================================================
// Points
// =============================================================================

func TestWriteTransition(t *testing.T) {
	writer := &fakeWriter{}
	c := newClient(&fakeServer{healthy: true}, writer)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.WriteTransition("ABCDEF", "link_down", "link_up_session_down", "link acquired", at)

	if len(writer.points) != 1 {
		t.Fatalf("points = %d, want 1", len(writer.points))
	}
	p := writer.points[0]
	if p.Name() != measurementTransition {
		t.Errorf("Name() = %q", p.Name())
	}
	if tagValue(p, "device") != "ABCDEF" || tagValue(p, "from") != "link_down" || tagValue(p, "to") != "link_up_session_down" {
		t.Errorf("tags = %+v", p.TagList())
	}
	if fieldValue(p, "reason") != "link acquired" {
		t.Errorf("reason = %v", fieldValue(p, "reason"))
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
}

func TestWriteStatus(t *testing.T) {
	writer := &fakeWriter{}
	c := newClient(&fakeServer{healthy: true}, writer)

	c.WriteStatus("ABCDEF", StatusSample{
		State:       2,
		StateName:   "session_up",
		Color:       0x00FF00,
		Iterations:  42,
		Disconnects: 1,
	}, time.Now())

	p := writer.points[0]
	if p.Name() != measurementStatus || tagValue(p, "state") != "session_up" {
		t.Errorf("point = %s %+v", p.Name(), p.TagList())
	}
	if fieldValue(p, "color") != int64(0x00FF00) {
		t.Errorf("color = %v", fieldValue(p, "color"))
	}
	if fieldValue(p, "iterations") != int64(42) {
		t.Errorf("iterations = %v", fieldValue(p, "iterations"))
	}
	if fieldValue(p, "init_failed") != false {
		t.Errorf("init_failed = %v", fieldValue(p, "init_failed"))
	}
}

func TestRunSamplerStopsOnCancel(t *testing.T) {
	writer := &fakeWriter{}
	c := newClient(&fakeServer{healthy: true}, writer)
	clk := clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	samples := 0
	c.RunSampler(ctx, clk, time.Minute,
		func() string { return "ABCDEF" },
		func() StatusSample {
			samples++
			cancel()
			return StatusSample{StateName: "link_down"}
		})

	if samples != 1 || len(writer.points) != 1 {
		t.Errorf("samples = %d, points = %d; want 1, 1", samples, len(writer.points))
	}
}
