package supervisor_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/link"
	"github.com/nerrad567/gray-logic-node/internal/link/linktest"
	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/session/sessiontest"
	"github.com/nerrad567/gray-logic-node/internal/status"
	"github.com/nerrad567/gray-logic-node/internal/supervisor"
	"github.com/nerrad567/gray-logic-node/internal/update"
	"github.com/nerrad567/gray-logic-node/internal/watchdog"
)

const (
	willTopic     = "graylogic/node/node-ABCDEF/status"
	livenessTopic = "unix_time/unix_time"
)

// =============================================================================
// Fakes
// =============================================================================

type recordingIndicator struct {
	codes []status.Code
}

func (r *recordingIndicator) SetColor(red, green, blue uint8) {
	for _, c := range []status.Code{status.Off, status.Cyan, status.Red, status.Yellow, status.Green} {
		if r2, g2, b2 := c.RGB(); r2 == red && g2 == green && b2 == blue {
			r.codes = append(r.codes, c)
			return
		}
	}
}

type fakeListener struct {
	hostname string
	secret   string
	begins   int
	services int
	hooks    update.Hooks
}

func (l *fakeListener) Configure(hostname, secret string) { l.hostname, l.secret = hostname, secret }
func (l *fakeListener) Begin() error                      { l.begins++; return nil }
func (l *fakeListener) Service()                          { l.services++ }
func (l *fakeListener) SetHooks(h update.Hooks)           { l.hooks = h }

type rig struct {
	clk         *clock.Fake
	radio       *linktest.Radio
	transport   *sessiontest.Transport
	listener    *fakeListener
	indicator   *recordingIndicator
	wd          *watchdog.Software
	session     *session.Manager
	resets      atomic.Int32
	connected   int
	onConnected func()
	transitions []supervisor.Transition
	sup         *supervisor.Context
}

func newRig(t *testing.T, radio *linktest.Radio, wdTimeout time.Duration, opts ...func(*supervisor.Config)) *rig {
	t.Helper()
	r := &rig{
		clk:       clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		radio:     radio,
		transport: sessiontest.NewTransport(),
		listener:  &fakeListener{},
		indicator: &recordingIndicator{},
	}
	r.wd = watchdog.NewSoftware(r.clk, func() { r.resets.Add(1) })

	wireless := link.NewWireless(radio, link.WirelessConfig{
		SSID:     "plant-net",
		Password: "pw",
		Scan:     true,
		Poll:     link.DefaultPollPolicy(),
	}, r.clk, r.wd)
	resolver := identity.NewResolver(wireless)
	arbiter := update.NewArbiter(r.listener, resolver, update.Config{
		HostnameTemplate: "node-%s",
		Secret:           "s3cret",
	}, r.wd)

	r.session = session.NewManager(session.Config{
		ClientIDTemplate:      "node-%s",
		WillTopicTemplate:     "graylogic/node/node-%s/status",
		LivenessTopicTemplate: livenessTopic,
		Retained:              true,
	}, session.Dependencies{
		Transport: r.transport,
		Clock:     r.clk,
		Expander:  resolver,
		Feeder:    r.wd,
		Servicer:  arbiter,
		Link:      link.Checker{Manager: wireless},
	})

	cfg := supervisor.Config{
		WatchdogTimeout: wdTimeout,
		Connected: func() {
			r.connected++
			if r.onConnected != nil {
				r.onConnected()
			}
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	r.sup = supervisor.New(cfg, supervisor.Dependencies{
		Clock:    r.clk,
		Link:     wireless,
		Session:  r.session,
		Arbiter:  arbiter,
		Reporter: status.NewReporter(r.indicator),
		Watchdog: r.wd,
		Identity: resolver,
	})
	r.sup.AddObserver(supervisor.ObserverFunc(func(tr supervisor.Transition) {
		r.transitions = append(r.transitions, tr)
	}))

	if err := r.sup.Boot(); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if err := r.sup.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return r
}

func plantAPs() *linktest.Radio {
	return linktest.NewRadio(
		linktest.AP("plant-net", 1, 6, -40, link.SecurityPSK),
		linktest.AP("plant-net", 2, 11, -60, link.SecurityPSK),
		linktest.AP("other-net", 3, 1, -30, link.SecurityPSK),
	)
}

// connectedRig returns a rig that has reached SessionUp.
func connectedRig(t *testing.T) *rig {
	t.Helper()
	r := newRig(t, plantAPs(), 10*time.Minute)
	ctx := context.Background()
	if s := r.sup.Step(ctx); s != status.LinkUpSessionDown {
		t.Fatalf("first Step() = %v, want link_up_session_down", s)
	}
	if s := r.sup.Step(ctx); s != status.SessionUp {
		t.Fatalf("second Step() = %v, want session_up", s)
	}
	return r
}

// =============================================================================
// End-to-end: acquisition through session
// =============================================================================

// Link fails on two full acquisitions, then succeeds on the runner-up
// access point; the session connects on the next iteration.
func TestE2E_FallbackAcquisitionThenSession(t *testing.T) {
	radio := plantAPs()
	var begins int
	runnerUp := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 2}
	radio.Accept = func(a link.Association) bool {
		begins++
		return begins == 6 && a.BSSID.String() == runnerUp.String()
	}

	r := newRig(t, radio, 10*time.Minute)
	ctx := context.Background()

	var codes []status.Code
	for i := 0; i < 4; i++ {
		r.sup.Step(ctx)
		codes = append(codes, status.ForState(r.sup.State()))
	}

	want := []status.Code{status.Red, status.Red, status.Yellow, status.Green}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("status sequence = %v, want %v", codes, want)
		}
	}

	wantIndicator := []status.Code{status.Cyan, status.Red, status.Red, status.Red, status.Yellow, status.Green}
	if len(r.indicator.codes) != len(wantIndicator) {
		t.Fatalf("indicator = %v, want %v", r.indicator.codes, wantIndicator)
	}
	for i := range wantIndicator {
		if r.indicator.codes[i] != wantIndicator[i] {
			t.Fatalf("indicator = %v, want %v", r.indicator.codes, wantIndicator)
		}
	}

	connects := r.transport.Connects()
	if len(connects) != 1 || connects[0].ClientID != "node-ABCDEF" || connects[0].WillTopic != willTopic {
		t.Errorf("connects = %+v", connects)
	}
	pubs := r.transport.Published()
	if len(pubs) != 1 || pubs[0].Topic != willTopic || pubs[0].Payload != "online" || !pubs[0].Retained {
		t.Errorf("published = %+v", pubs)
	}
	if !r.transport.Subscribed(livenessTopic) {
		t.Error("liveness topic not subscribed")
	}
	if r.connected != 1 {
		t.Errorf("connected hook ran %d times, want 1", r.connected)
	}
	if r.resets.Load() != 0 {
		t.Error("watchdog reset during recovery")
	}
}

func TestE2E_ArbiterWaitsForLink(t *testing.T) {
	radio := plantAPs()
	var begins int
	radio.Accept = func(link.Association) bool {
		begins++
		return begins > 2
	}
	r := newRig(t, radio, 10*time.Minute)
	ctx := context.Background()

	r.sup.Step(ctx)
	if r.listener.begins != 0 || r.listener.hostname != "" {
		t.Fatal("listener configured before link up")
	}

	r.sup.Step(ctx)
	if r.listener.begins != 1 || r.listener.hostname != "node-ABCDEF" || r.listener.secret != "s3cret" {
		t.Errorf("listener = %+v", r.listener)
	}

	r.sup.Step(ctx)
	r.sup.Step(ctx)
	if r.listener.begins != 1 {
		t.Errorf("Begin() called %d times, want 1", r.listener.begins)
	}
	if r.listener.services == 0 {
		t.Error("listener never serviced")
	}
}

// =============================================================================
// End-to-end: link loss
// =============================================================================

// A disconnect event while the session is up sends the next iteration to
// LinkDown and re-acquires the link before any reconnect.
func TestE2E_DisconnectReacquiresBeforeReconnect(t *testing.T) {
	r := connectedRig(t)
	ctx := context.Background()

	beginsBefore := len(r.radio.Begins())
	connectsBefore := len(r.transport.Connects())
	r.transitions = nil

	r.radio.Drop()

	if s := r.sup.Step(ctx); s != status.LinkUpSessionDown {
		t.Fatalf("Step() after drop = %v, want link_up_session_down", s)
	}
	if len(r.transitions) != 2 ||
		r.transitions[0].From != status.SessionUp || r.transitions[0].To != status.LinkDown ||
		r.transitions[1].To != status.LinkUpSessionDown {
		t.Fatalf("transitions = %+v", r.transitions)
	}
	if got := len(r.radio.Begins()); got != beginsBefore+1 {
		t.Errorf("association attempts = %d, want %d", got, beginsBefore+1)
	}
	if got := len(r.transport.Connects()); got != connectsBefore {
		t.Errorf("reconnected before re-acquisition: %d connects", got)
	}
	if r.transport.Disconnects() != 1 {
		t.Errorf("session not dropped on link loss: %d disconnects", r.transport.Disconnects())
	}

	// The cooldown since the previous attempt still applies.
	if s := r.sup.Step(ctx); s != status.LinkUpSessionDown {
		t.Fatalf("Step() inside cooldown = %v", s)
	}
	r.clk.Advance(session.DefaultCooldown)
	if s := r.sup.Step(ctx); s != status.SessionUp {
		t.Fatalf("Step() after cooldown = %v, want session_up", s)
	}
	if got := len(r.transport.Connects()); got != connectsBefore+1 {
		t.Errorf("connects = %d, want %d", got, connectsBefore+1)
	}
}

func TestE2E_SessionLossKeepsLink(t *testing.T) {
	r := connectedRig(t)
	ctx := context.Background()
	begins := len(r.radio.Begins())

	r.transport.Lose()
	if s := r.sup.Step(ctx); s != status.LinkUpSessionDown {
		t.Fatalf("Step() = %v, want link_up_session_down", s)
	}
	if len(r.radio.Begins()) != begins {
		t.Error("link re-acquired after session-only loss")
	}

	r.clk.Advance(session.DefaultCooldown)
	if s := r.sup.Step(ctx); s != status.SessionUp {
		t.Errorf("Step() = %v, want session_up", s)
	}
}

func TestE2E_PumpFailure(t *testing.T) {
	r := connectedRig(t)
	r.transport.PumpErr = context.DeadlineExceeded

	if s := r.sup.Step(context.Background()); s != status.LinkUpSessionDown {
		t.Fatalf("Step() = %v, want link_up_session_down", s)
	}
	if r.connected != 1 {
		t.Errorf("connected hook ran after pump failure (%d)", r.connected)
	}
}

// =============================================================================
// Watchdog coupling
// =============================================================================

func TestWatchdogResetsWhenLinkNeverComes(t *testing.T) {
	radio := plantAPs()
	radio.Accept = func(link.Association) bool { return false }
	r := newRig(t, radio, watchdog.DefaultTimeout)
	ctx := context.Background()

	// Each failed acquisition spends two 15s poll budgets.
	r.sup.Step(ctx)
	if r.resets.Load() != 0 {
		t.Fatal("reset before the window passed")
	}
	r.sup.Step(ctx)
	if r.resets.Load() != 1 {
		t.Errorf("resets = %d after %v without feed, want 1", r.resets.Load(), r.clk.Slept())
	}
}

func TestInboundMessagesFeedWatchdog(t *testing.T) {
	r := connectedRig(t)
	before := r.wd.Feeds()

	r.transport.Deliver(livenessTopic, "1767225600")
	r.sup.Step(context.Background())

	if r.wd.Feeds() != before+1 {
		t.Errorf("feeds = %d, want %d", r.wd.Feeds(), before+1)
	}
}

func TestReportInitFailure(t *testing.T) {
	r := connectedRig(t)
	ctx := context.Background()

	r.sup.ReportInitFailure("init failed: sensor")
	before := r.wd.Feeds()
	r.transport.Deliver(livenessTopic, "1767225600")
	r.sup.Step(ctx)

	pubs := r.transport.Published()
	last := pubs[len(pubs)-1]
	if last.Topic != willTopic || last.Payload != "init failed: sensor" || !last.Retained {
		t.Errorf("last publication = %+v", last)
	}
	if r.wd.Feeds() != before {
		t.Error("inbound message fed the watchdog after init failure")
	}
	if !r.sup.Snapshot().InitFailed {
		t.Error("Snapshot().InitFailed = false")
	}
}

// =============================================================================
// Run / Snapshot
// =============================================================================

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, plantAPs(), 10*time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	r.onConnected = func() {
		if r.connected == 3 {
			cancel()
		}
	}

	if err := r.sup.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.connected != 3 {
		t.Errorf("connected hook calls = %d, want 3", r.connected)
	}
	if r.clk.Slept() < 4*supervisor.DefaultIdleInterval {
		t.Errorf("Slept() = %v, want idle sleeps between iterations", r.clk.Slept())
	}
}

func TestSnapshot(t *testing.T) {
	r := connectedRig(t)
	snap := r.sup.Snapshot()

	if snap.StateName != "session_up" || snap.Status != "green" || snap.Color != 0x00FF00 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Device != "ABCDEF" || snap.Address != "192.168.1.50" {
		t.Errorf("device/address = %q / %q", snap.Device, snap.Address)
	}
	if snap.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", snap.Iterations)
	}
	if !snap.Since.Equal(r.clk.Now()) {
		t.Errorf("Since = %v, want %v", snap.Since, r.clk.Now())
	}
}

func TestSnapshotDeviceName(t *testing.T) {
	r := newRig(t, plantAPs(), 10*time.Minute, func(cfg *supervisor.Config) {
		cfg.Name = "boiler-%s"
	})
	if s := r.sup.Step(context.Background()); s != status.LinkUpSessionDown {
		t.Fatalf("Step() = %v, want link_up_session_down", s)
	}
	if got := r.sup.Snapshot().Device; got != "boiler-ABCDEF" {
		t.Errorf("Device = %q, want boiler-ABCDEF", got)
	}
}
