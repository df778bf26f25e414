package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/link"
	"github.com/nerrad567/gray-logic-node/internal/process"
)

const (
	scanTimeout    = 15 * time.Second
	connectTimeout = 45 * time.Second
	queryTimeout   = 5 * time.Second

	// connectionName is the NetworkManager profile used for enterprise
	// networks.
	connectionName = "graylogic-node"
)

// ErrNoSSID is returned by Begin when the association names no network.
var ErrNoSSID = errors.New("host: association has no SSID")

// Logger defines the logging interface for host adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// linkState is the interface state last streamed by the monitor.
type linkState int

const (
	stateUnknown linkState = iota
	stateDown
	stateUp
)

// NMRadio implements link.Radio with NetworkManager.
//
// While Watch is running, Connected answers from the state streamed by
// "nmcli device monitor" and only queries NetworkManager when that state is
// unknown. Disconnect events caused by the radio's own Disconnect or Begin
// are not reported; reporting resumes once the monitor shows the new
// activation.
type NMRadio struct {
	nmcli  string
	iface  string
	runner Runner
	lookup interfaceFunc
	addrs  addrsFunc
	logger Logger

	mu        sync.Mutex
	callbacks []func()
	cancel    context.CancelFunc
	begins    sync.WaitGroup
	monitor   *process.Manager

	stateMu      sync.Mutex
	state        linkState
	stateVersion uint64
	watching     bool
	settling     bool
}

// NewNMRadio returns a radio driving iface through the nmcli binary.
func NewNMRadio(nmcli, iface string, runner Runner) *NMRadio {
	if nmcli == "" {
		nmcli = "nmcli"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &NMRadio{
		nmcli:  nmcli,
		iface:  iface,
		runner: runner,
		lookup: net.InterfaceByName,
		addrs:  systemAddrs,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Call before Watch.
func (r *NMRadio) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Watch starts "nmcli device monitor" for the interface. Its output raises
// disconnect events until ctx is cancelled or Close is called.
func (r *NMRadio) Watch(ctx context.Context) error {
	cfg := process.DefaultConfig("nmcli-monitor", r.nmcli, []string{"device", "monitor", r.iface})
	cfg.OnLine = r.handleMonitorLine
	cfg.OnStart = r.monitorStarted
	cfg.OnStop = func(error) { r.monitorStopped() }
	mgr := process.NewManager(cfg)
	mgr.SetLogger(r.logger)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("starting nmcli monitor: %w", err)
	}
	r.mu.Lock()
	r.monitor = mgr
	r.mu.Unlock()
	return nil
}

// Close stops the monitor and any in-flight association.
func (r *NMRadio) Close() error {
	r.mu.Lock()
	mgr := r.monitor
	r.monitor = nil
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
	r.begins.Wait()
	if mgr != nil {
		return mgr.Stop()
	}
	return nil
}

// monitorStarted and monitorStopped bracket each run of the monitor
// process. A fresh monitor does not print the current state, so it starts
// unknown.
func (r *NMRadio) monitorStarted() {
	r.stateMu.Lock()
	r.watching = true
	r.setStateLocked(stateUnknown)
	r.stateMu.Unlock()
}

func (r *NMRadio) monitorStopped() {
	r.stateMu.Lock()
	r.watching = false
	r.setStateLocked(stateUnknown)
	r.stateMu.Unlock()
}

func (r *NMRadio) setStateLocked(s linkState) {
	r.state = s
	r.stateVersion++
}

// beginSettling is called before the radio itself tears the link down. The
// resulting disconnect line is not reported.
func (r *NMRadio) beginSettling() {
	r.stateMu.Lock()
	r.settling = true
	r.setStateLocked(stateUnknown)
	r.stateMu.Unlock()
}

func isDisconnectState(state string) bool {
	return state == "disconnected" || state == "unavailable" ||
		strings.HasPrefix(state, "connection failed") ||
		strings.HasPrefix(state, "device removed")
}

func isConnectedState(state string) bool {
	return state == "connected" || strings.HasPrefix(state, "connected ")
}

// handleMonitorLine tracks the interface state and fires disconnect
// callbacks for lines such as "wlan0: disconnected" or "wlan0: unavailable".
func (r *NMRadio) handleMonitorLine(line string) {
	dev, state, ok := strings.Cut(line, ":")
	if !ok || strings.TrimSpace(dev) != r.iface {
		return
	}
	state = strings.TrimSpace(state)
	disconnect := isDisconnectState(state)

	r.stateMu.Lock()
	switch {
	case isConnectedState(state):
		r.setStateLocked(stateUp)
		r.settling = false
	case strings.HasPrefix(state, "connecting"):
		r.setStateLocked(stateDown)
		r.settling = false
	case disconnect, state == "deactivating":
		r.setStateLocked(stateDown)
	}
	settling := r.settling
	r.stateMu.Unlock()

	if !disconnect {
		return
	}
	if settling {
		r.logger.Debug("wifi disconnect event from own teardown", "interface", r.iface, "state", state)
		return
	}
	r.logger.Debug("wifi disconnect event", "interface", r.iface, "state", state)

	r.mu.Lock()
	callbacks := append([]func(){}, r.callbacks...)
	r.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// OnDisconnect registers fn to run on every disconnect event.
func (r *NMRadio) OnDisconnect(fn func()) {
	r.mu.Lock()
	r.callbacks = append(r.callbacks, fn)
	r.mu.Unlock()
}

// Scan rescans and returns the access points visible to the interface.
func (r *NMRadio) Scan(ctx context.Context) ([]link.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()
	out, err := r.runner.Run(ctx, r.nmcli,
		"-t", "-f", "SSID,BSSID,CHAN,SIGNAL,SECURITY",
		"device", "wifi", "list", "ifname", r.iface, "--rescan", "yes")
	if err != nil {
		return nil, fmt.Errorf("scanning: %w", err)
	}
	return parseScan(string(out)), nil
}

// Begin starts association in the background. Progress is observed
// through Connected.
func (r *NMRadio) Begin(a link.Association) error {
	if a.SSID == "" {
		return ErrNoSSID
	}

	var steps [][]string
	if a.Enterprise {
		steps = r.enterpriseArgs(a)
	} else {
		steps = [][]string{r.pskArgs(a)}
	}

	r.beginSettling()
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	r.mu.Unlock()

	r.begins.Add(1)
	go func() {
		defer r.begins.Done()
		defer cancel()
		for i, args := range steps {
			if _, err := r.runner.Run(ctx, r.nmcli, args...); err != nil {
				if a.Enterprise && i == 0 {
					// No previous profile.
					continue
				}
				if ctx.Err() == nil {
					r.logger.Warn("wifi association failed", "ssid", a.SSID, "error", err)
				}
				return
			}
		}
	}()
	return nil
}

func (r *NMRadio) pskArgs(a link.Association) []string {
	args := []string{"device", "wifi", "connect", a.SSID}
	if a.Password != "" {
		args = append(args, "password", a.Password)
	}
	if a.Pinned() {
		args = append(args, "bssid", a.BSSID.String())
	}
	return append(args, "ifname", r.iface)
}

// enterpriseArgs builds a PEAP/MSCHAPv2 profile for the node and
// activates it. Any previous profile is removed first.
func (r *NMRadio) enterpriseArgs(a link.Association) [][]string {
	add := []string{
		"connection", "add", "type", "wifi",
		"con-name", connectionName,
		"ifname", r.iface,
		"ssid", a.SSID,
		"wifi-sec.key-mgmt", "wpa-eap",
		"802-1x.eap", "peap",
		"802-1x.phase2-auth", "mschapv2",
		"802-1x.identity", a.Username,
		"802-1x.password", a.Password,
	}
	if a.Pinned() {
		add = append(add, "802-11-wireless.bssid", a.BSSID.String())
	}
	return [][]string{
		{"connection", "delete", connectionName},
		add,
		{"connection", "up", connectionName},
	}
}

// Connected reports whether NetworkManager has the interface connected.
func (r *NMRadio) Connected() bool {
	r.stateMu.Lock()
	watching, state, version := r.watching, r.state, r.stateVersion
	r.stateMu.Unlock()
	if watching && state != stateUnknown {
		return state == stateUp
	}

	up := r.queryConnected()
	if watching {
		r.stateMu.Lock()
		// A monitor line that arrived during the query wins.
		if r.watching && r.stateVersion == version {
			if up {
				r.setStateLocked(stateUp)
			} else {
				r.setStateLocked(stateDown)
			}
		}
		r.stateMu.Unlock()
	}
	return up
}

func (r *NMRadio) queryConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	out, err := r.runner.Run(ctx, r.nmcli, "-t", "-f", "DEVICE,STATE", "device", "status")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := splitTerse(line)
		if len(fields) < 2 || fields[0] != r.iface {
			continue
		}
		return isConnectedState(fields[1])
	}
	return false
}

// Disconnect cancels any association in progress and drops the link.
func (r *NMRadio) Disconnect() {
	r.beginSettling()
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
	r.begins.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if _, err := r.runner.Run(ctx, r.nmcli, "device", "disconnect", r.iface); err != nil {
		r.logger.Debug("wifi disconnect", "interface", r.iface, "error", err)
	}
}

// LocalAddress returns the interface's IPv4 address, or "".
func (r *NMRadio) LocalAddress() string {
	iface, err := r.lookup(r.iface)
	if err != nil {
		return ""
	}
	addrs, err := r.addrs(iface)
	if err != nil {
		return ""
	}
	return firstIPv4(addrs)
}

// HardwareAddress returns the interface MAC, or nil.
func (r *NMRadio) HardwareAddress() net.HardwareAddr {
	iface, err := r.lookup(r.iface)
	if err != nil {
		return nil
	}
	return iface.HardwareAddr
}

// parseScan parses "nmcli -t -f SSID,BSSID,CHAN,SIGNAL,SECURITY" output.
// Hidden networks and malformed lines are skipped.
func parseScan(out string) []link.ScanResult {
	var results []link.ScanResult
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) != 5 || fields[0] == "" { //nolint:mnd // five requested fields
			continue
		}
		bssid, err := net.ParseMAC(fields[1])
		if err != nil {
			continue
		}
		channel, _ := strconv.Atoi(fields[2])
		signal, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		results = append(results, link.ScanResult{
			SSID:     fields[0],
			BSSID:    bssid,
			Channel:  channel,
			RSSI:     signalToRSSI(signal),
			Security: parseSecurity(fields[4]),
		})
	}
	return results
}

// signalToRSSI maps NetworkManager's 0-100 quality to approximate dBm.
func signalToRSSI(quality int) int {
	return quality/2 - 100 //nolint:mnd // linear quality to dBm
}

func parseSecurity(s string) link.Security {
	switch {
	case s == "" || s == "--":
		return link.SecurityOpen
	case strings.Contains(s, "802.1X"):
		return link.SecurityEnterprise
	default:
		return link.SecurityPSK
	}
}

// splitTerse splits one line of nmcli terse output on unescaped colons.
func splitTerse(line string) []string {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return nil
	}
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	return append(fields, cur.String())
}

var _ link.Radio = (*NMRadio)(nil)
