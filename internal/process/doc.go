// Package process supervises long-running helper subprocesses.
//
// The node uses it to keep event monitors such as "nmcli monitor" alive and
// to stream their output, line by line, into the component that asked for
// them.
//
// Features:
//   - Start/stop with SIGTERM then SIGKILL on the whole process group
//   - Restart on unexpected exit with capped exponential backoff
//   - Line callback for stdout, debug logging for stderr
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "nmcli-monitor",
//	    Binary: "nmcli",
//	    Args:   []string{"monitor"},
//	    OnLine: func(line string) { ... },
//	    RestartOnFailure: true,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
