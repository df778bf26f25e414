// Package diag serves the node's local diagnostics over HTTP.
//
// Routes:
//
//	GET /api/v1/health      component health checks
//	GET /api/v1/status      supervisor snapshot, boot id and boot count
//	GET /api/v1/journal     recent boots and transitions
//	GET /api/v1/status/ws   live transition stream (WebSocket)
//	GET /metrics            Prometheus exposition
//
// The server binds to loopback by default and has no authentication; it is
// meant for a technician on the device or an SSH tunnel.
//
//	srv, err := diag.New(deps)
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Close()
package diag
