// Package logging provides structured logging for the node.
//
// This package wraps log/slog. The output is the node's diagnostic stream:
// link scans, association attempts, broker connects and update activity are
// all reported here with a component attribute.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	log := logger.Component("supervisor")
//	log.Info("state changed", "from", "link_down", "to", "link_up_session_down")
//
// Never log link passwords, broker credentials or the update secret.
package logging
