// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components obtain named child loggers via Component, so every line
// carries the subsystem it came from:
//
//	logger := logging.NewDefault()
//	ctl := logger.Component("lifecycle")
//	ctl.Info("application started", zap.String("name", "nav_app"))
package logging
