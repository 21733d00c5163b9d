// Package logger wraps zerolog behind a small Logger interface.
//
// The backup writes every record to stdout (colored console output unless
// the format is "json") and, when a log file is configured, appends the same
// records as JSON lines to that file.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("blog", "staff")
//	log.InfoWithFields("blog backed up", map[string]interface{}{"new": 12})
//
// Tests use NewTestLogger to capture records or NewNopLogger to discard them.
package logger
