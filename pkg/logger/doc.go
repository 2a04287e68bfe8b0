// Package logger provides the structured logging interface used across streetviewdl.
//
// It wraps zerolog behind a small Logger interface so components can accept a
// logger, attach fields, and be handed a no-op or capturing logger in tests.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("component", "resolver")
//	log.InfoWithFields("Lookup finished", map[string]interface{}{
//	    "pano_id":  "CAoSLEFGMVFpcE",
//	    "attempts": 2,
//	})
//
// Console output is colourised and written to stderr. When LoggingConfig.File
// is set, JSON lines are appended to that file as well.
package logger
