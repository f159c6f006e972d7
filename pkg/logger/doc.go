// Package logger wraps zerolog behind a small structured logging interface.
//
// Components take a Logger in their constructor and fall back to the global
// logger (see Initialize and GetLogger) when given nil. Tests use
// NewNopLogger to silence output or NewTestLogger to assert on what was logged.
//
//	log := logger.GetLogger().WithField("entity_id", "12345")
//	log.InfoWithFields("clips fetched", map[string]interface{}{
//	    "pages": 4,
//	    "clips": 312,
//	})
package logger
