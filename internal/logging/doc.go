// Package logging provides structured logging for crossing episodes.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation. Every vehicle goroutine in an episode logs through a
// child logger carrying its episode, fleet and vehicle identity, so that the
// interleaved output of a multi-goroutine run can be filtered after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/episode", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	leaderLog := logger.WithEpisode(id).WithFleet(0, 1).WithPhase("COLLECT_STATES")
//	leaderLog.Info("waiting for states", "missing", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"waiting for states","episode_id":"...","lane":0,"fleet":1,"phase":"COLLECT_STATES","missing":3}
//
// # Testing
//
// Use [NopLogger] to discard all output, or [NewLoggerTo] to capture it.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package logging
