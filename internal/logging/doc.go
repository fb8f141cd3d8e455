// Package logging provides structured logging for crew processes.
//
// Every worker, leader, and monitor process writes JSON lines through a
// [Logger] that wraps log/slog. Child loggers carry persistent context so a
// single log file can be filtered by team, worker, or phase after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/state/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	workerLog := logger.WithTeam("alpha").WithWorker("worker-1")
//	workerLog.Info("claimed task", "task_id", "t-3")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"claimed task","team":"alpha","worker":"worker-1","task_id":"t-3"}
//
// # Testing
//
// Use [NopLogger] to discard output in tests. Stores default to it when no
// logger option is supplied.
package logging
