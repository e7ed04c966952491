// Package runtime wires configuration, logging, metrics and the cursor
// backend into a single open backlog.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Cursor.Backend = config.CursorBackendPebble
//	rt, report, err := runtime.Open(runtime.Options{DataDir: "./data", Config: cfg, Registry: prometheus.NewRegistry()})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	if !report.Empty() {
//	    // recovery discarded report.Frames() frames
//	}
//	seq, _ := rt.Backlog().Append(ctx, []byte("hello"))
package runtime
