// Package gclog provides the structured collection-cycle tracing described
// by SPEC_FULL.md's ambient logging section: a thin go.uber.org/zap
// wrapper reproducing the teacher's GODEBUG=gctrace=1 line, one Info-level
// record per collection plus Debug-level records for SSB flushes and
// broken-heart forwarding.
package gclog

import "go.uber.org/zap"

// Logger is the collection tracer embedded by Heap and Heaplet. The zero
// value is not usable; construct with New or Nop.
type Logger struct {
	z *zap.Logger
}

// New wraps an existing *zap.Logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything, the default for tests and
// for callers that pass a nil *zap.Logger to NewHeap.
func Nop() *Logger { return New(zap.NewNop()) }

// Collection logs one completed collection cycle at Info level.
func (l *Logger) Collection(kind, heaplet string, bytesCopied, survived uint64, genBefore, genAfter string, forced bool, durationNanos int64) {
	l.z.Info("collection",
		zap.String("kind", kind),
		zap.String("heaplet", heaplet),
		zap.Uint64("bytes_copied", bytesCopied),
		zap.Uint64("survived", survived),
		zap.String("generation_before", genBefore),
		zap.String("generation_after", genAfter),
		zap.Bool("forced", forced),
		zap.Int64("duration_ns", durationNanos),
	)
}

// SSBFlush logs one SSB flush at Debug level.
func (l *Logger) SSBFlush(heaplet string, entries, keptInRememberedSet int, incidental bool) {
	l.z.Debug("ssb_flush",
		zap.String("heaplet", heaplet),
		zap.Int("entries", entries),
		zap.Int("kept_in_remembered_set", keptInRememberedSet),
		zap.Bool("incidental", incidental),
	)
}

// Forward logs one broken-heart forwarding at Debug level.
func (l *Logger) Forward(shape string, fromRaw, toRaw uintptr) {
	l.z.Debug("forward",
		zap.String("shape", shape),
		zap.Uintptr("from", fromRaw),
		zap.Uintptr("to", toRaw),
	)
}

// Fatal logs a fatal diagnostic (§7: "a stderr diagnostic indicating the
// condition and source location"). It does not itself terminate the
// process — internal/gc.fatal does that with a panic immediately after
// logging, so that a test harness can recover() around the fatal path
// instead of the whole process going down via zap's own os.Exit(1).
func (l *Logger) Fatal(reason string, err error) {
	l.z.Error("fatal", zap.String("reason", reason), zap.Error(err))
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }
