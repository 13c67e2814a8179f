package persistence

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LazySpikeLogWriter provides asynchronous, batched appends for the spike log.
// At high firing rates every step can append thousands of events, so the lazy
// writer buffers them and flushes periodically or when the buffer fills,
// rather than flushing on every append.
//
// Durability guarantees:
// - Events are flushed periodically based on time (default: every 100ms) or buffer size (default: 4096 events)
// - A forced sync to disk occurs every 1 second
// - On Close(), all pending events are flushed and synced to disk
// - In case of crash, maximum data loss window is ~1 second (configurable via the sync interval)
type LazySpikeLogWriter struct {
	// underlying is the actual writer that performs the disk operations
	underlying *SpikeLogWriter

	// buffer holds pending events before flushing
	buffer []SpikeEvent

	// mu protects the buffer and other internal state
	mu sync.Mutex

	// flushTicker triggers periodic flushes based on time
	flushTicker *time.Ticker

	// syncTicker triggers periodic forced fsync operations for durability
	syncTicker *time.Ticker

	// stopCh signals the background goroutines to stop
	stopCh chan struct{}

	// stopped indicates whether the writer has been closed
	stopped bool

	flushInterval     time.Duration
	forceSyncInterval time.Duration
	maxBufferSize     int
}

// Default configuration constants for LazySpikeLogWriter.
const (
	// DefaultLazyFlushInterval is the default time between buffer flushes to the OS.
	DefaultLazyFlushInterval = 100 * time.Millisecond

	// DefaultForceSyncInterval is the default time between forced fsync operations,
	// limiting potential data loss to approximately 1 second of events in case of crash.
	DefaultForceSyncInterval = 1 * time.Second

	// DefaultMaxBufferSize is the default maximum number of buffered events.
	// When the buffer reaches this size, a flush is triggered immediately.
	DefaultMaxBufferSize = 4096
)

// NewLazySpikeLogWriter creates a lazy writer that wraps an existing SpikeLogWriter.
// The underlying writer should not be used directly after wrapping it.
func NewLazySpikeLogWriter(underlying *SpikeLogWriter) *LazySpikeLogWriter {
	return NewLazySpikeLogWriterWithConfig(
		underlying,
		DefaultLazyFlushInterval,
		DefaultForceSyncInterval,
		DefaultMaxBufferSize,
	)
}

// NewLazySpikeLogWriterWithConfig creates a lazy writer with custom flush and
// sync intervals, for tuning the durability vs throughput trade-off.
func NewLazySpikeLogWriterWithConfig(
	underlying *SpikeLogWriter,
	flushInterval time.Duration,
	forceSyncInterval time.Duration,
	maxBufferSize int,
) *LazySpikeLogWriter {
	lw := &LazySpikeLogWriter{
		underlying:        underlying,
		buffer:            make([]SpikeEvent, 0, maxBufferSize),
		flushInterval:     flushInterval,
		forceSyncInterval: forceSyncInterval,
		maxBufferSize:     maxBufferSize,
		stopCh:            make(chan struct{}),
	}

	lw.flushTicker = time.NewTicker(flushInterval)
	go lw.flushRoutine()

	lw.syncTicker = time.NewTicker(forceSyncInterval)
	go lw.syncRoutine()

	slog.Info("LazySpikeLogWriter initialized",
		"flush_interval", flushInterval,
		"sync_interval", forceSyncInterval,
		"max_buffer_size", maxBufferSize,
	)

	return lw
}

// Append adds an event to the internal buffer for later flushing.
// This method is non-blocking; the actual disk write happens asynchronously.
// If the buffer reaches maxBufferSize, an immediate flush is triggered.
func (lw *LazySpikeLogWriter) Append(ev SpikeEvent) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.stopped {
		return fmt.Errorf("cannot append to closed LazySpikeLogWriter")
	}

	lw.buffer = append(lw.buffer, ev)

	if len(lw.buffer) >= lw.maxBufferSize {
		go lw.Flush()
	}

	return nil
}

// Flush immediately writes all buffered events to the underlying writer.
// Note: this only flushes to the OS buffer, not necessarily to disk (use Sync for that).
func (lw *LazySpikeLogWriter) Flush() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	return lw.flushUnlocked()
}

// flushUnlocked performs the actual flush operation.
// Caller must hold the mutex.
func (lw *LazySpikeLogWriter) flushUnlocked() error {
	if len(lw.buffer) == 0 {
		return nil
	}

	for _, ev := range lw.buffer {
		if err := lw.underlying.Append(ev); err != nil {
			return fmt.Errorf("failed to append to spike log: %w", err)
		}
	}

	if err := lw.underlying.Flush(); err != nil {
		return fmt.Errorf("failed to flush spike log buffer: %w", err)
	}

	lw.buffer = lw.buffer[:0]

	return nil
}

// Sync forces a flush to disk (fsync) for durability.
func (lw *LazySpikeLogWriter) Sync() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.flushUnlocked(); err != nil {
		return err
	}

	return lw.underlying.Sync()
}

// Truncate clears the log content via the underlying writer, dropping any
// buffered events first. Used when a fresh checkpoint supersedes the log.
func (lw *LazySpikeLogWriter) Truncate() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.buffer = lw.buffer[:0]
	return lw.underlying.Truncate()
}

// Close gracefully shuts down the lazy writer: stops the background routines,
// flushes any pending events, and syncs to disk. After Close(), no more
// appends are accepted.
func (lw *LazySpikeLogWriter) Close() error {
	lw.mu.Lock()
	if lw.stopped {
		lw.mu.Unlock()
		return fmt.Errorf("LazySpikeLogWriter already closed")
	}
	lw.stopped = true
	lw.mu.Unlock()

	close(lw.stopCh)
	lw.flushTicker.Stop()
	lw.syncTicker.Stop()

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.flushUnlocked(); err != nil {
		slog.Error("Failed to flush during Close", "error", err)
		// Continue to try closing underlying even if flush failed
	}

	return lw.underlying.Close()
}

// Path returns the file path of the underlying writer.
func (lw *LazySpikeLogWriter) Path() string {
	return lw.underlying.Path()
}

// flushRoutine runs in a background goroutine and periodically flushes the buffer.
func (lw *LazySpikeLogWriter) flushRoutine() {
	for {
		select {
		case <-lw.flushTicker.C:
			if err := lw.Flush(); err != nil {
				slog.Error("Periodic flush failed", "error", err)
			}
		case <-lw.stopCh:
			return
		}
	}
}

// syncRoutine runs in a background goroutine and periodically forces fsync,
// even if the buffer hasn't filled or the flush interval hasn't triggered yet.
func (lw *LazySpikeLogWriter) syncRoutine() {
	for {
		select {
		case <-lw.syncTicker.C:
			if err := lw.Sync(); err != nil {
				slog.Error("Periodic sync failed", "error", err)
			}
		case <-lw.stopCh:
			return
		}
	}
}
