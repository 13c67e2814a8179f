package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// Constants for the spike-log binary protocol.
const (
	// MagicByte is the marker used to identify the start of a valid frame.
	// It helps in scanning for recovery if the file is heavily corrupted.
	MagicByte = 0xA7

	// HeaderSize is the fixed size of the frame metadata:
	// 1 byte (Magic) + 1 byte (OpCode) + 4 bytes (Length) + 4 bytes (CRC32) = 10 bytes.
	HeaderSize = 10

	// OpCodePreSpike records a pre-side spike entered on an edge.
	OpCodePreSpike = 0x01
	// OpCodePostSpike records a post-side spike entered on an edge.
	OpCodePostSpike = 0x02

	// spikePayloadSize is the fixed payload: step (uint64) + synapse index (uint32).
	spikePayloadSize = 12
)

var (
	// ErrInvalidMagic indicates the file stream lost synchronization or is not a valid spike log.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates data corruption within the frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the file ended abruptly (e.g., power loss during write).
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrUnknownOpCode indicates a frame with an op code this version does not understand.
	ErrUnknownOpCode = errors.New("unknown op code")
)

// SpikeEvent is one logged spike entry: which edge, at which step, on which side.
type SpikeEvent struct {
	Step uint64
	Syn  uint32
	Op   byte
}

// SpikeLogWriter manages appending spike event frames to the log file.
type SpikeLogWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// NewSpikeLogWriter opens or creates a spike log at the given path.
func NewSpikeLogWriter(path string) (*SpikeLogWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open spike log: %w", err)
	}

	return &SpikeLogWriter{
		file: file,
		buf:  bufio.NewWriter(file), // 4kb buf (default)
		path: path,
	}, nil
}

// Append encodes the event into a binary frame and writes it.
// Frame Format: [Magic(1)][OpCode(1)][Length(4)][CRC(4)][Payload(12)]
func (w *SpikeLogWriter) Append(ev SpikeEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var payload [spikePayloadSize]byte
	binary.LittleEndian.PutUint64(payload[0:8], ev.Step)
	binary.LittleEndian.PutUint32(payload[8:12], ev.Syn)

	var header [HeaderSize]byte
	header[0] = MagicByte
	header[1] = ev.Op
	binary.LittleEndian.PutUint32(header[2:6], spikePayloadSize)
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload[:]))

	// Header and payload go through the same bufio.Writer so the frame
	// reaches the file in a single write on flush.
	if _, err := w.buf.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.buf.Write(payload[:]); err != nil {
		return err
	}
	return nil
}

// Flush forces the buffer contents to be written to the os file descriptor.
func (w *SpikeLogWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Sync forces a flush to disk (fsync).
func (w *SpikeLogWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close closes the underlying file.
func (w *SpikeLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// Truncate clears the file content. Used when a checkpoint supersedes the log.
func (w *SpikeLogWriter) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Reset(w.file)

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, 0)
	return err
}

// Path returns the file path.
func (w *SpikeLogWriter) Path() string {
	return w.path
}

// ReadSpikeEvent reads the next frame from the reader.
// It validates the Magic Byte and the CRC32 Checksum.
// Returns the event, the total bytes read (header + payload), and an error.
func ReadSpikeEvent(r io.Reader) (SpikeEvent, int, error) {
	var header [HeaderSize]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		// EOF exactly at a frame boundary is a clean exit; partial reads
		// mean the file was cut mid-frame.
		if err == io.EOF {
			return SpikeEvent{}, 0, io.EOF
		}
		return SpikeEvent{}, 0, ErrIncompleteFrame
	}

	if header[0] != MagicByte {
		return SpikeEvent{}, HeaderSize, ErrInvalidMagic
	}
	op := header[1]
	if op != OpCodePreSpike && op != OpCodePostSpike {
		return SpikeEvent{}, HeaderSize, fmt.Errorf("op 0x%02x: %w", op, ErrUnknownOpCode)
	}

	length := binary.LittleEndian.Uint32(header[2:6])
	expectedCRC := binary.LittleEndian.Uint32(header[6:10])
	if length != spikePayloadSize {
		return SpikeEvent{}, HeaderSize, fmt.Errorf("payload length %d: %w", length, ErrIncompleteFrame)
	}

	var payload [spikePayloadSize]byte
	if _, err := io.ReadFull(r, payload[:]); err != nil {
		return SpikeEvent{}, HeaderSize, ErrIncompleteFrame
	}

	if crc32.ChecksumIEEE(payload[:]) != expectedCRC {
		return SpikeEvent{}, HeaderSize + spikePayloadSize, ErrChecksumMismatch
	}

	ev := SpikeEvent{
		Step: binary.LittleEndian.Uint64(payload[0:8]),
		Syn:  binary.LittleEndian.Uint32(payload[8:12]),
		Op:   op,
	}
	return ev, HeaderSize + spikePayloadSize, nil
}

// ReplaySpikeLog reads every frame of the log at path and invokes fn for each
// event in order. A trailing incomplete frame terminates replay cleanly; any
// other corruption is reported with the byte offset where it was found.
func ReplaySpikeLog(path string, fn func(SpikeEvent) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open spike log: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	offset := 0
	for {
		ev, n, err := ReadSpikeEvent(r)
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, ErrIncompleteFrame) {
			// Cut-off tail from a crash mid-append; everything before it
			// is intact.
			return nil
		}
		if err != nil {
			return fmt.Errorf("spike log corrupt at offset %d: %w", offset, err)
		}
		offset += n
		if err := fn(ev); err != nil {
			return err
		}
	}
}
