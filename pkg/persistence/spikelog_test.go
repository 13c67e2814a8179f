package persistence

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSpikeLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.spk")

	w, err := NewSpikeLogWriter(path)
	if err != nil {
		t.Fatalf("NewSpikeLogWriter failed: %v", err)
	}

	events := []SpikeEvent{
		{Step: 0, Syn: 7, Op: OpCodePreSpike},
		{Step: 3, Syn: 7, Op: OpCodePreSpike},
		{Step: 3, Syn: 12, Op: OpCodePostSpike},
		{Step: 1<<40 + 5, Syn: 1<<31 + 1, Op: OpCodePreSpike},
	}
	for _, ev := range events {
		if err := w.Append(ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var got []SpikeEvent
	err = ReplaySpikeLog(path, func(ev SpikeEvent) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplaySpikeLog failed: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("got %d events, want %d", len(got), len(events))
	}
	for i, ev := range events {
		if got[i] != ev {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], ev)
		}
	}
}

func TestReplayMissingFileIsClean(t *testing.T) {
	err := ReplaySpikeLog(filepath.Join(t.TempDir(), "nope.spk"), func(SpikeEvent) error {
		t.Fatal("callback invoked for missing file")
		return nil
	})
	if err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestReplayToleratesTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.spk")

	w, err := NewSpikeLogWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Append(SpikeEvent{Step: uint64(i), Syn: 1, Op: OpCodePreSpike}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Cut the file mid-frame, as a crash during append would.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-5], 0666); err != nil {
		t.Fatal(err)
	}

	count := 0
	err = ReplaySpikeLog(path, func(SpikeEvent) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("replay of truncated log failed: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d intact events, want 2", count)
	}
}

func TestReadSpikeEventRejectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.spk")
	fw, err := NewSpikeLogWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := fw.Append(SpikeEvent{Step: 9, Syn: 4, Op: OpCodePreSpike}); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("BadMagic", func(t *testing.T) {
		frame := append([]byte{}, data...)
		frame[0] = 0x00
		_, _, err := ReadSpikeEvent(bytes.NewReader(frame))
		if !errors.Is(err, ErrInvalidMagic) {
			t.Errorf("got %v, want ErrInvalidMagic", err)
		}
	})

	t.Run("BadOpCode", func(t *testing.T) {
		frame := append([]byte{}, data...)
		frame[1] = 0x7f
		_, _, err := ReadSpikeEvent(bytes.NewReader(frame))
		if !errors.Is(err, ErrUnknownOpCode) {
			t.Errorf("got %v, want ErrUnknownOpCode", err)
		}
	})

	t.Run("FlippedPayloadBit", func(t *testing.T) {
		frame := append([]byte{}, data...)
		frame[len(frame)-1] ^= 0x01
		_, _, err := ReadSpikeEvent(bytes.NewReader(frame))
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("got %v, want ErrChecksumMismatch", err)
		}
	})

	t.Run("ValidFrame", func(t *testing.T) {
		ev, n, err := ReadSpikeEvent(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("valid frame rejected: %v", err)
		}
		if n != HeaderSize+12 {
			t.Errorf("frame size: got %d, want %d", n, HeaderSize+12)
		}
		if ev.Step != 9 || ev.Syn != 4 || ev.Op != OpCodePreSpike {
			t.Errorf("decoded %+v", ev)
		}
	})
}

func TestSpikeLogTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.spk")

	w, err := NewSpikeLogWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(SpikeEvent{Step: 1, Syn: 2, Op: OpCodePreSpike}); err != nil {
		t.Fatal(err)
	}
	if err := w.Truncate(); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if err := w.Append(SpikeEvent{Step: 5, Syn: 6, Op: OpCodePostSpike}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var got []SpikeEvent
	if err := ReplaySpikeLog(path, func(ev SpikeEvent) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Step != 5 {
		t.Errorf("after truncate: got %+v", got)
	}
}
