package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T, dir string, segSize int64) *Journal {
	t.Helper()
	j, err := Open(Config{Dir: dir, SegmentSize: segSize})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendReplay(t *testing.T) {
	dir := t.TempDir()
	j := openTest(t, dir, 1<<20)

	for seq := uint64(1); seq <= 5; seq++ {
		data, err := EncodeFields(map[string]any{"cycle": seq, "mixed": seq%2 == 0})
		if err != nil {
			t.Fatal(err)
		}
		if err := j.Append(NewRecord(RecordCycle, seq, data)); err != nil {
			t.Fatal(err)
		}
	}

	var got []uint64
	last, err := Replay(dir, func(r *Record) error {
		if r.Type != RecordCycle {
			t.Errorf("type = %s", r.Type)
		}
		fields, err := DecodeFields(r.Data)
		if err != nil {
			return err
		}
		if fields["cycle"].(float64) != float64(r.Seq) {
			t.Errorf("payload cycle %v for seq %d", fields["cycle"], r.Seq)
		}
		got = append(got, r.Seq)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if last != 5 || len(got) != 5 {
		t.Fatalf("last=%d records=%v", last, got)
	}
}

func TestRotationAndReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	for seq := uint64(1); seq <= 4; seq++ {
		if err := j.Append(NewRecord(RecordCycle, seq, make([]byte, 40))); err != nil {
			t.Fatal(err)
		}
	}
	if j.Segment() != 4 {
		t.Fatalf("segment = %d, want 4", j.Segment())
	}
	_ = j.Close()

	j = openTest(t, dir, 64)
	if j.Segment() != 4 {
		t.Fatalf("reopened at segment %d, want 4", j.Segment())
	}
	if err := j.Append(NewRecord(RecordCycle, 5, nil)); err != nil {
		t.Fatal(err)
	}
	last, err := Replay(dir, func(*Record) error { return nil })
	if err != nil || last != 5 {
		t.Fatalf("Replay = %d, %v", last, err)
	}
}

func TestRotationByDuration(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentDuration: time.Nanosecond})
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	time.Sleep(time.Millisecond)
	if err := j.Append(NewRecord(RecordCycle, 1, nil)); err != nil {
		t.Fatal(err)
	}
	if j.Segment() != 1 {
		t.Fatalf("segment = %d, want 1", j.Segment())
	}
}

func TestReplayRejectsNonMonotonic(t *testing.T) {
	dir := t.TempDir()
	j := openTest(t, dir, 1<<20)
	_ = j.Append(NewRecord(RecordCycle, 2, nil))
	_ = j.Append(NewRecord(RecordCycle, 2, nil))

	if _, err := Replay(dir, func(*Record) error { return nil }); err == nil {
		t.Fatal("Replay accepted a repeated sequence")
	}
}

func TestReplayDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	j := openTest(t, dir, 1<<20)
	_ = j.Append(NewRecord(RecordCycle, 1, []byte("payload")))

	path := segmentPath(dir, 0)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	b[headerSize] ^= 0xff
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Replay(dir, func(*Record) error { return nil }); err == nil {
		t.Fatal("Replay accepted a corrupt frame")
	}
}

func TestReplayToleratesTornTail(t *testing.T) {
	dir := t.TempDir()
	j := openTest(t, dir, 1<<20)
	_ = j.Append(NewRecord(RecordCycle, 1, []byte("a")))
	_ = j.Append(NewRecord(RecordCycle, 2, []byte("b")))

	path := segmentPath(dir, 0)
	b, _ := os.ReadFile(path)
	if err := os.WriteFile(path, b[:len(b)-3], 0o644); err != nil {
		t.Fatal(err)
	}
	last, err := Replay(dir, func(*Record) error { return nil })
	if err != nil || last != 1 {
		t.Fatalf("Replay = %d, %v", last, err)
	}
}

func TestTruncateBefore(t *testing.T) {
	dir := t.TempDir()
	j := openTest(t, dir, 32)
	for seq := uint64(1); seq <= 3; seq++ {
		_ = j.Append(NewRecord(RecordCycle, seq, make([]byte, 16)))
	}
	if err := j.TruncateBefore(2); err != nil {
		t.Fatal(err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, segmentPattern))
	// segments 0 and 1 dropped, 2 holds seq 3, 3 is current
	if len(files) != 2 {
		t.Fatalf("segments left = %v", files)
	}
	var seqs []uint64
	if _, err := Replay(dir, func(r *Record) error { seqs = append(seqs, r.Seq); return nil }); err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 1 || seqs[0] != 3 {
		t.Fatalf("remaining records = %v", seqs)
	}
}
