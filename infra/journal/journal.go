// Package journal is the append-only log of finished collection cycles.
// Records are CRC-framed and written to numbered segment files that rotate
// by size and age. The service replays it at start to resume cycle
// numbering.
package journal

import (
	"os"
	"sync"
	"time"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// Sync forces an fsync after every append.
	Sync bool
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		SegmentSize:     4 << 20,
		SegmentDuration: time.Hour,
	}
}

type Journal struct {
	mu sync.Mutex

	dir             string
	segmentSize     int64
	segmentDuration time.Duration
	sync            bool

	current    *segment
	segIndex   int
	lastRotate time.Time
}

// Open opens the journal in cfg.Dir, appending after the newest segment.
func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	idx := 0
	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if n := len(files); n > 0 {
		if idx, err = segmentIndex(files[n-1]); err != nil {
			return nil, err
		}
	}

	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:             cfg.Dir,
		segmentSize:     cfg.SegmentSize,
		segmentDuration: cfg.SegmentDuration,
		sync:            cfg.Sync,
		current:         seg,
		segIndex:        idx,
		lastRotate:      time.Now(),
	}, nil
}

func (j *Journal) Append(r *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.current.append(encodeFrame(r)); err != nil {
		return err
	}
	if j.sync {
		if err := j.current.sync(); err != nil {
			return err
		}
	}
	if j.shouldRotate() {
		return j.rotate()
	}
	return nil
}

func (j *Journal) shouldRotate() bool {
	if j.segmentSize > 0 && j.current.offset >= j.segmentSize {
		return true
	}
	return j.segmentDuration > 0 && time.Since(j.lastRotate) >= j.segmentDuration
}

func (j *Journal) rotate() error {
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return err
	}

	j.current = seg
	j.lastRotate = time.Now()
	return nil
}

// Segment is the index of the segment currently written.
func (j *Journal) Segment() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.segIndex
}

// TruncateBefore removes every closed segment whose records all have a
// sequence at or below seq.
func (j *Journal) TruncateBefore(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := listSegments(j.dir)
	if err != nil {
		return err
	}
	current := segmentPath(j.dir, j.segIndex)
	for _, path := range files {
		if path == current {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.close()
}
