// Package outbox keeps cycle reports that still have to be published.
// The collector service writes a NEW entry per finished cycle; the
// broadcaster moves it through SENT to ACKED or FAILED.
package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type Record struct {
	Cycle       uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const recordHeader = 1 + 4 + 8

var ErrBadRecord = errors.New("outbox: invalid record length")

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, recordHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[recordHeader:], r.Payload)
	return buf
}

func decodeRecord(cycle uint64, b []byte) (Record, error) {
	if len(b) < recordHeader {
		return Record{}, ErrBadRecord
	}
	return Record{
		Cycle:       cycle,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(b[recordHeader:]),
	}, nil
}

// -------------------- Outbox --------------------

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutNew stores the report of a finished cycle.
func (o *Outbox) PutNew(cycle uint64, payload []byte) error {
	rec := Record{State: StateNew, Payload: payload}
	return o.db.Set(keyFor(cycle), encodeRecord(rec), pebble.Sync)
}

// UpdateState records a send attempt or its outcome. The payload is kept.
func (o *Outbox) UpdateState(cycle uint64, state State, retries uint32) error {
	rec, err := o.Get(cycle)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(cycle), encodeRecord(rec), pebble.Sync)
}

func (o *Outbox) Delete(cycle uint64) error {
	return o.db.Delete(keyFor(cycle), pebble.Sync)
}

// Get returns the record of a cycle, or pebble.ErrNotFound.
func (o *Outbox) Get(cycle uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(cycle))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()

	return decodeRecord(cycle, val)
}

// -------------------- Scan --------------------

// ScanByState visits records in the given state in cycle order.
func (o *Outbox) ScanByState(state State, fn func(rec Record) error) error {
	return o.scan(func(rec Record) (bool, error) {
		if rec.State != state {
			return true, nil
		}
		return true, fn(rec)
	})
}

// TruncateAckedUpTo deletes acknowledged records up to and including cycle.
func (o *Outbox) TruncateAckedUpTo(cycle uint64) (int, error) {
	batch := o.db.NewBatch()
	defer batch.Close()

	n := 0
	err := o.scan(func(rec Record) (bool, error) {
		if rec.Cycle > cycle {
			return false, nil
		}
		if rec.State != StateAcked {
			return true, nil
		}
		n++
		return true, batch.Delete(keyFor(rec.Cycle), nil)
	})
	if err != nil || n == 0 {
		return 0, err
	}
	return n, batch.Commit(pebble.Sync)
}

// Count returns the number of records per state.
func (o *Outbox) Count() (map[State]int, error) {
	out := make(map[State]int)
	err := o.scan(func(rec Record) (bool, error) {
		out[rec.State]++
		return true, nil
	})
	return out, err
}

func (o *Outbox) scan(fn func(rec Record) (bool, error)) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		cycle, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(cycle, iter.Value())
		if err != nil {
			return err
		}
		more, err := fn(rec)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const keyPrefix = "cycle/"

func keyFor(cycle uint64) []byte {
	return []byte(fmt.Sprintf(keyPrefix+"%020d", cycle))
}

func parseKey(b []byte) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(keyPrefix))), "%d", &id)
	return id, err
}
