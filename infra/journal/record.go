package journal

import "time"

type RecordType uint8

const (
	// RecordCycle carries the report of a finished collection.
	RecordCycle RecordType = iota + 1
	// RecordFatal carries the error that aborted a collection.
	RecordFatal
)

func (t RecordType) String() string {
	switch t {
	case RecordCycle:
		return "CYCLE"
	case RecordFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
