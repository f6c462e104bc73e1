package service

import (
	"log"

	"regionvac/infra/journal"
	"regionvac/infra/sequence"
	"regionvac/snapshot"
)

/*
Recover resumes cycle numbering after a restart.

IMPORTANT:
- This MUST run before the first collection
- The heap itself is not rebuilt; only the cycle counter survives
*/

func Recover(
	journalDir string,
	snapshotPath string,
	cycles *sequence.Sequencer,
) (uint64, error) {
	var last uint64

	snap, err := snapshot.Load(snapshotPath)
	if err != nil {
		return 0, err
	}
	if snap != nil {
		last = snap.Cycle
	}

	cyclesSeen, fatal := 0, 0
	lastSeq, err := journal.Replay(journalDir, func(rec *journal.Record) error {
		switch rec.Type {
		case journal.RecordCycle:
			cyclesSeen++
		case journal.RecordFatal:
			fatal++
			if fields, err := journal.DecodeFields(rec.Data); err == nil {
				log.Printf("[replay] cycle %d aborted: %v", rec.Seq, fields["error"])
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	last = max(last, lastSeq)

	// Resume numbering AFTER replay
	cycles.Reset(last)

	log.Printf("[replay] journal replayed: %d cycles, %d fatal, resuming after cycle %d",
		cyclesSeen, fatal, last)
	return last, nil
}
