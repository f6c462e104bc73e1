package service

import (
	"log"

	"regionvac/infra/journal"
	"regionvac/infra/sequence"
)

// JournalFatal returns a gc OnFatal hook that appends a FATAL record for
// the running cycle and then calls next. The collector calls the hook
// before Collect returns, so the record is written even when next exits
// the process.
func JournalFatal(j *journal.Journal, cycles *sequence.Sequencer, next func(error)) func(error) {
	return func(cause error) {
		if j != nil {
			cycle := cycles.Current()
			payload, err := journal.EncodeFields(map[string]any{
				"cycle": cycle,
				"error": cause.Error(),
			})
			if err == nil {
				err = j.Append(journal.NewRecord(journal.RecordFatal, cycle, payload))
			}
			if err != nil {
				log.Printf("[service] fatal error not journalled: %v", err)
			}
		}
		if next != nil {
			next(cause)
		}
	}
}
