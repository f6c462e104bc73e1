// Package snapshot writes and loads point-in-time dumps of the heap's
// region table. A dump records, per region, its generation, flags, bytes
// and object count; it never copies object contents.
//
// Writers read the heap inside a Reader section. The collector registers
// the Reader's epoch, so regions evacuated while a dump is running are not
// recycled under it.
package snapshot
