// Package channel implements the bounded event channel between an
// instrumented program and the analysis.
//
// A Region holds N slots of fixed-size event records plus a name arena per
// slot. The producer fills slots in circular order and signals each full
// slot's index on the full line; the consumer processes slots in the same
// order and returns each index on the empty line. With every slot in flight
// the producer blocks, so at most N slots of events are ever buffered.
//
// Two transports carry the control lines: Pipe keeps both ends in one
// process on buffered Go channels, and Listen/Dial share the region through
// a mapped file with a pair of FIFOs for the signals.
package channel
