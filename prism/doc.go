// Package prism provides the public API of the Prism communication analysis.
//
// Prism attributes every byte a program loads to the entity that produced it.
// An entity is a function activation (or, with block granularity, one
// execution of an instruction block). Loading a byte written by another
// entity is communication and adds to the edge consumer <- producer;
// loading a byte the entity wrote or already read is local.
//
// # Quick Start
//
// Trace a workload in process:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/VANDAL/prism/prism"
//	)
//
//	func main() {
//		rep, err := prism.Run(context.Background(), prism.DefaultOptions(),
//			func(p *prism.Producer) error {
//				p.EnterFunc("main")
//				p.Store(0x1000, 4)
//				p.EnterFunc("helper")
//				p.Load(0x1000, 4)
//				p.ExitFunc("helper")
//				return p.ExitFunc("main")
//			})
//		if err != nil {
//			panic(err)
//		}
//		fmt.Print(rep)
//	}
//
// Or analyze a program running in another process:
//
//	$ prism consume -dir /tmp -o report.txt.zst
//	5f0c...
//	$ prism gen -dir /tmp -session 5f0c...
//
// # API Overview
//
// The package provides:
//   - In-process tracing: [Run]
//   - Cross-process tracing: [Listen], [Listener.Serve], [Dial]
//   - Event emission: [Producer.EnterFunc], [Producer.ExitFunc],
//     [Producer.Load], [Producer.Store], [Producer.IntOps],
//     [Producer.FloatOps], [Producer.SwapThread], [Producer.Lock]
//   - Results: [Report], [Entity], [Edge]
//   - Version information: [GetInfo], [Version], [ProtocolVersion]
//
// # How It Works
//
// Events travel through a bounded channel of fixed-size slots. The producer
// fills a slot and signals its index; the analysis drains it and signals it
// back. With every slot in flight the producer blocks, so memory use stays
// bounded no matter how fast events are produced:
//
//	producer ──full(0)──▶ analysis
//	         ◀─empty(0)──
//
// The analysis keeps a two-level shadow memory holding, for every byte of
// the traced address space, the entity that last wrote it and the entities
// that read it since. Shadow pages are allocated on first update; the total
// footprint is capped by [Options].MaxShadowMB.
//
// # Resource Use
//
//	Shadow memory:   8 bytes per traced byte in touched pages, plus 8 bytes per reader
//	Channel:         Slots × SlotRecords × 24 bytes, plus the name arenas
//	Entities:        one record per live activation
//
// # Compatibility
//
// Platform support:
//   - In-process tracing: every platform Go supports
//   - Cross-process tracing: unix systems (shared memory and FIFOs)
//
// # Examples
//
// See package-level examples in the documentation:
//   - [Example] - Tracing a small workload
//   - [Example_threads] - Several threads sharing data
//   - [Example_blockGranularity] - Entities per instruction block
package prism
