package prism_test

import (
	"context"
	"fmt"

	"github.com/VANDAL/prism/prism"
)

func smallOptions() prism.Options {
	opts := prism.DefaultOptions()
	opts.SlotRecords = 1024
	opts.SlotNameBytes = 4096
	return opts
}

// Example traces a caller handing data to a helper.
func Example() {
	rep, err := prism.Run(context.Background(), smallOptions(), func(p *prism.Producer) error {
		p.EnterFunc("main")
		p.Store(0x1000, 4) // main produces 4 bytes

		p.EnterFunc("helper")
		p.Load(0x1000, 4) // helper consumes them
		p.ExitFunc("helper")

		p.Load(0x1000, 4) // main rereads its own bytes
		return p.ExitFunc("main")
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, e := range rep.Edges {
		fmt.Printf("%s <- %s: %d bytes\n", e.Consumer, e.Producer, e.Bytes)
	}
	fmt.Println("main local bytes:", rep.Lookup("main").LocalBytes)

	// Output:
	// helper <- main: 4 bytes
	// main local bytes: 4
}

// Example_threads shows that thread stacks are independent: the worker's
// entity is live on thread 1 while main stays live on thread 0.
func Example_threads() {
	rep, err := prism.Run(context.Background(), smallOptions(), func(p *prism.Producer) error {
		p.EnterFunc("main")
		p.Store(0x2000, 64)
		p.Spawn(1)

		p.SwapThread(1)
		p.EnterFunc("worker")
		p.Load(0x2000, 64)
		p.FloatOps(10)
		p.ExitFunc("worker")

		p.SwapThread(0)
		p.Join(1)
		return p.ExitFunc("main")
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	w := rep.Lookup("worker")
	fmt.Println("worker thread:", w.Thread)
	fmt.Println("worker flops:", w.Flops)
	fmt.Println("worker input from main:", w.Inputs[rep.Lookup("main").ID])

	// Output:
	// worker thread: 1
	// worker flops: 10
	// worker input from main: 64
}

// Example_blockGranularity attributes communication to instruction blocks
// instead of functions.
func Example_blockGranularity() {
	opts := smallOptions()
	opts.Granularity = "block"

	rep, err := prism.Run(context.Background(), opts, func(p *prism.Producer) error {
		p.Block(0x400)
		p.Store(0x10, 8)
		p.Block(0x480)
		p.Load(0x10, 8)
		return p.Block(0x400)
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, e := range rep.Entities {
		fmt.Printf("%s: %d bytes in\n", e.Name, sum(e.Inputs))
	}

	// Output:
	// 0x400: 0 bytes in
	// 0x480: 8 bytes in
	// 0x400: 0 bytes in
}

func sum(m map[uint32]uint64) uint64 {
	var n uint64
	for _, v := range m {
		n += v
	}
	return n
}
