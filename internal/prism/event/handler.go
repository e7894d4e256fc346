package event

import "github.com/VANDAL/prism/internal/prism/fault"

// Handler consumes decoded events in stream order.
//
// Context names alias slot memory: a handler that keeps a name past the call
// must copy or intern it.
type Handler interface {
	OnMem(Mem) error
	OnComp(Comp) error
	OnSync(Sync) error
	OnCxt(Cxt) error
}

// Dispatch routes ev to the matching Handler method.
func Dispatch(h Handler, ev Event) error {
	switch ev.Tag {
	case TagMem:
		return h.OnMem(ev.Mem)
	case TagComp:
		return h.OnComp(ev.Comp)
	case TagSync:
		return h.OnSync(ev.Sync)
	case TagCxt:
		return h.OnCxt(ev.Cxt)
	default:
		return fault.Violation("event.Dispatch", "", "unrecognized event tag %d", uint8(ev.Tag))
	}
}

// Multi fans every event out to several handlers in order. The first error
// stops the fan-out.
type Multi []Handler

func (m Multi) OnMem(ev Mem) error {
	for _, h := range m {
		if err := h.OnMem(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) OnComp(ev Comp) error {
	for _, h := range m {
		if err := h.OnComp(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) OnSync(ev Sync) error {
	for _, h := range m {
		if err := h.OnSync(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) OnCxt(ev Cxt) error {
	for _, h := range m {
		if err := h.OnCxt(ev); err != nil {
			return err
		}
	}
	return nil
}

// Counts is the per-kind event tally kept by Counter.
type Counts struct {
	Loads      uint64
	Stores     uint64
	LoadBytes  uint64
	StoreBytes uint64
	Iops       uint64
	Flops      uint64
	Sync       [NumSyncKinds]uint64
	Instrs     uint64
	Blocks     uint64
	Enters     uint64
	Exits      uint64
	Threads    uint64
}

// Total returns the number of events counted.
func (c Counts) Total() uint64 {
	total := c.Loads + c.Stores + c.Iops + c.Flops +
		c.Instrs + c.Blocks + c.Enters + c.Exits + c.Threads
	for _, n := range c.Sync {
		total += n
	}
	return total
}

// Counter is a Handler that only counts events. It never fails.
type Counter struct {
	Counts Counts
}

func (c *Counter) OnMem(ev Mem) error {
	if ev.IsStore() {
		c.Counts.Stores++
		c.Counts.StoreBytes += uint64(ev.Size)
	} else {
		c.Counts.Loads++
		c.Counts.LoadBytes += uint64(ev.Size)
	}
	return nil
}

func (c *Counter) OnComp(ev Comp) error {
	if ev.IsFloat() {
		c.Counts.Flops++
	} else {
		c.Counts.Iops++
	}
	return nil
}

func (c *Counter) OnSync(ev Sync) error {
	if ev.Kind < NumSyncKinds {
		c.Counts.Sync[ev.Kind]++
	}
	return nil
}

func (c *Counter) OnCxt(ev Cxt) error {
	switch ev.Kind {
	case CxtInstr:
		c.Counts.Instrs++
	case CxtBB:
		c.Counts.Blocks++
	case CxtFuncEnter:
		c.Counts.Enters++
	case CxtFuncExit:
		c.Counts.Exits++
	case CxtThread:
		c.Counts.Threads++
	}
	return nil
}
