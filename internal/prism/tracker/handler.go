package tracker

import (
	"github.com/VANDAL/prism/internal/prism/config"
	"github.com/VANDAL/prism/internal/prism/event"
)

var _ event.Handler = (*Tracker)(nil)

// OnMem implements event.Handler.
func (t *Tracker) OnMem(ev event.Mem) error {
	return t.OnMemory(ev.IsStore(), ev.Addr, uint64(ev.Size))
}

// OnComp implements event.Handler.
func (t *Tracker) OnComp(ev event.Comp) error {
	t.OnCompute(ev.IsFloat())
	return nil
}

// OnCxt implements event.Handler.
//
// Function markers drive entities in function granularity and are ignored
// in block granularity. Names are interned before the slot is released.
func (t *Tracker) OnCxt(ev event.Cxt) error {
	switch ev.Kind {
	case event.CxtFuncEnter:
		if t.cfg.Granularity != config.Function {
			return nil
		}
		_, err := t.enter(t.names.Intern(ev.Name))
		return err
	case event.CxtFuncExit:
		if t.cfg.Granularity != config.Function {
			return nil
		}
		return t.OnExitEntity()
	case event.CxtInstr:
		t.OnInstr()
	case event.CxtBB:
		return t.OnBlock(ev.Addr)
	}
	return nil
}
