// Package config holds the parameters of one prism session.
//
// A Config is fixed when the session is built: the shadow-memory geometry and
// the channel layout never change while events are flowing. Defaults match the
// classic layout of 38-bit addresses, a 16-bit primary index and a 4096 MB
// shadow-memory cap.
package config

import (
	"fmt"
	"time"

	"github.com/VANDAL/prism/internal/prism/fault"
)

// Granularity selects what an entity is.
type Granularity int

const (
	// Function entities follow function enter/exit markers.
	Function Granularity = iota
	// Block entities start at every new instruction-block address.
	Block
)

// String returns the flag spelling of g.
func (g Granularity) String() string {
	switch g {
	case Function:
		return "function"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// ParseGranularity parses the flag spelling produced by String.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "function", "func", "":
		return Function, nil
	case "block", "bb":
		return Block, nil
	default:
		return Function, fault.Configf("config.ParseGranularity", "unknown granularity %q", s)
	}
}

const (
	// DefaultAddrBits is the default address width.
	DefaultAddrBits = 38
	// DefaultPrimaryBits is the default primary-map index width.
	DefaultPrimaryBits = 16
	// DefaultMaxShadowMB is the default shadow-memory cap.
	DefaultMaxShadowMB = 4096

	// DefaultReaderPoolInitial is the number of reader nodes in the first
	// pool chunk.
	DefaultReaderPoolInitial = 1 << 16
	// DefaultReaderPoolMax is the largest node count the pool may reach.
	// 0xFFFFFFFF is reserved as the empty-chain handle.
	DefaultReaderPoolMax = 1<<32 - 2

	// DefaultSlots is the number of buffer slots in the channel region.
	DefaultSlots = 3
	// MaxSlots bounds the slot count so indices never collide with the
	// reserved control values.
	MaxSlots = 64
	// DefaultSlotRecords is the record capacity of one slot.
	DefaultSlotRecords = 1 << 20
	// DefaultSlotNameBytes is the size of one slot's name arena.
	DefaultSlotNameBytes = 1 << 22

	// DefaultLivenessTimeout bounds how long the consumer waits for the
	// next control value.
	DefaultLivenessTimeout = 30 * time.Second
	// DefaultConnectRetries and DefaultConnectDelay drive transport setup.
	DefaultConnectRetries = 4
	DefaultConnectDelay   = 500 * time.Millisecond

	// DefaultBlockCacheSize is the capacity of the block-name cache.
	DefaultBlockCacheSize = 4096

	// DefaultPrimsPerComp is the number of reads or writes folded into one
	// compute record of a thread trace. It is also the largest allowed.
	DefaultPrimsPerComp = 100
)

// Shadow configures the shadow memory.
type Shadow struct {
	AddrBits    uint
	PrimaryBits uint
	MaxShadowMB uint64

	ReaderPoolInitial uint32
	ReaderPoolMax     uint32
}

// Channel configures the event channel.
type Channel struct {
	Slots           int
	SlotRecords     int
	SlotNameBytes   int
	LivenessTimeout time.Duration
	ConnectRetries  int
	ConnectDelay    time.Duration
}

// Tracker configures entity attribution.
type Tracker struct {
	Granularity    Granularity
	BlockCacheSize uint32
}

// Trace configures the per-thread trace generator. An empty Dir turns it
// off.
type Trace struct {
	Dir          string
	PrimsPerComp int
}

// Enabled reports whether traces are written.
func (t Trace) Enabled() bool { return t.Dir != "" }

// Config is the full session configuration.
type Config struct {
	Shadow  Shadow
	Channel Channel
	Tracker Tracker
	Trace   Trace
}

// Default returns a Config populated with the defaults above.
func Default() Config {
	return Config{
		Shadow: Shadow{
			AddrBits:          DefaultAddrBits,
			PrimaryBits:       DefaultPrimaryBits,
			MaxShadowMB:       DefaultMaxShadowMB,
			ReaderPoolInitial: DefaultReaderPoolInitial,
			ReaderPoolMax:     DefaultReaderPoolMax,
		},
		Channel: Channel{
			Slots:           DefaultSlots,
			SlotRecords:     DefaultSlotRecords,
			SlotNameBytes:   DefaultSlotNameBytes,
			LivenessTimeout: DefaultLivenessTimeout,
			ConnectRetries:  DefaultConnectRetries,
			ConnectDelay:    DefaultConnectDelay,
		},
		Tracker: Tracker{
			Granularity:    Function,
			BlockCacheSize: DefaultBlockCacheSize,
		},
		Trace: Trace{
			PrimsPerComp: DefaultPrimsPerComp,
		},
	}
}

// MaxShadowBytes returns the shadow-memory cap in bytes.
func (s Shadow) MaxShadowBytes() uint64 {
	return s.MaxShadowMB << 20
}

// SecondaryBits returns the number of address bits indexing a secondary map.
func (s Shadow) SecondaryBits() uint {
	return s.AddrBits - s.PrimaryBits
}

// Validate checks the shadow-memory geometry.
func (s Shadow) Validate() error {
	const op = "config.Shadow.Validate"
	if s.AddrBits == 0 || s.AddrBits > 63 {
		return fault.Configf(op, "addr-bits %d out of range [1, 63]", s.AddrBits)
	}
	if s.PrimaryBits == 0 || s.PrimaryBits >= s.AddrBits {
		return fault.Configf(op, "primary-bits %d must be in [1, addr-bits %d)",
			s.PrimaryBits, s.AddrBits)
	}
	if s.PrimaryBits > 32 {
		return fault.Configf(op, "primary-bits %d exceeds 32", s.PrimaryBits).
			WithHint("a primary map of 2^primary-bits slots is allocated up front")
	}
	if s.SecondaryBits() > 40 {
		return fault.Configf(op, "secondary map of 2^%d objects is too large",
			s.SecondaryBits()).
			WithHint("raise -primary-bits or lower -addr-bits")
	}
	if s.MaxShadowMB == 0 {
		return fault.Configf(op, "max-shadow-mb must be positive")
	}
	if s.ReaderPoolInitial == 0 {
		return fault.Configf(op, "reader pool initial size must be positive")
	}
	if s.ReaderPoolMax < s.ReaderPoolInitial || s.ReaderPoolMax > DefaultReaderPoolMax {
		return fault.Configf(op, "reader pool max %d must be in [%d, %d]",
			s.ReaderPoolMax, s.ReaderPoolInitial, uint32(DefaultReaderPoolMax))
	}
	return nil
}

// Validate checks the channel layout.
func (c Channel) Validate() error {
	const op = "config.Channel.Validate"
	if c.Slots < 1 || c.Slots > MaxSlots {
		return fault.Configf(op, "slots %d out of range [1, %d]", c.Slots, MaxSlots)
	}
	if c.SlotRecords < 1 {
		return fault.Configf(op, "slot-records must be positive")
	}
	if c.SlotNameBytes < 0 || c.SlotNameBytes > 1<<31 {
		return fault.Configf(op, "slot-name-bytes %d out of range", c.SlotNameBytes)
	}
	if c.LivenessTimeout < 0 {
		return fault.Configf(op, "liveness timeout must not be negative")
	}
	if c.ConnectRetries < 1 {
		return fault.Configf(op, "connect-retries must be at least 1")
	}
	return nil
}

// Validate checks the tracker settings.
func (t Tracker) Validate() error {
	if t.Granularity != Function && t.Granularity != Block {
		return fault.Configf("config.Tracker.Validate", "unknown %s", t.Granularity)
	}
	if t.Granularity == Block && t.BlockCacheSize == 0 {
		return fault.Configf("config.Tracker.Validate", "block-cache-size must be positive")
	}
	return nil
}

// Validate checks the trace settings.
func (t Trace) Validate() error {
	if t.PrimsPerComp < 1 || t.PrimsPerComp > DefaultPrimsPerComp {
		return fault.Configf("config.Trace.Validate", "trace-comp-prims %d out of range [1, %d]",
			t.PrimsPerComp, DefaultPrimsPerComp)
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Shadow.Validate(); err != nil {
		return err
	}
	if err := c.Channel.Validate(); err != nil {
		return err
	}
	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	return c.Trace.Validate()
}
