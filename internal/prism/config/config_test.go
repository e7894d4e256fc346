package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VANDAL/prism/internal/prism/fault"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint(22), cfg.Shadow.SecondaryBits())
	assert.Equal(t, uint64(4096)<<20, cfg.Shadow.MaxShadowBytes())
	assert.Equal(t, 3, cfg.Channel.Slots)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
		ok     bool
	}{
		"defaults":             {mutate: func(*Config) {}, ok: true},
		"zero addr bits":       {mutate: func(c *Config) { c.Shadow.AddrBits = 0 }},
		"addr bits too wide":   {mutate: func(c *Config) { c.Shadow.AddrBits = 64 }},
		"primary equals addr":  {mutate: func(c *Config) { c.Shadow.PrimaryBits = 38 }},
		"zero primary":         {mutate: func(c *Config) { c.Shadow.PrimaryBits = 0 }},
		"huge primary":         {mutate: func(c *Config) { c.Shadow.AddrBits = 60; c.Shadow.PrimaryBits = 33 }},
		"huge secondary":       {mutate: func(c *Config) { c.Shadow.AddrBits = 60; c.Shadow.PrimaryBits = 8 }},
		"zero cap":             {mutate: func(c *Config) { c.Shadow.MaxShadowMB = 0 }},
		"pool max below init":  {mutate: func(c *Config) { c.Shadow.ReaderPoolMax = 1 }},
		"zero pool init":       {mutate: func(c *Config) { c.Shadow.ReaderPoolInitial = 0 }},
		"small split":          {mutate: func(c *Config) { c.Shadow.AddrBits = 20; c.Shadow.PrimaryBits = 8 }, ok: true},
		"no slots":             {mutate: func(c *Config) { c.Channel.Slots = 0 }},
		"too many slots":       {mutate: func(c *Config) { c.Channel.Slots = MaxSlots + 1 }},
		"no records":           {mutate: func(c *Config) { c.Channel.SlotRecords = 0 }},
		"negative timeout":     {mutate: func(c *Config) { c.Channel.LivenessTimeout = -time.Second }},
		"timeout disabled":     {mutate: func(c *Config) { c.Channel.LivenessTimeout = 0 }, ok: true},
		"no connect attempts":  {mutate: func(c *Config) { c.Channel.ConnectRetries = 0 }},
		"unknown granularity":  {mutate: func(c *Config) { c.Tracker.Granularity = 7 }},
		"block without cache":  {mutate: func(c *Config) { c.Tracker.Granularity = Block; c.Tracker.BlockCacheSize = 0 }},
		"block with cache":     {mutate: func(c *Config) { c.Tracker.Granularity = Block }, ok: true},
		"names arena disabled": {mutate: func(c *Config) { c.Channel.SlotNameBytes = 0 }, ok: true},
		"trace uncompressed":   {mutate: func(c *Config) { c.Trace.PrimsPerComp = 1 }, ok: true},
		"trace zero prims":     {mutate: func(c *Config) { c.Trace.PrimsPerComp = 0 }},
		"trace too many prims": {mutate: func(c *Config) { c.Trace.PrimsPerComp = DefaultPrimsPerComp + 1 }},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.Configuration), "got %v", err)
		})
	}
}

func TestParseGranularity(t *testing.T) {
	for in, want := range map[string]Granularity{
		"function": Function,
		"func":     Function,
		"":         Function,
		"block":    Block,
		"bb":       Block,
	} {
		g, err := ParseGranularity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, g, in)
	}

	_, err := ParseGranularity("thread")
	assert.True(t, fault.Is(err, fault.Configuration))
	assert.Equal(t, "block", Block.String())
}
