// Package shadowmem implements the byte-granular shadow memory.
//
// Every byte address of the observed program maps to one ShadowObject that
// records the entity that last wrote the byte and the distinct entities that
// have read it since. The entity tracker asks two questions per loaded byte
// (who wrote it, have I read it already) and the answers decide whether the
// byte is local or a communication dependency.
//
// # Layout
//
// The address space is a two-level sparse array:
//
//	addr: [ primary index : primaryBits ][ secondary offset : addrBits-primaryBits ]
//
// The primary map is a dense array of 2^primaryBits pointers. A pointer stays
// nil until an update touches an address in its range; the first update
// allocates a secondary map of 2^(addrBits-primaryBits) objects. With the
// defaults (38-bit addresses, 16 primary bits) a secondary map covers 4 MiB of
// program memory with 32 MiB of shadow state.
//
// Objects are zero-value initialized. The zero value means "no writer, no
// readers", so a freshly allocated secondary map needs no initialization
// pass.
//
// # Readers
//
// A byte keeps the full set of distinct readers since its last write, as a
// chain in a readerpool.Pool. A write releases the whole chain back to the
// pool. Reader sets are typically tiny (the writer's callees), so membership
// is a chain walk.
//
// # Budget
//
// The shadow memory tracks its own footprint:
//
//	primaryFootprint + K*S*sizeof(ShadowObject) + readerPoolBytes
//
// for K allocated secondary maps of S objects. Any allocation that would push
// the footprint above the configured cap fails with a ResourceExhaustion
// error naming the address and leaves the state unchanged.
//
// # Errors
//
// An address range reaching at or above 2^addrBits is a ProtocolViolation.
// Nothing is masked or truncated and no operation retries.
//
// # Thread Safety
//
// None. A ShadowMemory belongs to one session and is driven by one dispatch
// loop.
package shadowmem
