// Identity token generation.
//
// Every recorded allocation carries a 32-bit identity token for the new
// object. Go offers no stable per-object identity hash, and addresses
// move under the garbage collector, so a token here is an
// address-independent value minted once at capture time: a per-run
// seeded mix of an atomic allocation counter, folded with the
// referent's pointer word when the reference carries one. Consumers
// treat the token as opaque; it identifies one allocation within a
// recording, nothing more.

package api

import (
	"encoding/binary"
	"os"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	identitySeed    uint32
	identityCounter atomic.Uint32
)

func init() {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(b[8:], uint64(os.Getpid()))

	sum := xxhash.Sum64(b[:])
	identitySeed = uint32(sum ^ sum>>32)
}

// identityOf mints the identity token for a newly allocated object.
//
// Thread Safety: safe for concurrent callers; the counter is atomic.
func identityOf(ref any) uint32 {
	n := identityCounter.Add(1)

	// Weyl-style multiplication spreads sequential counter values
	// across the 32-bit space before seeding.
	h := n*0x9e3779b9 ^ identitySeed

	if ref != nil {
		v := reflect.ValueOf(ref)
		switch v.Kind() {
		case reflect.Pointer, reflect.UnsafePointer, reflect.Map,
			reflect.Chan, reflect.Func, reflect.Slice:
			p := uint64(v.Pointer())
			h ^= uint32(p ^ p>>32)
		default:
			// Value kinds carry no referent word; the counter
			// alone identifies the allocation.
		}
	}

	return h
}
