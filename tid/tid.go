// Package tid mints and decodes timestamp identifiers (TIDs): 13-character,
// lexicographically sortable, base-32 record keys.
//
// A TID packs a 64-bit value MSB first:
//
//	0 | 53 bits of microseconds since the Unix epoch | 10 bits of clock id
//
// and spells it with the alphabet "234567abcdefghijklmnopqrstuvwxyz", five
// bits per character. Because the alphabet is in ASCII order, string order
// equals numeric order.
//
// Decoding never panics: malformed input reports ok == false so display
// code can treat it as "no timestamp available".
package tid

import (
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// Len is the length of every TID.
	Len = 13

	alphabet = "234567abcdefghijklmnopqrstuvwxyz"

	clockIDBits = 10
	clockIDMask = 1<<clockIDBits - 1
	microsBits  = 53
	microsMask  = 1<<microsBits - 1

	// The leading character carries bits 60..64 of a 65-bit capacity;
	// only the first 16 symbols keep the value inside 64 bits.
	leadingChars = "234567abcdefghij"
)

// decodeTable maps a byte to its 5-bit value, or 0xff if not in alphabet.
var decodeTable = func() (t [256]byte) {
	for i := range t {
		t[i] = 0xff
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = byte(i)
	}
	return t
}()

// TID is an encoded timestamp identifier.
type TID string

// String returns the encoded form.
func (t TID) String() string { return string(t) }

// Micros returns the embedded timestamp in microseconds.
func (t TID) Micros() (uint64, bool) {
	v, ok := Decode(string(t))
	if !ok {
		return 0, false
	}
	return v >> clockIDBits, true
}

// ClockID returns the embedded 10-bit clock id.
func (t TID) ClockID() (uint16, bool) {
	v, ok := Decode(string(t))
	if !ok {
		return 0, false
	}
	return uint16(v & clockIDMask), true
}

// Time returns the embedded timestamp.
func (t TID) Time() (time.Time, bool) { return Time(string(t)) }

// Encode packs micros and clockID into a TID. Out-of-range inputs are
// truncated to 53 and 10 bits respectively.
func Encode(micros uint64, clockID uint16) TID {
	return encode((micros&microsMask)<<clockIDBits | uint64(clockID)&clockIDMask)
}

func encode(v uint64) TID {
	var buf [Len]byte
	for i := Len - 1; i >= 0; i-- {
		buf[i] = alphabet[v&31]
		v >>= 5
	}
	return TID(buf[:])
}

// Decode returns the packed 64-bit value of s. It rejects strings of the
// wrong length, a leading character outside the 16-symbol subset, and any
// character outside the alphabet.
func Decode(s string) (uint64, bool) {
	if len(s) != Len || strings.IndexByte(leadingChars, s[0]) < 0 {
		return 0, false
	}
	var v uint64
	for i := 0; i < Len; i++ {
		d := decodeTable[s[i]]
		if d == 0xff {
			return 0, false
		}
		v = v<<5 | uint64(d)
	}
	return v, true
}

// Valid reports whether s is a well-formed TID.
func Valid(s string) bool {
	_, ok := Decode(s)
	return ok
}

// Millis returns the timestamp of s in milliseconds since the Unix epoch.
func Millis(s string) (int64, bool) {
	v, ok := Decode(s)
	if !ok {
		return 0, false
	}
	return int64(v>>clockIDBits) / 1000, true
}

// Time returns the timestamp of s with microsecond precision.
func Time(s string) (time.Time, bool) {
	v, ok := Decode(s)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMicro(int64(v >> clockIDBits)).UTC(), true
}

// Generator mints strictly increasing TIDs. The zero value is not usable;
// construct with NewGenerator.
type Generator struct {
	clockID uint16
	now     func() time.Time
	last    atomic.Uint64 // last issued microsecond timestamp
}

// NewGenerator returns a generator with a fixed clock id (truncated to 10
// bits). A nil now uses time.Now.
func NewGenerator(clockID uint16, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{clockID: clockID & clockIDMask, now: now}
}

// ClockID returns the generator's clock id.
func (g *Generator) ClockID() uint16 { return g.clockID }

// Next returns a TID strictly greater than every TID this generator issued
// before, even if the wall clock stalls or steps backwards.
func (g *Generator) Next() TID {
	t := uint64(g.now().UnixMicro())
	for {
		last := g.last.Load()
		next := t
		if next <= last {
			next = last + 1
		}
		if g.last.CompareAndSwap(last, next) {
			return Encode(next, g.clockID)
		}
	}
}

var defaultGenerator = NewGenerator(uint16(rand.N(1<<clockIDBits)), nil)

// Next mints a TID from the process-wide generator, whose clock id is
// chosen at random at startup.
func Next() TID { return defaultGenerator.Next() }

// KeyOr returns key if non-empty, else a freshly minted TID.
func KeyOr(key string) string {
	if key != "" {
		return key
	}
	return Next().String()
}
