// Package cidr expands IPv4 CIDR blocks into the two artifact representations
// CountryBlock publishes: regex fragments that match exactly the addresses of a
// block, and the usable host addresses of a block.
//
// Everything in this package is pure and performs no I/O beyond reading the
// io.Reader handed to ParseList.
package cidr

import (
	"encoding/binary"
	"iter"
	"net/netip"
	"strings"
)

// Block is an IPv4 network address with its prefix length. The zero value is
// not a valid block; use ParseBlock.
type Block struct {
	prefix netip.Prefix
}

// ParseBlock parses a CIDR block such as "102.67.0.0/16".
//
// Host bits beyond the prefix are ignored: "10.0.0.7/30" is normalized to
// "10.0.0.4/30". Malformed input fails with *InvalidRangeError.
func ParseBlock(s string) (Block, error) {
	text := strings.TrimSpace(s)
	switch {
	case text == "":
		return Block{}, invalid(s, "empty input")
	case strings.Contains(text, ":"):
		return Block{}, invalid(s, "IPv6 is not supported")
	case !strings.Contains(text, "/"):
		return Block{}, invalid(s, "missing prefix length")
	}

	p, err := netip.ParsePrefix(text)
	if err != nil {
		return Block{}, invalid(s, trimParseReason(err.Error()))
	}
	if !p.Addr().Is4() {
		return Block{}, invalid(s, "not an IPv4 address")
	}

	return Block{prefix: p.Masked()}, nil
}

// MustParseBlock is like ParseBlock but panics on error. It is meant for
// constants in tests and examples.
func MustParseBlock(s string) Block {
	b, err := ParseBlock(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Prefix returns the normalized prefix.
func (b Block) Prefix() netip.Prefix {
	return b.prefix
}

// Bits returns the prefix length.
func (b Block) Bits() int {
	return b.prefix.Bits()
}

// String returns the normalized CIDR notation.
func (b Block) String() string {
	return b.prefix.String()
}

// First returns the network address.
func (b Block) First() netip.Addr {
	return b.prefix.Addr()
}

// Last returns the broadcast address.
func (b Block) Last() netip.Addr {
	return fromUint32(b.first() | b.hostMask())
}

// Size returns the number of addresses in the block, 2^(32-prefix).
func (b Block) Size() uint64 {
	return uint64(1) << (32 - b.Bits())
}

// Contains reports whether addr lies inside the block.
func (b Block) Contains(addr netip.Addr) bool {
	return b.prefix.Contains(addr)
}

// HostCount returns the number of usable hosts without enumerating them.
func (b Block) HostCount() uint64 {
	n := b.Size()
	if n > 2 {
		return n - 2
	}
	return n
}

// Hosts returns the usable host addresses in ascending order. Network and
// broadcast addresses are excluded when the block has more than two
// addresses; /31 and /32 yield every address.
//
// The sequence is lazy and restartable, so a /8 can be streamed without
// holding its 2^24 addresses in memory.
func (b Block) Hosts() iter.Seq[netip.Addr] {
	first, last := uint64(b.first()), uint64(b.first()|b.hostMask())
	if b.Size() > 2 {
		first++
		last--
	}

	return func(yield func(netip.Addr) bool) {
		for v := first; v <= last; v++ {
			if !yield(fromUint32(uint32(v))) {
				return
			}
		}
	}
}

func (b Block) first() uint32 {
	return toUint32(b.prefix.Addr())
}

func (b Block) hostMask() uint32 {
	if b.Bits() == 0 {
		return ^uint32(0)
	}
	return ^uint32(0) >> b.Bits()
}

func toUint32(a netip.Addr) uint32 {
	v := a.As4()
	return binary.BigEndian.Uint32(v[:])
}

func fromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// trimParseReason drops the `netip.ParsePrefix("...")` preamble so the
// reason does not repeat the input.
func trimParseReason(msg string) string {
	if i := strings.LastIndex(msg, "): "); i >= 0 {
		return msg[i+3:]
	}
	return msg
}
