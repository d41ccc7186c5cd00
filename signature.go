package depot

import (
	"encoding/binary"
	"iter"
	"math/bits"
	"strconv"
	"strings"

	"github.com/TheBitDrifter/mask"
	"github.com/cespare/xxhash/v2"
)

// MaxComponents is the number of distinct component types a registry can hold.
const MaxComponents = 64

// ComponentID identifies a component type within one registry.
type ComponentID uint8

// Signature is a bitmask with one bit per ComponentID.
type Signature uint64

func bit(id ComponentID) Signature {
	return Signature(1) << id
}

// SignatureOf builds a signature from component ids.
func SignatureOf(ids ...ComponentID) Signature {
	var s Signature
	for _, id := range ids {
		s |= bit(id)
	}
	return s
}

func (s Signature) Has(id ComponentID) bool {
	return s&bit(id) != 0
}

func (s Signature) With(id ComponentID) Signature {
	return s | bit(id)
}

func (s Signature) Without(id ComponentID) Signature {
	return s &^ bit(id)
}

func (s Signature) Count() int {
	return bits.OnesCount64(uint64(s))
}

func (s Signature) IsEmpty() bool {
	return s == 0
}

// ContainsAll reports whether every bit of o is set in s.
func (s Signature) ContainsAll(o Signature) bool {
	return s&o == o
}

// Intersects reports whether s and o share at least one bit.
func (s Signature) Intersects(o Signature) bool {
	return s&o != 0
}

// Matches reports whether an archetype with signature s satisfies a query
// requiring all of required and none of excluded.
func (s Signature) Matches(required, excluded Signature) bool {
	return s&required == required && s&excluded == 0
}

// Components yields the component ids set in s in ascending order.
func (s Signature) Components() iter.Seq[ComponentID] {
	return func(yield func(ComponentID) bool) {
		rest := uint64(s)
		for rest != 0 {
			id := bits.TrailingZeros64(rest)
			if !yield(ComponentID(id)) {
				return
			}
			rest &= rest - 1
		}
	}
}

// Mask mirrors the signature into a mask.Mask for the composite filter tree.
func (s Signature) Mask() mask.Mask {
	var m mask.Mask
	for id := range s.Components() {
		m.Mark(uint32(id))
	}
	return m
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for id := range s.Components() {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Itoa(int(id)))
	}
	b.WriteByte('}')
	return b.String()
}

// ArchetypeSignature is the identity of an archetype. Equal masks mean equal
// archetypes; Hash and Count are derived.
type ArchetypeSignature struct {
	Mask  Signature
	Count int
	Hash  uint64
}

func NewArchetypeSignature(s Signature) ArchetypeSignature {
	return ArchetypeSignature{
		Mask:  s,
		Count: s.Count(),
		Hash:  hashSignatures(s),
	}
}

func hashSignatures(sigs ...Signature) uint64 {
	buf := make([]byte, 8*len(sigs))
	for i, s := range sigs {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(s))
	}
	return xxhash.Sum64(buf)
}
