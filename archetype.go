package depot

import (
	"github.com/TheBitDrifter/mask"
	"github.com/rotisserie/eris"
)

type ArchetypeID uint32

// Archetype groups the entities that share one exact signature. Its signature
// never changes; entities move between archetypes instead.
type Archetype struct {
	id      ArchetypeID
	sig     ArchetypeSignature
	mask    mask.Mask
	members *SparseSet
	columns [MaxComponents]componentStorage
	order   []ComponentID
}

func newArchetype(id ArchetypeID, sig Signature, components *componentRegistry, chunk ChunkConfig, ss SparseSetConfig) (*Archetype, error) {
	a := &Archetype{
		id:      id,
		sig:     NewArchetypeSignature(sig),
		mask:    sig.Mask(),
		members: NewSparseSet(ss),
	}
	for cid := range sig.Components() {
		info := components.byComponentID(cid)
		if info == nil {
			return nil, eris.Wrapf(ErrUnknownComponent, "archetype %v references component %d", sig, cid)
		}
		a.columns[cid] = info.newStorage(cid, info.layout, chunk, ss)
		a.order = append(a.order, cid)
	}
	return a, nil
}

func (a *Archetype) ID() ArchetypeID {
	return a.id
}

func (a *Archetype) Signature() ArchetypeSignature {
	return a.sig
}

// Mask returns the mask.Mask mirror of the signature.
func (a *Archetype) Mask() mask.Mask {
	return a.mask
}

func (a *Archetype) Len() int {
	return a.members.Len()
}

func (a *Archetype) IsEmpty() bool {
	return a.members.Len() == 0
}

// Entities returns the members in dense order. The slice is shared and only
// valid until the next structural change.
func (a *Archetype) Entities() []EntityHandle {
	return a.members.Entities()
}

func (a *Archetype) Contains(e EntityHandle) bool {
	return a.members.Contains(e)
}

func (a *Archetype) Has(id ComponentID) bool {
	return a.sig.Mask.Has(id)
}

func (a *Archetype) Components() []ComponentID {
	return a.order
}

func (a *Archetype) Matches(required, excluded Signature) bool {
	return a.sig.Mask.Matches(required, excluded)
}

func (a *Archetype) column(id ComponentID) componentStorage {
	return a.columns[id]
}

// add makes e a member with zero values in every column.
func (a *Archetype) add(e EntityHandle) error {
	for i, id := range a.order {
		if err := a.columns[id].insertValue(e, nil); err != nil {
			for _, undo := range a.order[:i] {
				a.columns[undo].remove(e)
			}
			return err
		}
	}
	a.members.Insert(e)
	return nil
}

// remove drops e and its values from every column.
func (a *Archetype) remove(e EntityHandle) bool {
	if !a.members.Remove(e) {
		return false
	}
	for _, id := range a.order {
		a.columns[id].remove(e)
	}
	return true
}

// moveTo transfers e into dst. Columns dst shares are moved, columns dst lacks
// are dropped, and columns only dst has are left for the caller to fill. On
// error the move is undone.
func (a *Archetype) moveTo(e EntityHandle, dst *Archetype) error {
	moved := make([]ComponentID, 0, len(a.order))
	for _, id := range a.order {
		to := dst.columns[id]
		if to == nil {
			continue
		}
		if err := a.columns[id].transfer(e, to); err != nil {
			for _, undo := range moved {
				// the source just released a slot, so moving back has room
				_ = dst.columns[undo].transfer(e, a.columns[undo])
			}
			return eris.Wrapf(err, "failed to move %v from archetype %d to %d", e, a.id, dst.id)
		}
		moved = append(moved, id)
	}
	for _, id := range a.order {
		if dst.columns[id] == nil {
			a.columns[id].remove(e)
		}
	}
	a.members.Remove(e)
	dst.members.Insert(e)
	return nil
}

// ArchetypeStats describes one archetype.
type ArchetypeStats struct {
	ID          ArchetypeID
	Signature   Signature
	Components  int
	Entities    int
	Chunks      int
	MemoryBytes uintptr
}

func (a *Archetype) Stats() ArchetypeStats {
	s := ArchetypeStats{
		ID:          a.id,
		Signature:   a.sig.Mask,
		Components:  a.sig.Count,
		Entities:    a.members.Len(),
		MemoryBytes: a.members.memoryUsage(),
	}
	for _, id := range a.order {
		s.Chunks += a.columns[id].chunkCount()
		s.MemoryBytes += a.columns[id].memoryUsage()
	}
	return s
}
