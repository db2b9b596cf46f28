package ns

import (
	"kora/kerr"
	"kora/kirq"
)

// Handle is a 32-bit id held by one owner thread, referencing exactly one
// Resource by path, never by pointer, so the tree can be restructured
// underneath it (§3, §9).
type Handle struct {
	ID    uint32
	Owner uint32
	Path  []string
}

// HandleTable is the mapping id -> Handle, with a monotonic cursor that
// advances past occupied slots, wrapping as needed (§4.7).
type HandleTable struct {
	guard   kirq.Guard
	tree    *Tree
	handles map[uint32]*Handle
	cursor  uint32
}

// NewHandleTable returns a HandleTable resolving paths against tree.
func NewHandleTable(tree *Tree) *HandleTable {
	return &HandleTable{tree: tree, handles: make(map[uint32]*Handle)}
}

// Acquire looks up path, fails with EntryNotFound if nothing is there and
// Permissions if the resource is already open (single-open discipline),
// otherwise marks it open and returns a fresh handle id (§4.7 acquire).
func (h *HandleTable) Acquire(path []string, owner uint32) (uint32, error) {
	var id uint32
	var err error
	h.guard.Do(func() {
		res, ok := h.tree.Get(path)
		if !ok {
			err = kerr.ENOENT
			return
		}
		if res.Payload.IsOpen() {
			err = kerr.EPERM
			return
		}
		res.Payload.SetOpen(true)
		id = h.nextIDLocked()
		h.handles[id] = &Handle{ID: id, Owner: owner, Path: path}
	})
	return id, err
}

func (h *HandleTable) nextIDLocked() uint32 {
	for {
		if _, ok := h.handles[h.cursor]; !ok {
			id := h.cursor
			h.cursor++
			return id
		}
		h.cursor++
	}
}

// Release clears id's open flag; if the resource then declares itself
// one-shot, it is removed from the namespace entirely (§4.7 release).
func (h *HandleTable) Release(id uint32) error {
	var err error
	h.guard.Do(func() {
		hd, ok := h.handles[id]
		if !ok {
			err = kerr.EINVHANDLE
			return
		}
		delete(h.handles, id)
		res, ok := h.tree.Get(hd.Path)
		if !ok {
			return
		}
		res.Payload.SetOpen(false)
		if res.Payload.OneShot() {
			h.tree.Remove(hd.Path)
		}
	})
	return err
}

// Lookup returns the handle for id, if it exists and is live (§8 property
// 5: an operation on a handle whose owner is gone must fail InvalidHandle;
// callers are expected to check Owner against the calling thread).
func (h *HandleTable) Lookup(id uint32) (*Handle, bool) {
	var hd *Handle
	var ok bool
	h.guard.Do(func() {
		hd, ok = h.handles[id]
	})
	return hd, ok
}

// Resource resolves id all the way to its current Resource, or
// InvalidHandle if id is unknown or its resource has since been removed.
func (h *HandleTable) Resource(id uint32) (*Resource, error) {
	hd, ok := h.Lookup(id)
	if !ok {
		return nil, kerr.EINVHANDLE
	}
	res, ok := h.tree.Get(hd.Path)
	if !ok {
		return nil, kerr.EINVHANDLE
	}
	return res, nil
}
