package pager

import "bytes"

// ───────────────────────────────────────────────────────────────────────────
// Cursor — ordered positioning over a BTree for the VDBE
// ───────────────────────────────────────────────────────────────────────────
//
// A Cursor is a stateful position into a BTree. It is the only way the VDBE
// touches page contents: rewind/last/next/prev walk the leaf sibling chain,
// seek descends from the root, and insert/delete mutate through the owning
// BTree. A cursor never suspends on I/O itself — the Pager's ReadPage does,
// and that suspension is surfaced to the VDBE by the Pager, not the cursor.

// SeekOp selects the comparison used by Cursor.Seek.
type SeekOp int

const (
	SeekEQ SeekOp = iota
	SeekGE
	SeekGT
	SeekLE
	SeekLT
)

// Cursor positions a single entry within a leaf page of a BTree.
type Cursor struct {
	bt     *BTree
	leaf   PageID
	pos    int // index of current entry within leaf's slot directory
	valid  bool
	bp     *BTreePage // cached wrap of the pinned leaf page
	pinned bool
}

// NewCursor returns an unpositioned cursor over bt. Call Rewind, Last, or
// Seek before reading.
func NewCursor(bt *BTree) *Cursor {
	return &Cursor{bt: bt}
}

func (c *Cursor) unpinCurrent() {
	if c.pinned {
		c.bt.pager.UnpinPage(c.leaf)
		c.pinned = false
		c.bp = nil
	}
}

// Close releases any page pin held by the cursor. Safe to call multiple times.
func (c *Cursor) Close() {
	c.unpinCurrent()
	c.valid = false
}

func (c *Cursor) loadLeaf(id PageID) error {
	c.unpinCurrent()
	buf, err := c.bt.pager.ReadPage(id)
	if err != nil {
		return err
	}
	c.leaf = id
	c.bp = WrapBTreePage(buf)
	c.pinned = true
	return nil
}

// leftmostLeaf descends from pageID following the first child at every
// internal level, returning the leftmost leaf.
func (c *Cursor) leftmostLeaf(pageID PageID) (PageID, error) {
	for {
		buf, err := c.bt.pager.ReadPage(pageID)
		if err != nil {
			return 0, err
		}
		bp := WrapBTreePage(buf)
		if bp.IsLeaf() {
			c.bt.pager.UnpinPage(pageID)
			return pageID, nil
		}
		entries := bp.GetAllInternalEntries()
		c.bt.pager.UnpinPage(pageID)
		if len(entries) == 0 {
			return pageID, nil
		}
		pageID = entries[0].ChildID
	}
}

// rightmostLeaf descends following the rightmost child at every level.
func (c *Cursor) rightmostLeaf(pageID PageID) (PageID, error) {
	for {
		buf, err := c.bt.pager.ReadPage(pageID)
		if err != nil {
			return 0, err
		}
		bp := WrapBTreePage(buf)
		if bp.IsLeaf() {
			c.bt.pager.UnpinPage(pageID)
			return pageID, nil
		}
		right := bp.RightChild()
		c.bt.pager.UnpinPage(pageID)
		pageID = right
	}
}

// Rewind positions the cursor on the first (smallest key) entry.
func (c *Cursor) Rewind() error {
	id, err := c.leftmostLeaf(c.bt.root)
	if err != nil {
		return err
	}
	if err := c.loadLeaf(id); err != nil {
		return err
	}
	c.pos = 0
	c.valid = c.bp.KeyCount() > 0
	if !c.valid {
		return c.advanceToNonEmptyLeaf(true)
	}
	return nil
}

// Last positions the cursor on the last (largest key) entry.
func (c *Cursor) Last() error {
	id, err := c.rightmostLeaf(c.bt.root)
	if err != nil {
		return err
	}
	if err := c.loadLeaf(id); err != nil {
		return err
	}
	n := c.bp.KeyCount()
	c.pos = n - 1
	c.valid = n > 0
	if !c.valid {
		return c.advanceToNonEmptyLeaf(false)
	}
	return nil
}

// advanceToNonEmptyLeaf walks the sibling chain in the given direction
// (forward=true) until a non-empty leaf is found or the chain ends. Used to
// skirt pages left empty by deletes that were never merged (underflow is
// tolerated, so empty leaves can linger until a rebalance or vacuum).
func (c *Cursor) advanceToNonEmptyLeaf(forward bool) error {
	for {
		var next PageID
		if forward {
			next = c.bp.NextLeaf()
		} else {
			next = c.bp.PrevLeaf()
		}
		if next == InvalidPageID {
			c.valid = false
			return nil
		}
		if err := c.loadLeaf(next); err != nil {
			return err
		}
		n := c.bp.KeyCount()
		if n > 0 {
			if forward {
				c.pos = 0
			} else {
				c.pos = n - 1
			}
			c.valid = true
			return nil
		}
	}
}

// Next advances to the next entry in ascending key order.
func (c *Cursor) Next() error {
	if !c.valid {
		return nil
	}
	c.pos++
	if c.pos < c.bp.KeyCount() {
		return nil
	}
	return c.advanceToNonEmptyLeaf(true)
}

// Prev moves to the previous entry in ascending key order.
func (c *Cursor) Prev() error {
	if !c.valid {
		return nil
	}
	c.pos--
	if c.pos >= 0 {
		return nil
	}
	return c.advanceToNonEmptyLeaf(false)
}

// Seek positions the cursor at the first entry satisfying `key op stored`.
// Returns valid=false if no such entry exists.
func (c *Cursor) Seek(key []byte, op SeekOp) error {
	leafID, err := c.bt.findLeaf(key)
	if err != nil {
		return err
	}
	if err := c.loadLeaf(leafID); err != nil {
		return err
	}
	// Lower-bound position: the first entry >= key, which is also where a
	// missing key would insert. FindLeafEntry is exact-match-only.
	pos := c.bp.searchLeaf(key)
	found := pos < c.bp.KeyCount() && bytes.Equal(c.bp.GetLeafEntry(pos).Key, key)

	switch op {
	case SeekEQ:
		c.pos = pos
		c.valid = found
	case SeekGE:
		c.pos = pos
		c.valid = c.pos < c.bp.KeyCount()
		if !c.valid {
			return c.advanceToNonEmptyLeaf(true)
		}
	case SeekGT:
		if found {
			c.pos = pos + 1
		} else {
			c.pos = pos
		}
		c.valid = c.pos < c.bp.KeyCount()
		if !c.valid {
			return c.advanceToNonEmptyLeaf(true)
		}
	case SeekLE:
		if found {
			c.pos = pos
			c.valid = true
		} else {
			c.pos = pos - 1
			c.valid = c.pos >= 0
			if !c.valid {
				return c.advanceToNonEmptyLeaf(false)
			}
		}
	case SeekLT:
		c.pos = pos - 1
		c.valid = c.pos >= 0
		if !c.valid {
			return c.advanceToNonEmptyLeaf(false)
		}
	}
	return nil
}

// Valid reports whether the cursor currently points at an entry.
func (c *Cursor) Valid() bool { return c.valid }

// Key returns the key of the current entry.
func (c *Cursor) Key() []byte {
	if !c.valid {
		return nil
	}
	return c.bp.GetLeafEntry(c.pos).Key
}

// Record returns the payload of the current entry, resolving overflow
// chains transparently.
func (c *Cursor) Record() ([]byte, error) {
	if !c.valid {
		return nil, nil
	}
	entry := c.bp.GetLeafEntry(c.pos)
	if entry.Overflow {
		return c.bt.readOverflow(entry.OverflowPageID, entry.TotalSize)
	}
	return entry.Value, nil
}

// Exists reports whether key is present, without disturbing the cursor's
// current position.
func (c *Cursor) Exists(key []byte) (bool, error) {
	_, found, err := c.bt.Get(key)
	return found, err
}

// Insert writes key/value through the owning BTree and invalidates the
// cursor's current page pin (the tree may have split underneath it).
func (c *Cursor) Insert(txID TxID, key, value []byte) error {
	c.unpinCurrent()
	c.valid = false
	return c.bt.Insert(txID, key, value)
}

// Delete removes the entry the cursor is positioned on.
func (c *Cursor) Delete(txID TxID) (bool, error) {
	if !c.valid {
		return false, nil
	}
	key := append([]byte(nil), c.bp.GetLeafEntry(c.pos).Key...)
	c.unpinCurrent()
	c.valid = false
	return c.bt.Delete(txID, key)
}

// compareKeys exposes the tree's byte-lexicographic ordering used by the
// record codec's collation-aware encoders to build seek keys that sort
// consistently with stored entries.
func compareKeys(a, b []byte) int { return bytes.Compare(a, b) }
