package model

// Chain is a path through a BlockTree from genesis to a tip, indexed by height.
type Chain struct {
	tree *BlockTree
	ids  []BlockID
}

func NewChain(tree *BlockTree) *Chain {
	return &Chain{tree: tree}
}

// Genesis returns the first entry, or nil when the chain is empty.
func (c *Chain) Genesis() *BlockIndex {
	if len(c.ids) == 0 {
		return nil
	}

	return c.tree.Get(c.ids[0])
}

// Tip returns the last entry, or nil when the chain is empty.
func (c *Chain) Tip() *BlockIndex {
	if len(c.ids) == 0 {
		return nil
	}

	return c.tree.Get(c.ids[len(c.ids)-1])
}

// Height returns the tip height, -1 for an empty chain.
func (c *Chain) Height() int32 {
	return int32(len(c.ids)) - 1
}

// At returns the entry at the given height, or nil when out of range.
func (c *Chain) At(height int32) *BlockIndex {
	if height < 0 || int(height) >= len(c.ids) {
		return nil
	}

	return c.tree.Get(c.ids[height])
}

func (c *Chain) Contains(bi *BlockIndex) bool {
	return bi != nil && c.At(bi.Height) == bi
}

// Next returns the successor of bi in this chain.
func (c *Chain) Next(bi *BlockIndex) *BlockIndex {
	if !c.Contains(bi) {
		return nil
	}

	return c.At(bi.Height + 1)
}

// SetTip makes the chain end at bi, reusing the shared prefix.
func (c *Chain) SetTip(bi *BlockIndex) {
	if bi == nil {
		c.ids = c.ids[:0]
		return
	}

	if int(bi.Height) >= len(c.ids) {
		c.ids = append(c.ids, make([]BlockID, int(bi.Height)+1-len(c.ids))...)
	} else {
		c.ids = c.ids[:bi.Height+1]
	}

	for walk := bi; walk != nil && c.ids[walk.Height] != walk.ID; walk = c.tree.Parent(walk) {
		c.ids[walk.Height] = walk.ID
	}
}

// FindFork returns the last entry of this chain that is also an ancestor of bi.
func (c *Chain) FindFork(bi *BlockIndex) *BlockIndex {
	if bi == nil {
		return nil
	}

	if bi.Height > c.Height() {
		bi = c.tree.Ancestor(bi, c.Height())
	}

	for bi != nil && !c.Contains(bi) {
		bi = c.tree.Parent(bi)
	}

	return bi
}
