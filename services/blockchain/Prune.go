package blockchain

import (
	"slices"

	"github.com/bsv-blockchain/chainstate/model"
)

// FindFilesToPrune marks the block files to delete to get under the prune target and
// returns their numbers. The files are removed from disk by the next flush.
func (c *ChainState) FindFilesToPrune() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.findFilesToPrune(c.params.PruneAfterHeight)
}

// findFilesToPrune walks the block files oldest first and prunes until the usage plus
// one chunk of headroom fits the target. Files holding any of the last MinBlocksToKeep
// blocks are kept, as is the file currently written to. Nothing is pruned until the
// tip is above pruneAfterHeight.
func (c *ChainState) findFilesToPrune(pruneAfterHeight int32) []int32 {
	target := c.settings.BlockChain.PruneTargetBytes

	tip := c.chain.Tip()
	if tip == nil || target == 0 || tip.Height <= pruneAfterHeight {
		return nil
	}

	// the last MinBlocksToKeep blocks and the tip itself stay on disk
	lastPrunable := tip.Height - MinBlocksToKeep - 1
	usage := c.files.CurrentUsage()
	buffer := uint64(c.settings.BlockChain.BlockFileChunkSize) + uint64(c.settings.BlockChain.UndoFileChunkSize)

	if usage+buffer < target {
		return nil
	}

	var pruned []int32

	lastFile := c.files.LastFile()

	for file := int32(0); file < lastFile; file++ {
		info := c.files.FileInfo(file)
		if info.Size == 0 {
			continue
		}

		if usage+buffer < target {
			break
		}

		// blocks in this file may still be needed for a reorg
		if info.HeightLast > lastPrunable {
			continue
		}

		c.pruneOneBlockFile(file)

		pruned = append(pruned, file)
		usage -= uint64(info.Size) + uint64(info.UndoSize)
	}

	if len(pruned) > 0 {
		c.logger.Infof("[ChainState] prune: target=%dMiB usage=%dMiB, pruning %d files up to height %d",
			target/1024/1024, usage/1024/1024, len(pruned), lastPrunable)
	}

	return pruned
}

// pruneOneBlockFile forgets the data of every block stored in file.
func (c *ChainState) pruneOneBlockFile(file int32) {
	c.tree.ForEach(func(bi *model.BlockIndex) bool {
		if bi.File != file || bi.Status&model.StatusHaveMask == 0 {
			return true
		}

		bi.Status &^= model.StatusHaveMask
		bi.File = -1
		bi.DataPos = 0
		bi.UndoPos = 0
		c.tree.MarkDirty(bi)

		// a pruned block can no longer be linked in when its parent's data arrives
		if parent := c.tree.Parent(bi); parent != nil {
			if children, ok := c.unlinked[parent.ID]; ok {
				children = slices.DeleteFunc(children, func(id model.BlockID) bool { return id == bi.ID })
				if len(children) == 0 {
					delete(c.unlinked, parent.ID)
				} else {
					c.unlinked[parent.ID] = children
				}
			}
		}

		return true
	})

	c.files.PruneFile(file)
}

// UnlinkPrunedFiles deletes the files of the given numbers from disk.
func (c *ChainState) UnlinkPrunedFiles(files []int32) {
	c.files.UnlinkFiles(files)
	prometheusChainStatePrunedFiles.Add(float64(len(files)))
}
