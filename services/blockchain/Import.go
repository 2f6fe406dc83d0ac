package blockchain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// importPeerID is the peer id blocks read from files are reported with.
const importPeerID = "import"

// blockScanner finds magic framed blocks in a stream, resynchronising on the next magic
// after garbage or a record that does not decode.
type blockScanner struct {
	r     *bufio.Reader
	magic [4]byte
	max   int
}

func newBlockScanner(r io.Reader, magic [4]byte, maxBlockSize int) *blockScanner {
	return &blockScanner{
		r:     bufio.NewReaderSize(r, 1<<20),
		magic: magic,
		max:   maxBlockSize,
	}
}

// unread puts b back in front of the stream.
func (s *blockScanner) unread(b []byte) {
	if len(b) == 0 {
		return
	}

	rest := bytes.Clone(b)
	s.r = bufio.NewReaderSize(io.MultiReader(bytes.NewReader(rest), s.r), 1<<20)
}

// next returns the next block, or io.EOF at the end of the stream.
func (s *blockScanner) next() (*model.Block, error) {
	for {
		if err := s.seekMagic(); err != nil {
			return nil, err
		}

		var sizeBytes [4]byte
		if _, err := io.ReadFull(s.r, sizeBytes[:]); err != nil {
			return nil, io.EOF
		}

		size := binary.LittleEndian.Uint32(sizeBytes[:])
		if size < model.BlockHeaderSize || int64(size) > int64(s.max) {
			s.unread(sizeBytes[:])
			continue
		}

		payload := make([]byte, size)

		n, err := io.ReadFull(s.r, payload)
		if err != nil {
			// truncated record at the end, look for another magic in what was read
			s.unread(append(sizeBytes[:], payload[:n]...))
			continue
		}

		reader := bytes.NewReader(payload)

		block, err := model.NewBlockFromReader(reader)
		if err != nil {
			s.unread(append(sizeBytes[:], payload...))
			continue
		}

		s.unread(payload[len(payload)-reader.Len():])

		return block, nil
	}
}

// seekMagic consumes the stream up to and including the next magic.
func (s *blockScanner) seekMagic() error {
	var window [4]byte

	filled := 0

	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return io.EOF
		}

		if filled < 4 {
			window[filled] = b
			filled++
		} else {
			copy(window[:], window[1:])
			window[3] = b
		}

		if filled == 4 && window == s.magic {
			return nil
		}
	}
}

// LoadExternalBlockFile imports the blocks of a bootstrap or block file. Blocks whose
// parent is not known yet are held back until the parent turns up later in the
// stream. Invalid blocks are logged and skipped; storage errors abort the import.
// It returns the number of blocks loaded.
func (c *ChainState) LoadExternalBlockFile(ctx context.Context, r io.Reader) (int, error) {
	if err := c.checkNotAborted(); err != nil {
		return 0, err
	}

	c.importing.Store(true)
	defer c.importing.Store(false)

	scanner := newBlockScanner(r, c.params.MessageStart, c.params.MaxBlockSize)
	waiting := make(map[chainhash.Hash][]*model.Block)
	loaded := 0

	for {
		if err := ctx.Err(); err != nil {
			return loaded, errors.NewContextCanceledError("[ChainState] import interrupted", err)
		}

		block, err := scanner.next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return loaded, err
		}

		hash := block.Hash()

		c.mu.Lock()
		parentKnown := c.tree.Lookup(block.Header.HashPrevBlock) != nil
		existing := c.tree.Lookup(hash)
		haveData := existing != nil && existing.HaveData()
		c.mu.Unlock()

		if !hash.IsEqual(c.params.GenesisHash) && !parentKnown {
			waiting[*block.Header.HashPrevBlock] = append(waiting[*block.Header.HashPrevBlock], block)
			continue
		}

		if !haveData {
			ok, pErr := c.importBlock(ctx, block)
			if pErr != nil {
				return loaded, pErr
			}

			if ok {
				loaded++
			}
		} else if existing.Height%1000 == 0 {
			c.logger.Infof("[ChainState] import: already had block %s at height %d", hash, existing.Height)
		}

		queue := []chainhash.Hash{*hash}

		for len(queue) > 0 {
			head := queue[0]
			queue = queue[1:]

			children := waiting[head]
			delete(waiting, head)

			for _, child := range children {
				ok, pErr := c.importBlock(ctx, child)
				if pErr != nil {
					return loaded, pErr
				}

				if ok {
					loaded++
				}

				queue = append(queue, *child.Hash())
			}
		}
	}

	if len(waiting) > 0 {
		c.logger.Warnf("[ChainState] import: %d blocks with unknown parents were skipped", len(waiting))
	}

	c.logger.Infof("[ChainState] import: loaded %d blocks", loaded)

	c.importing.Store(false)

	if err := c.ActivateBestChain(ctx, nil); err != nil {
		return loaded, err
	}

	return loaded, nil
}

// importBlock processes one imported block. Rule violations are not errors for the
// import as a whole.
func (c *ChainState) importBlock(ctx context.Context, block *model.Block) (bool, error) {
	err := c.ProcessNewBlock(ctx, block, importPeerID, true, nil)
	if err == nil {
		return true, nil
	}

	if errors.IsInvalid(err) {
		c.logger.Debugf("[ChainState] import: skipping block %s: %v", block.Hash(), err)
		return false, nil
	}

	return false, err
}
