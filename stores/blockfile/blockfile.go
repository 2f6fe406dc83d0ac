// Package blockfile stores raw blocks and their undo data in numbered flat files.
//
// Blocks are appended to blkNNNNN.dat and undo records to the matching revNNNNN.dat.
// Every record is framed by the network magic and a little-endian length; undo records
// are followed by a double-SHA256 checksum over the previous block hash and the undo
// bytes. Files grow in fixed chunks so the filesystem can keep them contiguous, and a
// new block file is started once the current one would exceed the maximum size.
//
// The Manager also owns the per-file statistics (BlockFileInfo) that pruning and the
// block index flush rely on. Entries changed since the last flush are handed out by
// TakeDirty and persisted by the chain state together with the block index.
package blockfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
)

// FrameHeaderSize is the magic plus length written before every record.
const FrameHeaderSize = 8

// Options configure file sizes. Zero values fall back to the defaults.
type Options struct {
	MaxFileSize    uint32
	BlockChunkSize uint32
	UndoChunkSize  uint32
}

const (
	DefaultMaxFileSize    = 0x8000000 // 128 MiB
	DefaultBlockChunkSize = 0x1000000 // 16 MiB
	DefaultUndoChunkSize  = 0x100000  // 1 MiB
)

// InfoStore is the part of the block index store the manager loads its statistics from.
type InfoStore interface {
	GetBlockFileInfo(ctx context.Context, file int32) (*model.BlockFileInfo, error)
	GetLastBlockFile(ctx context.Context) (int32, bool, error)
}

type Manager struct {
	logger  ulogger.Logger
	dir     string
	magic   [4]byte
	options Options

	mu       sync.Mutex
	infos    []*model.BlockFileInfo
	lastFile int32
	dirty    map[int32]struct{}
}

// New creates a manager writing into dir, creating the directory if needed.
func New(logger ulogger.Logger, dir string, magic [4]byte, options Options) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStorageError("failed to create block file directory %s", dir, err)
	}

	if options.MaxFileSize == 0 {
		options.MaxFileSize = DefaultMaxFileSize
	}

	if options.BlockChunkSize == 0 {
		options.BlockChunkSize = DefaultBlockChunkSize
	}

	if options.UndoChunkSize == 0 {
		options.UndoChunkSize = DefaultUndoChunkSize
	}

	return &Manager{
		logger:  logger,
		dir:     dir,
		magic:   magic,
		options: options,
		infos:   []*model.BlockFileInfo{{}},
		dirty:   make(map[int32]struct{}),
	}, nil
}

// Load reads the statistics of every recorded file. Files after the recorded last file
// are picked up too, since a crash can happen between writing a file and the index.
func (m *Manager) Load(ctx context.Context, store InfoStore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, found, err := store.GetLastBlockFile(ctx)
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	m.infos = m.infos[:0]

	for file := int32(0); ; file++ {
		info, err := store.GetBlockFileInfo(ctx, file)
		if err != nil {
			return err
		}

		if info == nil {
			if file <= last {
				return errors.NewChainStateCorruptedError("missing info for block file %d (last is %d)", file, last)
			}

			break
		}

		m.infos = append(m.infos, info)
	}

	m.lastFile = last

	m.logger.Infof("[BlockFiles] last block file %d: %s", last, m.infos[last])

	return nil
}

func (m *Manager) path(prefix string, file int32) string {
	return filepath.Join(m.dir, fmt.Sprintf("%s%05d.dat", prefix, file))
}

// BlockPath returns the path of the given block file.
func (m *Manager) BlockPath(file int32) string {
	return m.path("blk", file)
}

// UndoPath returns the path of the given undo file.
func (m *Manager) UndoPath(file int32) string {
	return m.path("rev", file)
}

func (m *Manager) info(file int32) *model.BlockFileInfo {
	for int32(len(m.infos)) <= file { //nolint:gosec // file counts stay far below int32
		m.infos = append(m.infos, &model.BlockFileInfo{})
	}

	return m.infos[file]
}

func (m *Manager) markDirty(file int32) {
	m.dirty[file] = struct{}{}
}

// findBlockPos reserves addSize bytes for a block of the given height, moving on to
// a new file when the current one is full. Returns the position of the frame.
func (m *Manager) findBlockPos(addSize uint32, height int32, timestamp uint64) (model.DiskPos, error) {
	file := m.lastFile

	for m.info(file).Size > 0 && m.info(file).Size+addSize >= m.options.MaxFileSize {
		file++
	}

	if file != m.lastFile {
		if err := m.flushFiles(true); err != nil {
			return model.NullDiskPos, err
		}

		m.logger.Infof("[BlockFiles] leaving block file %d: %s", m.lastFile, m.info(m.lastFile))
		m.lastFile = file
	}

	info := m.info(file)
	pos := model.DiskPos{File: file, Pos: info.Size}

	info.AddBlock(height, timestamp)

	oldChunks := (info.Size + m.options.BlockChunkSize - 1) / m.options.BlockChunkSize
	info.Size += addSize
	newChunks := (info.Size + m.options.BlockChunkSize - 1) / m.options.BlockChunkSize

	if newChunks > oldChunks {
		if err := m.allocate(m.BlockPath(file), newChunks*m.options.BlockChunkSize); err != nil {
			return model.NullDiskPos, err
		}
	}

	m.markDirty(file)

	return pos, nil
}

func (m *Manager) findUndoPos(file int32, addSize uint32) (model.DiskPos, error) {
	info := m.info(file)
	pos := model.DiskPos{File: file, Pos: info.UndoSize}

	oldChunks := (info.UndoSize + m.options.UndoChunkSize - 1) / m.options.UndoChunkSize
	info.UndoSize += addSize
	newChunks := (info.UndoSize + m.options.UndoChunkSize - 1) / m.options.UndoChunkSize

	if newChunks > oldChunks {
		if err := m.allocate(m.UndoPath(file), newChunks*m.options.UndoChunkSize); err != nil {
			return model.NullDiskPos, err
		}
	}

	m.markDirty(file)

	return pos, nil
}

// allocate grows a file to at least size bytes.
func (m *Manager) allocate(path string, size uint32) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.NewStorageError("failed to open %s", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return errors.NewStorageError("failed to stat %s", path, err)
	}

	if st.Size() >= int64(size) {
		return nil
	}

	if err = f.Truncate(int64(size)); err != nil {
		return errors.NewStorageError("failed to pre-allocate %s to %d bytes", path, size, err)
	}

	return nil
}

func (m *Manager) writeFrame(path string, pos uint32, payload []byte, trailer []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.NewStorageError("failed to open %s", path, err)
	}
	defer f.Close()

	size, err := safeconversion.IntToUint32(len(payload))
	if err != nil {
		return errors.NewStorageError("record too large for %s", path, err)
	}

	buf := make([]byte, 0, FrameHeaderSize+len(payload)+len(trailer))
	buf = append(buf, m.magic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, size)
	buf = append(buf, payload...)
	buf = append(buf, trailer...)

	if _, err = f.WriteAt(buf, int64(pos)); err != nil {
		return errors.NewStorageError("failed to write to %s at %d", path, pos, err)
	}

	return nil
}

// WriteBlock appends a block at the given height and returns the position of the
// block data, just past its frame header.
func (m *Manager) WriteBlock(block *model.Block, height int32) (model.DiskPos, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := block.Bytes()

	size, err := safeconversion.IntToUint32(len(data) + FrameHeaderSize)
	if err != nil {
		return model.NullDiskPos, errors.NewStorageError("block %s too large", block.Hash(), err)
	}

	pos, err := m.findBlockPos(size, height, uint64(block.Header.Timestamp))
	if err != nil {
		return model.NullDiskPos, err
	}

	if err = m.writeFrame(m.BlockPath(pos.File), pos.Pos, data, nil); err != nil {
		return model.NullDiskPos, err
	}

	pos.Pos += FrameHeaderSize

	return pos, nil
}

// RecordBlock accounts for a block that is already on disk at pos, as found when
// importing an existing block file.
func (m *Manager) RecordBlock(pos model.DiskPos, size uint32, height int32, timestamp uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos.File > m.lastFile {
		m.lastFile = pos.File
	}

	info := m.info(pos.File)
	info.AddBlock(height, timestamp)

	if end := pos.Pos + size; end > info.Size {
		info.Size = end
	}

	m.markDirty(pos.File)
}

// ReadBlock reads the block stored at pos and checks the frame in front of it.
func (m *Manager) ReadBlock(pos model.DiskPos) (*model.Block, error) {
	payload, err := m.readFrame(m.BlockPath(pos.File), pos.Pos, 0)
	if err != nil {
		return nil, err
	}

	block, err := model.NewBlockFromBytes(payload)
	if err != nil {
		return nil, errors.NewStorageError("failed to decode block at %s", pos, err)
	}

	return block, nil
}

func (m *Manager) readFrame(path string, pos uint32, trailerSize int) ([]byte, error) {
	if pos < FrameHeaderSize {
		return nil, errors.NewStorageError("invalid record position %d in %s", pos, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageError("failed to open %s", path, err)
	}
	defer f.Close()

	var header [FrameHeaderSize]byte
	if _, err = f.ReadAt(header[:], int64(pos-FrameHeaderSize)); err != nil {
		return nil, errors.NewStorageError("failed to read record header in %s at %d", path, pos, err)
	}

	if !bytes.Equal(header[:4], m.magic[:]) {
		return nil, errors.NewStorageError("bad magic %x in %s at %d", header[:4], path, pos)
	}

	size := binary.LittleEndian.Uint32(header[4:])

	payload := make([]byte, int(size)+trailerSize)
	if _, err = f.ReadAt(payload, int64(pos)); err != nil {
		return nil, errors.NewStorageError("failed to read record in %s at %d", path, pos, err)
	}

	return payload, nil
}

// WriteUndo appends undo data for a block stored in file. The checksum ties the
// record to the block's parent so it cannot be applied to the wrong block.
func (m *Manager) WriteUndo(undo *model.BlockUndo, file int32, prevHash *chainhash.Hash) (model.DiskPos, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := undo.Bytes()
	checksum := model.UndoChecksum(prevHash, data)

	size, err := safeconversion.IntToUint32(len(data) + FrameHeaderSize + chainhash.HashSize)
	if err != nil {
		return model.NullDiskPos, errors.NewStorageError("undo data too large", err)
	}

	pos, err := m.findUndoPos(file, size)
	if err != nil {
		return model.NullDiskPos, err
	}

	if err = m.writeFrame(m.UndoPath(file), pos.Pos, data, checksum[:]); err != nil {
		return model.NullDiskPos, err
	}

	pos.Pos += FrameHeaderSize

	return pos, nil
}

// ReadUndo reads and verifies the undo data at pos.
func (m *Manager) ReadUndo(pos model.DiskPos, prevHash *chainhash.Hash) (*model.BlockUndo, error) {
	payload, err := m.readFrame(m.UndoPath(pos.File), pos.Pos, chainhash.HashSize)
	if err != nil {
		return nil, err
	}

	data := payload[:len(payload)-chainhash.HashSize]
	checksum := model.UndoChecksum(prevHash, data)

	if !bytes.Equal(checksum[:], payload[len(data):]) {
		return nil, errors.NewUndoCorruptError("undo checksum mismatch at %s", pos)
	}

	return model.NewBlockUndoFromBytes(data)
}

// FlushFiles syncs the current block and undo files. With finalize the files are
// truncated to their used size, which is done when moving on to a new file.
func (m *Manager) FlushFiles(finalize bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.flushFiles(finalize)
}

func (m *Manager) flushFiles(finalize bool) error {
	info := m.info(m.lastFile)

	for _, f := range []struct {
		path string
		size uint32
	}{
		{m.BlockPath(m.lastFile), info.Size},
		{m.UndoPath(m.lastFile), info.UndoSize},
	} {
		if err := syncFile(f.path, f.size, finalize); err != nil {
			return err
		}
	}

	return nil
}

func syncFile(path string, size uint32, finalize bool) error {
	fh, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.NewStorageError("failed to open %s", path, err)
	}
	defer fh.Close()

	if finalize {
		if err = fh.Truncate(int64(size)); err != nil {
			return errors.NewStorageError("failed to truncate %s", path, err)
		}
	}

	if err = fh.Sync(); err != nil {
		return errors.NewStorageError("failed to sync %s", path, err)
	}

	return nil
}

// TakeDirty returns copies of the file infos changed since the last call.
func (m *Manager) TakeDirty() (map[int32]*model.BlockFileInfo, int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int32]*model.BlockFileInfo, len(m.dirty))

	for file := range m.dirty {
		clone := *m.infos[file]
		out[file] = &clone
	}

	m.dirty = make(map[int32]struct{})

	return out, m.lastFile
}

// RestoreDirty re-marks files whose infos failed to persist.
func (m *Manager) RestoreDirty(files map[int32]*model.BlockFileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for file := range files {
		m.markDirty(file)
	}
}

// FileInfo returns a copy of the statistics of a file.
func (m *Manager) FileInfo(file int32) model.BlockFileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	return *m.info(file)
}

func (m *Manager) LastFile() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastFile
}

// CurrentUsage is the space taken by all block and undo files.
func (m *Manager) CurrentUsage() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total uint64
	for _, info := range m.infos {
		total += uint64(info.Size) + uint64(info.UndoSize)
	}

	return total
}

// PruneFile forgets the contents of a file. The files themselves are removed by
// UnlinkFiles once the block index no longer points at them.
func (m *Manager) PruneFile(file int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	*m.info(file) = model.BlockFileInfo{}
	m.markDirty(file)
}

// UnlinkFiles deletes the block and undo file of each given number. Block and undo
// files always go together.
func (m *Manager) UnlinkFiles(files []int32) {
	for _, file := range files {
		for _, path := range []string{m.BlockPath(file), m.UndoPath(file)} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				m.logger.Warnf("[BlockFiles] failed to remove %s: %v", path, err)
			}
		}

		m.logger.Infof("[BlockFiles] pruned block file %d", file)
	}
}

// FileExists reports whether the block file is present on disk.
func (m *Manager) FileExists(file int32) bool {
	_, err := os.Stat(m.BlockPath(file))
	return err == nil
}

// FileCount returns the number of files tracked, including empty pruned ones.
func (m *Manager) FileCount() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int32(len(m.infos)) //nolint:gosec // file counts stay far below int32
}
