package blockchain

import (
	"context"
	"sync"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// MockStore keeps the block index in maps. WriteErr, when set, is returned by the next
// WriteBatchSync to simulate a failing disk.
type MockStore struct {
	mu       sync.Mutex
	Blocks   map[chainhash.Hash]*model.DiskBlockIndex
	FileInfo map[int32]*model.BlockFileInfo
	LastFile int32
	HasLast  bool
	Flags    map[string]bool
	Writes   int
	WriteErr error
}

func NewMockStore() *MockStore {
	return &MockStore{
		Blocks:   map[chainhash.Hash]*model.DiskBlockIndex{},
		FileInfo: map[int32]*model.BlockFileInfo{},
		Flags:    map[string]bool{},
	}
}

func (m *MockStore) LoadBlockIndex(_ context.Context) ([]*model.DiskBlockIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.DiskBlockIndex, 0, len(m.Blocks))
	for _, rec := range m.Blocks {
		out = append(out, rec)
	}

	return out, nil
}

func (m *MockStore) GetBlockFileInfo(_ context.Context, file int32) (*model.BlockFileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.FileInfo[file]
	if !ok {
		return nil, nil
	}

	clone := *info

	return &clone, nil
}

func (m *MockStore) GetLastBlockFile(_ context.Context) (int32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.LastFile, m.HasLast, nil
}

func (m *MockStore) WriteBatchSync(_ context.Context, batch *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		err := m.WriteErr
		m.WriteErr = nil

		return err
	}

	for file, info := range batch.FileInfo {
		clone := *info
		m.FileInfo[file] = &clone
	}

	for _, rec := range batch.Blocks {
		clone := *rec
		m.Blocks[*rec.Header.Hash()] = &clone
	}

	m.LastFile = batch.LastFile
	m.HasLast = true
	m.Writes++

	return nil
}

func (m *MockStore) GetFlag(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Flags[name], nil
}

func (m *MockStore) SetFlag(_ context.Context, name string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Flags[name] = value

	return nil
}

func (m *MockStore) Close() error {
	return nil
}

// WriteCount returns how many batches were written.
func (m *MockStore) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Writes
}
