package chaincfg

import (
	"encoding/hex"
	"testing"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisHashes(t *testing.T) {
	tests := []struct {
		params *Params
		hash   string
	}{
		{&MainNetParams, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"},
		{&RegressionNetParams, "0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206"},
		{&TestNet3Params, "000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f4943"},
	}

	for _, tt := range tests {
		t.Run(tt.params.Name, func(t *testing.T) {
			assert.Equal(t, tt.hash, tt.params.GenesisHash.String())
			assert.Equal(t, tt.hash, tt.params.GenesisBlock.Hash().String())
		})
	}
}

func TestGenesisMerkleRoot(t *testing.T) {
	root, mutated := MainNetParams.GenesisBlock.CalcMerkleRoot()
	require.False(t, mutated)
	assert.Equal(t, "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b", root.String())
	assert.Equal(t, root, *MainNetParams.GenesisBlock.Header.HashMerkleRoot)
}

func TestGenesisMeetsPowLimit(t *testing.T) {
	for _, p := range []*Params{&MainNetParams, &RegressionNetParams, &TestNet3Params} {
		target := model.CompactToBig(p.GenesisBlock.Header.Bits)
		assert.LessOrEqual(t, target.Cmp(p.PowLimit), 0, p.Name)
		assert.LessOrEqual(t, model.HashToBig(p.GenesisHash[:]).Cmp(target), 0, p.Name)
	}
}

func TestRegtestBlockOneExtendsGenesis(t *testing.T) {
	blockHex := "0000002006226e46111a0b59caaf126043eb5bbf28c34f3a5e332a1fc7b2b73cf188910f1633819a69afbd7ce1f1a01c3b786fcbb023274f3b15172b24feadd4c80e6c6a8b491267ffff7f20040000000102000000010000000000000000000000000000000000000000000000000000000000000000ffffffff03510101ffffffff0100f2052a01000000232103656065e6886ca1e947de3471c9e723673ab6ba34724476417fa9fcef8bafa604ac00000000"

	block, err := model.NewBlockFromBytes(mustDecodeHex(t, blockHex))
	require.NoError(t, err)

	assert.Equal(t, RegressionNetParams.GenesisHash.String(), block.Header.HashPrevBlock.String())

	root, _ := block.CalcMerkleRoot()
	assert.Equal(t, *block.Header.HashMerkleRoot, root)

	height, err := block.ExtractCoinbaseHeight()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), height)
}

func TestGetChainParams(t *testing.T) {
	p, err := GetChainParams("regtest")
	require.NoError(t, err)
	assert.Equal(t, "regtest", p.Name)

	p, err = GetChainParams("testnet")
	require.NoError(t, err)
	assert.Equal(t, "testnet3", p.Name)

	_, err = GetChainParams("nope")
	require.Error(t, err)
}

func TestCheckpoints(t *testing.T) {
	assert.Equal(t, "0000000069e244f73d78e8fd29ba2fd2ed618bd6fa2ee92559f542fdb26e7c1d", MainNetParams.Checkpoint(11111).String())
	assert.Nil(t, MainNetParams.Checkpoint(11112))
	assert.Equal(t, int32(295000), MainNetParams.LastCheckpoint().Height)
	assert.Nil(t, RegressionNetParams.LastCheckpoint())
}

func TestDerivedLimits(t *testing.T) {
	assert.Equal(t, int32(2016), MainNetParams.DifficultyAdjustmentInterval())
	assert.Equal(t, 20000, MainNetParams.MaxBlockSigOps())
}

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}
