package chaincfg

import (
	"encoding/hex"

	"github.com/bsv-blockchain/chainstate/model"
)

// genesisBlockHex is the serialized main network genesis block: header followed by the
// single coinbase paying 50 BTC.
const genesisBlockHex = "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c" +
	"0101000000010000000000000000000000000000000000000000000000000000000000000000ffffffff4d04ffff001d0104455468652054696d65732030332f4a616e2f32303039204368616e63656c6c6f72206f6e206272696e6b206f66207365636f6e64206261696c6f757420666f722062616e6b73ffffffff0100f2052a01000000434104678afdb0fe5548271967f1a67130b7105cd6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf11d5fac00000000"

var (
	// mainGenesisBlock defines the genesis block of the block chain which serves as the
	// public transaction ledger for the main network.
	mainGenesisBlock = genesisWithHeader(1231006505, 0x1d00ffff, 2083236893)

	// regTestGenesisBlock shares the coinbase of the main network with an easier target.
	regTestGenesisBlock = genesisWithHeader(1296688602, 0x207fffff, 2)

	// testNet3GenesisBlock shares the coinbase of the main network with its own time and nonce.
	testNet3GenesisBlock = genesisWithHeader(1296688602, 0x1d00ffff, 414098458)
)

func genesisWithHeader(timestamp, bits, nonce uint32) *model.Block {
	b, err := hex.DecodeString(genesisBlockHex)
	if err != nil {
		panic(err)
	}

	block, err := model.NewBlockFromBytes(b)
	if err != nil {
		panic(err)
	}

	block.Header.Timestamp = timestamp
	block.Header.Bits = bits
	block.Header.Nonce = nonce

	return model.NewBlock(block.Header, block.Transactions)
}
