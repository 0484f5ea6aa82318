// Package util holds the small, dependency-light helpers (imported by
// configs) that don't belong on the contract client itself: ABI
// loading from either a raw ABI JSON file or a Hardhat/Foundry build
// artifact, hex helpers, private-key decryption, and gas-cost extraction
// from a pkg/types.TxReceipt. Adapted from the teacher's internal/util
// package (referenced by blackhole.go and the contractclient tests as
// util.LoadABI / util.LoadABIFromHardhatArtifact / util.Hex2Bytes /
// util.Decrypt / util.ExtractGasCost) — the teacher never shipped internal/util's
// implementation in the retrieval pack, only its call sites and test files,
// so these bodies are written fresh against the documented contract.
package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	liqtypes "github.com/blackhole-labs/liquidationd/pkg/types"
)

// LoadABI parses a plain ABI JSON array file (e.g. an OpenZeppelin or
// Etherscan-exported ABI) into a go-ethereum abi.ABI.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi file %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi file %s: %w", path, err)
	}
	return parsed, nil
}

// hardhatArtifact is the subset of a Hardhat/Foundry build artifact this
// project cares about.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact parses the `abi` field out of a Hardhat-style
// build artifact JSON file.
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read artifact file %s: %w", path, err)
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("parse artifact file %s: %w", path, err)
	}
	if len(artifact.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("artifact file %s has no abi field", path)
	}

	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi from artifact %s: %w", path, err)
	}
	return parsed, nil
}

// Hex2Bytes strips an optional "0x" prefix and decodes the remainder.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// ExtractGasCost computes gasUsed * effectiveGasPrice from a receipt's hex
// string fields, in wei.
func ExtractGasCost(receipt *liqtypes.TxReceipt) (*big.Int, error) {
	if receipt == nil {
		return nil, fmt.Errorf("extract gas cost: nil receipt")
	}

	gasUsed, ok := new(big.Int).SetString(strings.TrimPrefix(receipt.GasUsed, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("extract gas cost: invalid gasUsed %q", receipt.GasUsed)
	}
	gasPrice, ok := new(big.Int).SetString(strings.TrimPrefix(receipt.EffectiveGasPrice, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("extract gas cost: invalid effectiveGasPrice %q", receipt.EffectiveGasPrice)
	}

	return new(big.Int).Mul(gasUsed, gasPrice), nil
}
