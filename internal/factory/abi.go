package factory

import (
	_ "embed"
	"fmt"
	"math/big"
	"strings"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed factory.abi.json
var abiJSON string

// ABI is the parsed factory interface.
var ABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("factory: parsing embedded ABI: %v", err))
	}
	return parsed
}

// tokenRecord mirrors the Solidity TokenRecord struct for ABI decoding.
type tokenRecord struct {
	TokenAddress common.Address
	Name         string
	Symbol       string
	Creator      common.Address
	TotalSupply  *big.Int
}

func (r tokenRecord) toRecord() registry.TokenRecord {
	return registry.TokenRecord{
		TokenAddress: r.TokenAddress,
		Name:         r.Name,
		Symbol:       r.Symbol,
		Creator:      r.Creator,
		TotalSupply:  r.TotalSupply,
	}
}

func unpackRecords(method string, data []byte) ([]registry.TokenRecord, error) {
	out, err := ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", method, err)
	}
	raw := *abi.ConvertType(out[0], new([]tokenRecord)).(*[]tokenRecord)
	records := make([]registry.TokenRecord, len(raw))
	for i, r := range raw {
		records[i] = r.toRecord()
	}
	return records, nil
}

func unpackRecord(data []byte) (registry.TokenRecord, error) {
	out, err := ABI.Unpack("getToken", data)
	if err != nil {
		return registry.TokenRecord{}, fmt.Errorf("decoding getToken: %w", err)
	}
	raw := *abi.ConvertType(out[0], new(tokenRecord)).(*tokenRecord)
	return raw.toRecord(), nil
}

func unpackUint(method string, data []byte) (*big.Int, error) {
	out, err := ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// parseTokenCreated decodes a TokenCreated log.
func parseTokenCreated(topics []common.Hash, data []byte) (registry.TokenRecord, bool) {
	ev := ABI.Events["TokenCreated"]
	if len(topics) != 3 || topics[0] != ev.ID {
		return registry.TokenRecord{}, false
	}
	values, err := ev.Inputs.NonIndexed().Unpack(data)
	if err != nil || len(values) != 3 {
		return registry.TokenRecord{}, false
	}
	name, _ := values[0].(string)
	symbol, _ := values[1].(string)
	supply, _ := values[2].(*big.Int)
	return registry.TokenRecord{
		TokenAddress: common.BytesToAddress(topics[1].Bytes()),
		Creator:      common.BytesToAddress(topics[2].Bytes()),
		Name:         name,
		Symbol:       symbol,
		TotalSupply:  supply,
	}, true
}
