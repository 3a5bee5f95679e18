package registry_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSupply(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"  ", 0},
		{"0", 0},
		{"5000", 5000},
		{"1_000_000", 1000000},
	}
	for _, tc := range cases {
		got, err := registry.ParseSupply(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, big.NewInt(tc.want), got, tc.in)
	}

	for _, bad := range []string{"-1", "abc", "1.5", "1e3"} {
		_, err := registry.ParseSupply(bad)
		assert.ErrorIs(t, err, registry.ErrInvalidSupply, bad)
	}

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err := registry.ParseSupply(tooBig.String())
	assert.ErrorIs(t, err, registry.ErrInvalidSupply)
}

func TestRecordString(t *testing.T) {
	rec := registry.TokenRecord{
		TokenAddress: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Name:         "Genesis",
		Symbol:       "GEN",
		Creator:      common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		TotalSupply:  big.NewInt(registry.DefaultSupply),
	}
	assert.Equal(t,
		"Genesis (GEN) at "+rec.TokenAddress.Hex()+" | creator: "+rec.Creator.Hex()+" | supply: 1000000000",
		rec.String())
}

func TestCheckSymbolLength(t *testing.T) {
	assert.NoError(t, registry.CheckSymbolLength("ABCDEF"))
	assert.ErrorIs(t, registry.CheckSymbolLength("ABCDEFG"), registry.ErrInvalidSymbol)
}

// ---------------------------------------------------------------------------
// errors
// ---------------------------------------------------------------------------

func TestSubmissionErrorMatching(t *testing.T) {
	cause := errors.New("no signing wallet")
	err := error(&registry.SubmissionError{Cause: cause})
	assert.ErrorIs(t, err, registry.ErrSubmission)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, registry.ErrFinalization)
	assert.Equal(t, "no signing wallet", registry.UserMessage(err))
}

func TestFinalizationErrorMessage(t *testing.T) {
	bare := &registry.FinalizationError{}
	assert.ErrorIs(t, bare, registry.ErrFinalization)
	assert.Equal(t, "transaction failed", registry.UserMessage(bare))

	withCause := &registry.FinalizationError{TxHash: common.HexToHash("0x01"), Cause: errors.New("execution reverted")}
	assert.Equal(t, "execution reverted", registry.UserMessage(withCause))
	assert.Contains(t, withCause.Error(), common.HexToHash("0x01").Hex())
}

func TestUserMessageValidation(t *testing.T) {
	err := registry.Submissionf("%w: name is empty", registry.ErrInvalidName)
	assert.ErrorIs(t, err, registry.ErrInvalidName)
	assert.Equal(t, "invalid token name: name is empty", registry.UserMessage(err))
	assert.Empty(t, registry.UserMessage(nil))
}
