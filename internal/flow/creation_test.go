package flow_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/Mohsinsiddi/ctfactory/internal/flow"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

// stubSubmitter lets tests script each phase.
type stubSubmitter struct {
	submitErr error
	waitErr   error
	waitGate  chan struct{}
	got       registry.Request
}

func (s *stubSubmitter) Submit(_ context.Context, req registry.Request) (flow.Ticket, error) {
	s.got = req
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return stubTicket{s}, nil
}

type stubTicket struct{ s *stubSubmitter }

func (t stubTicket) Ref() string { return "0xfeed" }

func (t stubTicket) Wait(ctx context.Context) (*registry.TokenRecord, error) {
	if t.s.waitGate != nil {
		select {
		case <-t.s.waitGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.s.waitErr != nil {
		return nil, t.s.waitErr
	}
	return &registry.TokenRecord{Name: t.s.got.Name, Symbol: t.s.got.Symbol, Creator: t.s.got.Creator, TotalSupply: t.s.got.EffectiveSupply()}, nil
}

func collect(ch <-chan flow.Status) []flow.State {
	var out []flow.State
	for {
		select {
		case s := <-ch:
			out = append(out, s.State)
		default:
			return out
		}
	}
}

// ---------------------------------------------------------------------------
// state machine
// ---------------------------------------------------------------------------

func TestCreationHappyPath(t *testing.T) {
	sub := &stubSubmitter{}
	counter := flow.NewRefreshCounter()
	c := flow.NewCreation(sub, alice, flow.WithRefreshCounter(counter))
	ch, cancel := c.Subscribe()
	defer cancel()

	rec, err := c.Submit(context.Background(), flow.Form{Name: " Alpha ", Symbol: "a lp", Supply: "5000"})
	require.NoError(t, err)
	assert.Equal(t, "ALP", rec.Symbol)
	assert.Equal(t, big.NewInt(5000), rec.TotalSupply)

	assert.Equal(t, []flow.State{flow.Submitting, flow.Pending, flow.Confirmed}, collect(ch))
	st := c.Status()
	assert.Equal(t, flow.Confirmed, st.State)
	assert.Equal(t, "0xfeed", st.Ref)
	assert.Equal(t, uint64(1), counter.Value())

	_, err = c.Submit(context.Background(), flow.Form{Name: "B", Symbol: "B"})
	assert.ErrorIs(t, err, flow.ErrBusy)

	require.NoError(t, c.Reset())
	assert.Equal(t, flow.Idle, c.Status().State)
}

func TestCreationInputErrorsStayIdle(t *testing.T) {
	c := flow.NewCreation(&stubSubmitter{}, alice)

	_, err := c.Submit(context.Background(), flow.Form{Name: "", Symbol: "SYM"})
	assert.ErrorIs(t, err, registry.ErrInvalidName)
	_, err = c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "  "})
	assert.ErrorIs(t, err, registry.ErrInvalidSymbol)
	_, err = c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "TOOLONG"})
	assert.ErrorIs(t, err, registry.ErrInvalidSymbol)

	assert.Equal(t, flow.Idle, c.Status().State)
}

func TestCreationWithoutIdentity(t *testing.T) {
	c := flow.NewCreation(&stubSubmitter{}, common.Address{})
	_, err := c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN"})
	assert.ErrorIs(t, err, registry.ErrSubmission)
	assert.ErrorIs(t, err, flow.ErrNoIdentity)
}

func TestCreationSubmitFailure(t *testing.T) {
	sub := &stubSubmitter{submitErr: errors.New("user rejected")}
	c := flow.NewCreation(sub, alice)

	_, err := c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN"})
	assert.ErrorIs(t, err, registry.ErrSubmission)

	st := c.Status()
	assert.Equal(t, flow.Failed, st.State)
	assert.Equal(t, "user rejected", st.Message)

	require.NoError(t, c.Reset())
	sub.submitErr = nil
	_, err = c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN"})
	require.NoError(t, err)
}

func TestCreationFinalizationFailure(t *testing.T) {
	sub := &stubSubmitter{waitErr: &registry.FinalizationError{}}
	c := flow.NewCreation(sub, alice)

	_, err := c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN"})
	assert.ErrorIs(t, err, registry.ErrFinalization)
	st := c.Status()
	assert.Equal(t, flow.Failed, st.State)
	assert.Equal(t, "0xfeed", st.Ref)
	assert.Equal(t, "transaction failed", st.Message)
}

func TestCreationWrapsUntypedWaitError(t *testing.T) {
	sub := &stubSubmitter{waitErr: errors.New("nonce too low")}
	c := flow.NewCreation(sub, alice)
	_, err := c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN"})
	assert.ErrorIs(t, err, registry.ErrFinalization)
	assert.Equal(t, "nonce too low", c.Status().Message)
}

func TestCreationWaitIgnoresCallerCancel(t *testing.T) {
	sub := &stubSubmitter{waitGate: make(chan struct{})}
	c := flow.NewCreation(sub, alice, flow.WithConfirmTimeout(5*time.Second))
	ch, unsub := c.Subscribe()
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, flow.Form{Name: "Genesis", Symbol: "GEN"})
		done <- err
	}()

	// Wait until the request was accepted, then cancel the caller.
	for s := range ch {
		if s.State == flow.Pending {
			break
		}
	}
	cancel()
	close(sub.waitGate)

	require.NoError(t, <-done)
	assert.Equal(t, flow.Confirmed, c.Status().State)
}

func TestCreationConfirmTimeout(t *testing.T) {
	sub := &stubSubmitter{waitGate: make(chan struct{})}
	c := flow.NewCreation(sub, alice, flow.WithConfirmTimeout(20*time.Millisecond))
	_, err := c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN"})
	assert.ErrorIs(t, err, registry.ErrFinalization)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResetWhileBusy(t *testing.T) {
	sub := &stubSubmitter{waitGate: make(chan struct{})}
	c := flow.NewCreation(sub, alice)
	ch, unsub := c.Subscribe()
	defer unsub()

	go c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN"}) //nolint:errcheck
	for s := range ch {
		if s.State == flow.Pending {
			break
		}
	}
	assert.ErrorIs(t, c.Reset(), flow.ErrBusy)
	close(sub.waitGate)
}

// ---------------------------------------------------------------------------
// supply input
// ---------------------------------------------------------------------------

func TestParseSupply(t *testing.T) {
	assert.Equal(t, big.NewInt(0), flow.ParseSupply(""))
	assert.Equal(t, big.NewInt(0), flow.ParseSupply("  "))
	assert.Equal(t, big.NewInt(0), flow.ParseSupply("lots"))
	assert.Equal(t, big.NewInt(5000), flow.ParseSupply(" 5000 "))
	assert.Equal(t, big.NewInt(1_000_000_000), flow.ParseSupply(flow.DefaultSupplyDisplay))
	assert.Equal(t, big.NewInt(1000), flow.ParseSupply("1_000"))
	assert.Equal(t, big.NewInt(2_500_000), flow.ParseSupply(" 2_500_000 "))
}

func TestNormalizeSymbolInput(t *testing.T) {
	assert.Equal(t, "HGT", flow.NormalizeSymbolInput(" h g t "))
}

// ---------------------------------------------------------------------------
// ledger backend
// ---------------------------------------------------------------------------

func TestLedgerSubmitterEndToEnd(t *testing.T) {
	l := registry.NewLedger()
	sub, ok := flow.SubmitterFor(l)
	require.True(t, ok)
	c := flow.NewCreation(sub, alice)

	rec, err := c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN", Supply: ""})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(registry.DefaultSupply), rec.TotalSupply)
	assert.Contains(t, c.Status().Ref, rec.TokenAddress.Hex())

	n, err := l.TokenCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestLedgerSubmitterNegativeSupplyFails(t *testing.T) {
	c := flow.NewCreation(flow.LedgerSubmitter{Ledger: registry.NewLedger()}, alice)
	_, err := c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN", Supply: "-5"})
	assert.ErrorIs(t, err, registry.ErrInvalidSupply)
	assert.Equal(t, flow.Failed, c.Status().State)
}

func TestLedgerSubmitterKeepsSeparatedSupply(t *testing.T) {
	l := registry.NewLedger()
	c := flow.NewCreation(flow.LedgerSubmitter{Ledger: l}, alice)

	rec, err := c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN", Supply: "1_000"})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), rec.TotalSupply)

	stored, err := l.Token(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), stored.TotalSupply)
}

func TestLedgerSubmitterCancelledBeforeAcceptance(t *testing.T) {
	l := registry.NewLedger()
	c := flow.NewCreation(flow.LedgerSubmitter{Ledger: l}, alice)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := c.Submit(ctx, flow.Form{Name: "Genesis", Symbol: "GEN"})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, registry.ErrSubmission)
	assert.ErrorIs(t, err, context.Canceled)

	st := c.Status()
	assert.Equal(t, flow.Failed, st.State)
	assert.Empty(t, st.Ref, "nothing was issued")

	n, err := l.TokenCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	// A retry with a live context still works and takes the first slot.
	require.NoError(t, c.Reset())
	rec, err = c.Submit(context.Background(), flow.Form{Name: "Genesis", Symbol: "GEN"})
	require.NoError(t, err)
	assert.Equal(t, "Genesis", rec.Name)
}
