// Package flow holds the client-side token creation state machine and the
// token gallery shared by the studio and the HTTP API.
package flow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultSupplyDisplay pre-fills the supply input. The registry applies its
// own default independently when it receives zero.
const DefaultSupplyDisplay = "1000000000"

// ErrBusy is returned when Submit or Reset is called in the wrong state.
var ErrBusy = errors.New("a creation is already in progress")

// ErrNoIdentity means no signing identity is connected.
var ErrNoIdentity = errors.New("connect a wallet before creating a token")

// State is a step of the creation flow.
type State int

const (
	Idle State = iota
	Submitting
	Pending
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is a snapshot of the flow.
type Status struct {
	State   State
	Ref     string // transaction hash or ledger reference once accepted
	Record  *registry.TokenRecord
	Err     error
	Message string // user-facing rendering of Err
}

// Ticket is an accepted creation request awaiting finalization.
type Ticket interface {
	Ref() string
	Wait(ctx context.Context) (*registry.TokenRecord, error)
}

// Submitter issues creation requests to a registry backend.
type Submitter interface {
	Submit(ctx context.Context, req registry.Request) (Ticket, error)
}

// Form is the raw user input.
type Form struct {
	Name   string
	Symbol string
	Supply string
}

// ParseSupply turns the supply input into a number. Digit separators ("_")
// are dropped as in registry.ParseSupply. Empty or unparsable input yields
// zero so the registry applies its default.
func ParseSupply(s string) *big.Int {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	if s == "" {
		return new(big.Int)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// NormalizeSymbolInput strips whitespace and upper-cases, the way the
// symbol field behaves while typing.
func NormalizeSymbolInput(s string) string {
	return registry.Request{Symbol: s}.Normalize().Symbol
}

// Creation drives one token creation at a time through
// Idle → Submitting → Pending → Confirmed | Failed.
type Creation struct {
	mu        sync.Mutex
	submitter Submitter
	identity  common.Address
	status    Status
	observers map[int]chan Status
	nextObs   int
	timeout   time.Duration
	counter   *RefreshCounter
}

// CreationOption configures a Creation.
type CreationOption func(*Creation)

// WithConfirmTimeout bounds the wait after a request was accepted.
func WithConfirmTimeout(d time.Duration) CreationOption {
	return func(c *Creation) { c.timeout = d }
}

// WithRefreshCounter bumps counter after each confirmed creation.
func WithRefreshCounter(counter *RefreshCounter) CreationOption {
	return func(c *Creation) { c.counter = counter }
}

// NewCreation returns an idle flow for identity.
func NewCreation(submitter Submitter, identity common.Address, opts ...CreationOption) *Creation {
	c := &Creation{
		submitter: submitter,
		identity:  identity,
		observers: make(map[int]chan Status),
		timeout:   config.TxConfirmTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current snapshot.
func (c *Creation) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe delivers every transition on the returned channel until cancel
// is called. Slow observers miss intermediate states, never the latest.
func (c *Creation) Subscribe() (<-chan Status, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	ch := make(chan Status, 8)
	c.observers[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.observers[id]; ok {
			delete(c.observers, id)
			close(ch)
		}
	}
}

// Submit runs the whole flow for form and returns the confirmed record.
// Input errors are returned without leaving Idle.
func (c *Creation) Submit(ctx context.Context, form Form) (*registry.TokenRecord, error) {
	req := registry.Request{
		Creator: c.identity,
		Name:    form.Name,
		Symbol:  form.Symbol,
		Supply:  ParseSupply(form.Supply),
	}.Normalize()

	c.mu.Lock()
	if c.status.State != Idle {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if err := validateForm(req); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.identity == (common.Address{}) {
		c.mu.Unlock()
		return nil, &registry.SubmissionError{Cause: ErrNoIdentity}
	}
	c.setLocked(Status{State: Submitting})
	c.mu.Unlock()

	ticket, err := c.submitter.Submit(ctx, req)
	if err != nil {
		var se *registry.SubmissionError
		if !errors.As(err, &se) && !isValidation(err) {
			err = &registry.SubmissionError{Cause: err}
		}
		c.fail("", err)
		return nil, err
	}
	ref := ticket.Ref()
	c.set(Status{State: Pending, Ref: ref})

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	rec, err := ticket.Wait(wctx)
	if err != nil {
		var fe *registry.FinalizationError
		if !errors.As(err, &fe) {
			err = &registry.FinalizationError{Cause: err}
		}
		c.fail(ref, err)
		return nil, err
	}

	c.set(Status{State: Confirmed, Ref: ref, Record: rec})
	if c.counter != nil {
		c.counter.Bump()
	}
	return rec, nil
}

// Reset returns a finished flow to Idle for a retry or another creation.
func (c *Creation) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status.State {
	case Idle:
		return nil
	case Confirmed, Failed:
		c.setLocked(Status{State: Idle})
		return nil
	}
	return ErrBusy
}

func (c *Creation) fail(ref string, err error) {
	c.set(Status{State: Failed, Ref: ref, Err: err, Message: registry.UserMessage(err)})
}

func (c *Creation) set(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(s)
}

func (c *Creation) setLocked(s Status) {
	c.status = s
	for _, ch := range c.observers {
		select {
		case ch <- s:
		default:
			// Drop the oldest queued state to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func validateForm(req registry.Request) error {
	if err := req.Validate(); err != nil && !errors.Is(err, registry.ErrInvalidSupply) {
		return err
	}
	return registry.CheckSymbolLength(req.Symbol)
}

func isValidation(err error) bool {
	return errors.Is(err, registry.ErrInvalidName) ||
		errors.Is(err, registry.ErrInvalidSymbol) ||
		errors.Is(err, registry.ErrInvalidSupply)
}
