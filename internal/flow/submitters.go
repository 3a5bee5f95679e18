package flow

import (
	"context"

	"github.com/Mohsinsiddi/ctfactory/internal/factory"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
)

// LedgerSubmitter creates tokens in an in-process ledger. Submit is Begin,
// Wait is Commit.
type LedgerSubmitter struct {
	Ledger *registry.Ledger
}

// Submit allocates nothing when ctx is already done.
func (s LedgerSubmitter) Submit(ctx context.Context, req registry.Request) (Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, &registry.SubmissionError{Cause: err}
	}
	p, err := s.Ledger.Begin(req)
	if err != nil {
		return nil, err
	}
	return ledgerTicket{p}, nil
}

type ledgerTicket struct{ p *registry.Pending }

func (t ledgerTicket) Ref() string { return "ledger:" + t.p.Address().Hex() }

func (t ledgerTicket) Wait(ctx context.Context) (*registry.TokenRecord, error) {
	rec, err := t.p.Commit(ctx)
	if err != nil {
		t.p.Rollback()
		return nil, &registry.FinalizationError{Cause: err}
	}
	return rec, nil
}

// ChainSubmitter creates tokens through the deployed factory contract.
type ChainSubmitter struct {
	Client *factory.Client
}

func (s ChainSubmitter) Submit(ctx context.Context, req registry.Request) (Ticket, error) {
	sub, err := s.Client.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return chainTicket{sub}, nil
}

type chainTicket struct{ s *factory.Submission }

func (t chainTicket) Ref() string { return t.s.TxHash.Hex() }

func (t chainTicket) Wait(ctx context.Context) (*registry.TokenRecord, error) {
	return t.s.Wait(ctx)
}

// SubmitterFor picks the Submitter matching a registry backend.
func SubmitterFor(r registry.Registry) (Submitter, bool) {
	switch v := r.(type) {
	case *registry.Ledger:
		return LedgerSubmitter{Ledger: v}, true
	case *factory.Client:
		return ChainSubmitter{Client: v}, true
	}
	return nil, false
}
