package flow_test

import (
	"context"
	"testing"
	"time"

	"github.com/Mohsinsiddi/ctfactory/internal/flow"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGalleryRefreshOnlyOnNewKey(t *testing.T) {
	l := registry.NewLedger()
	ctx := context.Background()
	deployer := common.HexToAddress("0xd1")
	_, err := l.CreateToken(ctx, deployer, "Genesis", "GEN", nil)
	require.NoError(t, err)

	g := flow.NewGallery(l)
	snap, fetched, err := g.Refresh(ctx, 0)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Len(t, snap.All, 1)
	assert.Nil(t, snap.Mine)

	_, err = l.CreateToken(ctx, alice, "Alpha", "ALP", nil)
	require.NoError(t, err)

	snap, fetched, err = g.Refresh(ctx, 0)
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Len(t, snap.All, 1)

	snap, fetched, err = g.Refresh(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Len(t, snap.All, 2)
	assert.Equal(t, 2, g.Fetches())
}

func TestGalleryIdentity(t *testing.T) {
	l := registry.NewLedger()
	ctx := context.Background()
	_, err := l.CreateToken(ctx, common.HexToAddress("0xd1"), "Genesis", "GEN", nil)
	require.NoError(t, err)
	_, err = l.CreateToken(ctx, alice, "Alpha", "ALP", nil)
	require.NoError(t, err)

	g := flow.NewGallery(l)
	_, _, err = g.Refresh(ctx, 0)
	require.NoError(t, err)

	g.SetIdentity(&alice)
	snap, fetched, err := g.Refresh(ctx, 0)
	require.NoError(t, err)
	assert.True(t, fetched)
	require.Len(t, snap.Mine, 1)
	assert.Equal(t, "ALP", snap.Mine[0].Symbol)
	assert.Equal(t, alice, *snap.Identity)
}

func TestRefreshCounterNotifies(t *testing.T) {
	r := flow.NewRefreshCounter()
	ch, cancel := r.Subscribe()

	r.Bump()
	r.Bump()
	select {
	case v := <-ch:
		assert.Equal(t, uint64(2), v)
	case <-time.After(time.Second):
		t.Fatal("no refresh notification")
	}
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, uint64(3), r.Bump())
}

func TestCreationBumpsGalleryKey(t *testing.T) {
	l := registry.NewLedger()
	counter := flow.NewRefreshCounter()
	c := flow.NewCreation(flow.LedgerSubmitter{Ledger: l}, alice, flow.WithRefreshCounter(counter))
	g := flow.NewGallery(l)
	ctx := context.Background()

	_, _, err := g.Refresh(ctx, counter.Value())
	require.NoError(t, err)
	_, err = c.Submit(ctx, flow.Form{Name: "Genesis", Symbol: "GEN", Supply: flow.DefaultSupplyDisplay})
	require.NoError(t, err)

	snap, fetched, err := g.Refresh(ctx, counter.Value())
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Len(t, snap.All, 1)
}
