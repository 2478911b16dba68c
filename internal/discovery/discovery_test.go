package discovery

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/hellomoon/svlm/internal/solanarpc"
)

func entry(identity, voteAccount string, stakeSol float64) solanarpc.Entry {
	return solanarpc.Entry{
		IdentityKey:    identity,
		VoteAccountKey: voteAccount,
		StakeLamports:  uint64(stakeSol * lamportsPerSOL),
	}
}

func TestFilter_DropsBelowStakeFloor(t *testing.T) {
	t.Parallel()
	f := NewFilter(100, false, nil, nil)
	roster := solanarpc.Roster{Current: []solanarpc.Entry{entry("id1", "vote1", 50)}}

	active := f.Apply(roster)
	require.Empty(t, active)
}

func TestFilter_S5_AllowListBiKeySemantics(t *testing.T) {
	t.Parallel()
	f := NewFilter(0, false, []string{"vote_acc_x"}, nil)
	roster := solanarpc.Roster{Current: []solanarpc.Entry{entry("identA", "vote_acc_x", 1000)}}

	active := f.Apply(roster)
	require.Contains(t, active, "identA")

	f2 := NewFilter(0, false, []string{"some_other"}, nil)
	active2 := f2.Apply(roster)
	require.Empty(t, active2)
}

func TestFilter_DenyListOverridesAllowList(t *testing.T) {
	t.Parallel()
	f := NewFilter(0, false, []string{"identA"}, []string{"identA"})
	roster := solanarpc.Roster{Current: []solanarpc.Entry{entry("identA", "voteA", 1000)}}

	active := f.Apply(roster)
	require.Empty(t, active)
}

func TestFilter_DelinquentIncludedOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	roster := solanarpc.Roster{Delinquent: []solanarpc.Entry{entry("identD", "voteD", 1000)}}

	f := NewFilter(0, false, nil, nil)
	require.Empty(t, f.Apply(roster))

	fIncl := NewFilter(0, true, nil, nil)
	active := fIncl.Apply(roster)
	require.True(t, active["identD"].Delinquent)
}

func TestComputeDiff_AddedAndRemoved(t *testing.T) {
	t.Parallel()
	prev := ActiveSet{"a": {IdentityKey: "a"}, "b": {IdentityKey: "b"}}
	next := ActiveSet{"b": {IdentityKey: "b"}, "c": {IdentityKey: "c"}}

	diff := ComputeDiff(prev, next)
	require.Len(t, diff.Added, 1)
	require.Equal(t, "c", diff.Added[0].IdentityKey)
	require.Len(t, diff.Removed, 1)
	require.Equal(t, "a", diff.Removed[0].IdentityKey)
}

type fakeFetcher struct {
	roster solanarpc.Roster
	err    error
	calls  int
}

func (f *fakeFetcher) FetchVoteAccounts(ctx context.Context) (solanarpc.Roster, error) {
	f.calls++
	if f.err != nil {
		return solanarpc.Roster{}, f.err
	}
	return f.roster, nil
}

func TestView_RefreshRetainsPreviousSetOnFailure(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{roster: solanarpc.Roster{Current: []solanarpc.Entry{entry("identA", "voteA", 1000)}}}
	var diffs []Diff

	v, err := NewView(ViewConfig{
		Logger:          slog.Default(),
		Clock:           clockwork.NewFakeClock(),
		Fetcher:         fetcher,
		Filter:          NewFilter(0, false, nil, nil),
		RefreshInterval: time.Second,
		OnDiff:          func(ctx context.Context, d Diff) { diffs = append(diffs, d) },
	})
	require.NoError(t, err)
	require.NoError(t, v.Start(context.Background()))
	require.True(t, v.Ready())
	require.Len(t, v.ActiveSet(), 1)

	fetcher.err = errors.New("rpc down")
	require.Error(t, v.Refresh(context.Background()))
	require.Len(t, v.ActiveSet(), 1, "active set must be retained on refresh failure")
}
