package s1_universe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/testutil"
)

func TestRepository_RoundTrip(t *testing.T) {
	db := testutil.OpenDB(t)
	cleanup := `DELETE FROM universe_members WHERE universe_id = 'ZZ_TEST_UNI'`
	testutil.Exec(t, db, cleanup)
	t.Cleanup(func() { testutil.Exec(t, db, cleanup) })

	bars := history(20, 2_000_000)
	cfg := testConfig()
	cfg.MaxUniverseSize = 2
	engine, err := newTestEngine(cfg, Deps{
		Instruments: &fakeInstruments{refs: []contracts.InstrumentRef{
			ref("ZZT_A", "TECH"), ref("ZZT_B", "TECH"), ref("ZZT_C", "ENERGY"), ref("ZZT_D", "ENERGY"),
		}},
		Prices:    &fakePrices{bars: map[string][]contracts.PriceBar{"ZZT_A": bars, "ZZT_B": bars, "ZZT_C": bars}},
		Stability: fakeStability{"ZZT_A": stable(10), "ZZT_B": stable(20), "ZZT_C": stable(30)},
	})
	require.NoError(t, err)

	ctx := context.Background()
	built, err := engine.BuildUniverse(ctx, asOf, "ZZ_TEST_UNI")
	require.NoError(t, err)

	repo := NewRepository(db.Pool)
	require.NoError(t, repo.SaveMembers(ctx, built))
	// upsert on the logical key
	require.NoError(t, repo.SaveMembers(ctx, built))

	all, err := repo.GetUniverse(ctx, asOf, "ZZ_TEST_UNI", contracts.EntityTypeInstrument, false)
	require.NoError(t, err)
	require.Len(t, all, len(built))
	assert.Equal(t, byID(built), byID(all))

	included, err := repo.GetUniverse(ctx, asOf, "ZZ_TEST_UNI", "", true)
	require.NoError(t, err)
	require.Len(t, included, 2)
	assert.Equal(t, "ZZT_A", included[0].EntityID)
	assert.Equal(t, "ZZT_B", included[1].EntityID)

	dates, err := repo.ListUniverseDates(ctx, "ZZ_TEST_UNI", 5)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.True(t, dates[0].Equal(asOf))
}
