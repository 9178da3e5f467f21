package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunfield-ops/solarledger/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testVersion(number int, from, to time.Time) *model.Version {
	return &model.Version{
		Identity: model.ComponentIdentity{
			Key:         "sma solar::sb-5000tl",
			Supplier:    "SMA Solar",
			ProductCode: "SB-5000TL",
		},
		Number: number,
		Fields: map[string]any{
			model.FieldSupplierName:    "SMA Solar",
			model.FieldProductCode:     "SB-5000TL",
			model.FieldDescription:     "5kW string inverter",
			model.FieldStartupVoltage:  "150V",
			model.FieldFirmwareVersion: "v2.1.4",
			model.FieldValidFrom:       from,
			model.FieldValidTo:         to,
		},
		Extras:      map[string]any{"technician": "J. Alvarez"},
		ValidFrom:   from,
		ValidTo:     to,
		SourceFile:  "maintenance-2024-01.pdf",
		ExtractedAt: time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC),
	}
}

func window(fromDay, toDay int) (time.Time, time.Time) {
	return time.Date(2024, time.January, fromDay, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, toDay, 0, 0, 0, 0, time.UTC)
}

func TestSQLiteAppendAndHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	from, to := window(1, 10)
	v := testVersion(1, from, to)
	require.NoError(t, st.Append(ctx, v))
	assert.False(t, v.AppendedAt.IsZero(), "append stamps the version")

	history, err := st.History(ctx, v.Identity.Key)
	require.NoError(t, err)
	require.Len(t, history, 1)

	got := history[0]
	assert.Equal(t, 1, got.Number)
	assert.Equal(t, "SMA Solar", got.Identity.Supplier)
	assert.Equal(t, "v2.1.4", got.Fields[model.FieldFirmwareVersion])
	assert.Equal(t, "J. Alvarez", got.Extras["technician"])
	assert.True(t, got.ValidFrom.Equal(from))
	assert.True(t, got.ValidTo.Equal(to))
	assert.Nil(t, got.EffectiveTo)
	assert.Nil(t, got.SupersededBy)
	assert.False(t, got.Conflict)
}

func TestSQLiteHistoryUnknownIdentityIsEmpty(t *testing.T) {
	st := newTestStore(t)

	history, err := st.History(context.Background(), "nobody::nothing")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLiteHistoryOrderedByVersion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, n := range []int{3, 1, 2} {
		from, to := window(n*10, n*10+5)
		require.NoError(t, st.Append(ctx, testVersion(n, from, to)))
	}

	history, err := st.History(ctx, "sma solar::sb-5000tl")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, v := range history {
		assert.Equal(t, i+1, v.Number)
	}
}

func TestSQLiteVersionCollision(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	from, to := window(1, 10)
	require.NoError(t, st.Append(ctx, testVersion(1, from, to)))

	err := st.Append(ctx, testVersion(1, from, to))
	assert.ErrorIs(t, err, ErrVersionCollision)

	// The failed append must not leave partial state behind.
	history, err := st.History(ctx, "sma solar::sb-5000tl")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want bool
	}{
		{"unique", "constraint failed: UNIQUE constraint failed: versions.identity_key, versions.version (1555)", true},
		{"primary key", "constraint failed: PRIMARY KEY constraint failed (1555)", true},
		{"not null", "constraint failed: NOT NULL constraint failed: versions.supplier (1299)", false},
		{"check", "constraint failed: CHECK constraint failed: versions (275)", false},
		{"unrelated", "database is locked (5)", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isUniqueViolation(errors.New(tc.msg)))
		})
	}
}

func TestSQLiteMarkSuperseded(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	from, to := window(1, 30)
	require.NoError(t, st.Append(ctx, testVersion(1, from, to)))

	cut := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.MarkSuperseded(ctx, "sma solar::sb-5000tl", 1, 2, &cut, false))

	history, err := st.History(ctx, "sma solar::sb-5000tl")
	require.NoError(t, err)
	require.Len(t, history, 1)

	got := history[0]
	require.NotNil(t, got.SupersededBy)
	assert.Equal(t, 2, *got.SupersededBy)
	require.NotNil(t, got.EffectiveTo)
	assert.True(t, got.EffectiveTo.Equal(cut))
	// The asserted window is untouched.
	assert.True(t, got.ValidFrom.Equal(from))
	assert.True(t, got.ValidTo.Equal(to))
}

func TestSQLiteMarkSupersededUnknownVersion(t *testing.T) {
	st := newTestStore(t)

	err := st.MarkSuperseded(context.Background(), "sma solar::sb-5000tl", 7, 8, nil, false)
	assert.Error(t, err)
}

func TestSQLiteEffectiveAt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	from1, to1 := window(1, 30)
	require.NoError(t, st.Append(ctx, testVersion(1, from1, to1)))

	from2 := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	to2 := time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)
	v2 := testVersion(2, from2, to2)
	v2.Fields[model.FieldFirmwareVersion] = "v3.0.0"
	one := 1
	v2.Supersedes = &one
	require.NoError(t, st.Append(ctx, v2))
	require.NoError(t, st.MarkSuperseded(ctx, v2.Identity.Key, 1, 2, &from2, false))

	early, err := st.EffectiveAt(ctx, v2.Identity.Key, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, early)
	assert.Equal(t, 1, early.Number)

	late, err := st.EffectiveAt(ctx, v2.Identity.Key, time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.Equal(t, 2, late.Number)

	none, err := st.EffectiveAt(ctx, v2.Identity.Key, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteIdentities(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	from, to := window(1, 10)
	require.NoError(t, st.Append(ctx, testVersion(1, from, to)))
	require.NoError(t, st.Append(ctx, testVersion(2, to, to.AddDate(0, 0, 10))))

	other := testVersion(1, from, to)
	other.Identity = model.ComponentIdentity{Key: "fronius::symo-10", Supplier: "Fronius", ProductCode: "Symo-10"}
	require.NoError(t, st.Append(ctx, other))

	refs, err := st.Identities(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	// Ordered by supplier, product code.
	assert.Equal(t, "Fronius", refs[0].Identity.Supplier)
	assert.Equal(t, 1, refs[0].LatestVersion)
	assert.Equal(t, "SMA Solar", refs[1].Identity.Supplier)
	assert.Equal(t, 2, refs[1].LatestVersion)
}

func TestSQLiteStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalVersions)
	assert.Nil(t, stats.LatestAppend)

	from, to := window(1, 10)
	require.NoError(t, st.Append(ctx, testVersion(1, from, to)))

	conflicted := testVersion(2, from, to)
	conflicted.Conflict = true
	require.NoError(t, st.Append(ctx, conflicted))

	other := testVersion(1, from, to)
	other.Identity = model.ComponentIdentity{Key: "fronius::symo-10", Supplier: "Fronius", ProductCode: "Symo-10"}
	require.NoError(t, st.Append(ctx, other))

	stats, err = st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalVersions)
	assert.Equal(t, 2, stats.UniqueComponents)
	assert.Equal(t, 1, stats.MultiVersionCount)
	assert.Equal(t, 1, stats.UnresolvedConflicts)
	assert.NotNil(t, stats.LatestAppend)
}

func TestSQLiteFieldsRoundTripDates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	from, to := window(1, 10)
	require.NoError(t, st.Append(ctx, testVersion(1, from, to)))

	history, err := st.History(ctx, "sma solar::sb-5000tl")
	require.NoError(t, err)
	require.Len(t, history, 1)

	// Dates inside the fields payload come back as RFC 3339 strings.
	assert.Equal(t, "2024-01-01T00:00:00Z", history[0].Fields[model.FieldValidFrom])
}
