package discount

import (
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
)

type logRecorder struct {
	mu    sync.Mutex
	warns []string
}

func (l *logRecorder) Debug(string, ...interface{}) {}
func (l *logRecorder) Info(string, ...interface{})  {}
func (l *logRecorder) Error(string, ...interface{}) {}
func (l *logRecorder) Fatal(string, ...interface{}) {}
func (l *logRecorder) Warn(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

const testTables = `
internal:
  monthly:
    2: 80000
    3: 105000
external:
  monthly:
    2: 90000
    3: 120000
  annual:
    2: 70000
    3: 80000
tiny:
  monthly:
    2: 2000
sparse:
  monthly:
    2: 80000
    5: 150000
`

func newTestResolver(t *testing.T) (*Resolver, *logRecorder) {
	tables, err := LoadTables(strings.NewReader(testTables))
	require.NoError(t, err)
	logger := new(logRecorder)
	return NewResolver(tables, logger), logger
}

var (
	internal = pricing.Category{ID: 1, Name: "Internal", Monthly: 50000, Annual: 500000}
	external = pricing.Category{ID: 2, Name: "external", Monthly: 60000, Annual: 600000}
)

func TestResolver_Ratio(t *testing.T) {
	r, _ := newTestResolver(t)

	tests := []struct {
		name string
		cat  pricing.Category
		size int
		want string
	}{
		{name: "single member", cat: internal, size: 1, want: "0"},
		{name: "no member", cat: internal, size: 0, want: "0"},
		{name: "two members", cat: internal, size: 2, want: "0.2"},
		{name: "three members", cat: internal, size: 3, want: "0.3"},
		{name: "larger family falls back to nearest smaller size", cat: internal, size: 6, want: "0.3"},
		{name: "gap falls back to nearest smaller size", cat: pricing.Category{Name: "sparse", Monthly: 50000}, size: 4, want: "0.2"},
		{name: "exact size beyond gap", cat: pricing.Category{Name: "sparse", Monthly: 50000}, size: 5, want: "0.4"},
		{name: "per capita above base clamps to zero", cat: pricing.Category{Name: "internal", Monthly: 30000}, size: 2, want: "0"},
		{name: "clamped to max ratio", cat: pricing.Category{Name: "tiny", Monthly: 100000}, size: 2, want: "0.95"},
		{name: "unknown category", cat: pricing.Category{Name: "other", Monthly: 50000}, size: 3, want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Ratio(tt.cat, tt.size)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "Ratio() = %v, want %v", got, tt.want)
		})
	}
}

func TestResolver_RatioBounds(t *testing.T) {
	r, _ := newTestResolver(t)
	for _, cat := range []pricing.Category{internal, external, {Name: "tiny", Monthly: 1}, {Name: "tiny", Monthly: 1 << 40}} {
		for size := 2; size <= 10; size++ {
			got := r.Ratio(cat, size)
			assert.False(t, got.IsNegative(), "%s/%d: %v", cat.Name, size, got)
			assert.True(t, got.LessThanOrEqual(MaxRatio), "%s/%d: %v", cat.Name, size, got)
		}
		assert.True(t, r.Ratio(cat, 1).IsZero())
	}
}

func TestResolver_RatioWithoutMonthlyBase(t *testing.T) {
	r, logger := newTestResolver(t)

	got := r.Ratio(pricing.Category{ID: 9, Name: "internal"}, 3)
	assert.True(t, got.IsZero())
	assert.Len(t, logger.warns, 1)

	// single members never look at the tables
	r.Ratio(pricing.Category{ID: 9, Name: "internal"}, 1)
	assert.Len(t, logger.warns, 1)
}

func TestResolver_MonthlyAmount(t *testing.T) {
	r, _ := newTestResolver(t)
	assert.Equal(t, int64(40000), r.MonthlyAmount(internal, 2))
	assert.Equal(t, int64(35000), r.MonthlyAmount(internal, 3))
	assert.Equal(t, int64(50000), r.MonthlyAmount(internal, 1))
}

func TestResolver_AnnualAmount(t *testing.T) {
	r, _ := newTestResolver(t)

	tests := []struct {
		name string
		cat  pricing.Category
		size int
		want int64
	}{
		{name: "direct table, 2 members", cat: external, size: 2, want: 35000},
		{name: "direct table, 3 members rounds", cat: external, size: 3, want: 26667},
		{name: "direct table, fallback size", cat: external, size: 4, want: 26667},
		{name: "direct table, single member pays base", cat: external, size: 1, want: 600000},
		{name: "monthly ratio applied to annual base", cat: internal, size: 2, want: 400000},
		{name: "no discount", cat: internal, size: 1, want: 500000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.AnnualAmount(tt.cat, tt.size))
		})
	}
}

func TestApply(t *testing.T) {
	assert.Equal(t, int64(16667), Apply(33333, decimal.RequireFromString("0.5")))
	assert.Equal(t, int64(33333), Apply(33333, decimal.Zero))
	assert.Equal(t, int64(0), Apply(0, decimal.RequireFromString("0.3")))
}

func TestRoundDisplay(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{26667, 26700},
		{40049, 40000},
		{40050, 40100},
		{0, 0},
		{99, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundDisplay(tt.in), "RoundDisplay(%d)", tt.in)
	}
}

func TestLoadTables(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
		anyErr  bool
	}{
		{name: "valid", in: testTables},
		{name: "empty", in: ""},
		{name: "size one", in: "internal:\n  monthly:\n    1: 50000\n", wantErr: ErrInvalidTable},
		{name: "negative total", in: "internal:\n  annual:\n    2: -1\n", wantErr: ErrInvalidTable},
		{name: "unknown key", in: "internal:\n  weekly:\n    2: 1\n", anyErr: true},
		{name: "not yaml", in: "{{", anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables, err := LoadTables(strings.NewReader(tt.in))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
				assert.NotNil(t, tables)
			}
		})
	}
}

func TestLoadTablesFile(t *testing.T) {
	tables, err := LoadTablesFile("")
	require.NoError(t, err)
	assert.Equal(t, []string{"external", "internal"}, tables.Names())

	tbl, ok := tables.For("Internal")
	require.True(t, ok)
	assert.Equal(t, int64(80000), tbl.Monthly[2])
	assert.Contains(t, tables.String(), "external:")

	_, err = LoadTablesFile("does-not-exist.yaml")
	assert.Error(t, err)
}
