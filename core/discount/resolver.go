package discount

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	appfs "github.com/Brunoball/Cooperadora-sub000/fs"
)

const minGroupSize = 2

var (
	MaxRatio = decimal.RequireFromString("0.95")

	ErrInvalidTable = errors.New("invalid discount reference table")
)

// Table holds the reference group totals of one category, keyed by family size.
// Annual totals are optional and, when present, give the per-member annual price directly.
type Table struct {
	Monthly map[int]int64 `yaml:"monthly"`
	Annual  map[int]int64 `yaml:"annual"`
}

// Tables maps lowercased category names to their reference table.
type Tables map[string]Table

func (t Tables) For(categoryName string) (Table, bool) {
	tbl, ok := t[core.CleanString(categoryName, true /* lower */)]
	return tbl, ok
}

// LoadTables decodes YAML reference tables:
//
//	internal:
//	  monthly: {2: 80000, 3: 110000}
//	external:
//	  monthly: {2: 70000}
//	  annual: {2: 70000, 3: 80000}
func LoadTables(r io.Reader) (Tables, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading discount tables")
	}
	var decoded map[string]Table
	if err = yaml.UnmarshalStrict(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "decoding discount tables")
	}

	tables := make(Tables, len(decoded))
	for name, tbl := range decoded {
		for _, m := range []map[int]int64{tbl.Monthly, tbl.Annual} {
			for size, total := range m {
				if size < minGroupSize || total < 0 {
					return nil, errors.Wrapf(ErrInvalidTable, "%s: size %d total %d", name, size, total)
				}
			}
		}
		tables[core.CleanString(name, true /* lower */)] = tbl
	}
	return tables, nil
}

// LoadTablesFile loads tables from `path`, or the bundled defaults when path is empty.
func LoadTablesFile(path string) (Tables, error) {
	if path == "" {
		data, err := appfs.FS.ReadFile("discounts.yaml")
		if err != nil {
			return nil, errors.Wrap(err, "reading bundled discount tables")
		}
		return LoadTables(bytes.NewReader(data))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening discount tables")
	}
	defer func() { _ = f.Close() }()
	return LoadTables(f)
}

// Resolver derives sibling discounts from the reference tables.
type Resolver struct {
	tables Tables
	logger core.Logger
}

func NewResolver(tables Tables, logger core.Logger) *Resolver {
	if tables == nil {
		tables = Tables{}
	}
	return &Resolver{tables: tables, logger: logger}
}

// lookup finds the reference total for `size`, falling back to the nearest smaller size present.
func lookup(totals map[int]int64, size int) (int, int64, bool) {
	if len(totals) == 0 || size < minGroupSize {
		return 0, 0, false
	}
	if total, ok := totals[size]; ok {
		return size, total, true
	}
	sizes := make([]int, 0, len(totals))
	for s := range totals {
		if s < size {
			sizes = append(sizes, s)
		}
	}
	if len(sizes) == 0 {
		return 0, 0, false
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	return sizes[0], totals[sizes[0]], true
}

// Ratio returns the discount applied to a member of a family of `activeFamilySize` active members.
// The result is always within [0, MaxRatio].
func (r *Resolver) Ratio(cat pricing.Category, activeFamilySize int) decimal.Decimal {
	if activeFamilySize < minGroupSize {
		return decimal.Zero
	}
	if cat.Monthly <= 0 {
		r.logger.Warn("discount disabled: category has no monthly base price", map[string]interface{}{
			"category_id":   cat.ID,
			"category_name": cat.Name,
			"family_size":   activeFamilySize,
		})
		return decimal.Zero
	}

	tbl, ok := r.tables.For(cat.Name)
	if !ok {
		return decimal.Zero
	}
	refSize, refTotal, ok := lookup(tbl.Monthly, activeFamilySize)
	if !ok {
		return decimal.Zero
	}

	perCapita := decimal.NewFromInt(refTotal).Div(decimal.NewFromInt(int64(refSize)))
	ratio := decimal.NewFromInt(1).Sub(perCapita.Div(decimal.NewFromInt(cat.Monthly)))
	return clamp(ratio)
}

func clamp(ratio decimal.Decimal) decimal.Decimal {
	if ratio.IsNegative() {
		return decimal.Zero
	}
	if ratio.GreaterThan(MaxRatio) {
		return MaxRatio
	}
	return ratio
}

// MonthlyAmount is the discounted price of one month, rounded to the nearest unit.
func (r *Resolver) MonthlyAmount(cat pricing.Category, activeFamilySize int) int64 {
	return Apply(cat.Monthly, r.Ratio(cat, activeFamilySize))
}

// AnnualAmount is the discounted full-year price per member.
// Categories with direct annual totals charge total/size; the others reuse the monthly ratio.
func (r *Resolver) AnnualAmount(cat pricing.Category, activeFamilySize int) int64 {
	if tbl, ok := r.tables.For(cat.Name); ok {
		if refSize, refTotal, ok := lookup(tbl.Annual, activeFamilySize); ok {
			return decimal.NewFromInt(refTotal).Div(decimal.NewFromInt(int64(refSize))).Round(0).IntPart()
		}
	}
	return Apply(cat.Annual, r.Ratio(cat, activeFamilySize))
}

// Apply discounts `base` by `ratio`, rounding half away from zero.
func Apply(base int64, ratio decimal.Decimal) int64 {
	return decimal.NewFromInt(base).Mul(decimal.NewFromInt(1).Sub(ratio)).Round(0).IntPart()
}

// RoundDisplay rounds an amount to the nearest hundred, for totals shown to people.
func RoundDisplay(amount int64) int64 {
	return decimal.NewFromInt(amount).Round(-2).IntPart()
}

// Names lists the categories that have a table, sorted.
func (t Tables) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the tables for admin output.
func (t Tables) String() string {
	var sb strings.Builder
	for _, name := range t.Names() {
		out, _ := yaml.Marshal(map[string]Table{name: t[name]})
		sb.Write(out)
	}
	return sb.String()
}
