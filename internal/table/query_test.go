package table

import (
	"testing"

	"github.com/tablo-db/tablo/internal/criteria"
	"github.com/tablo-db/tablo/internal/errors"
	"github.com/tablo-db/tablo/pkg/types"
)

func queryFixture(t *testing.T) *Table {
	t.Helper()
	tbl, err := New([]RawRow{
		{Key: 1, Fields: map[string]interface{}{"name": "Ann", "age": 30, "city": "Oslo"}},
		{Key: 2, Fields: map[string]interface{}{"name": "Bob", "age": 25, "city": "Bergen"}},
		{Key: 3, Fields: map[string]interface{}{"name": "Cid", "age": 25, "city": "Oslo"}},
		{Key: 4, Fields: map[string]interface{}{"name": "Dee", "age": 40, "city": nil}},
		{Key: 5, Fields: map[string]interface{}{"name": "Eve", "age": 35, "city": "Oslo"}},
	}, nil)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}
	return tbl
}

func assertKeys(t *testing.T, tbl *Table, want ...types.Key) {
	t.Helper()
	got := tbl.Keys()
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected key %v, got %v", i, want[i], got[i])
		}
	}
}

func names(t *testing.T, tbl *Table) []string {
	t.Helper()
	vals, err := tbl.Values("name")
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.Text()
	}
	return out
}

func TestSelectPreservingKeys(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Select([]criteria.Criterion{criteria.Eq("city", "Oslo")}, true)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	assertKeys(t, out, types.IntKey(1), types.IntKey(3), types.IntKey(5))
}

func TestSelectRenumbering(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Select([]criteria.Criterion{criteria.Eq("city", "Oslo")}, false)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	assertKeys(t, out, types.IntKey(0), types.IntKey(1), types.IntKey(2))
	got := names(t, out)
	for i, want := range []string{"Ann", "Cid", "Eve"} {
		if got[i] != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i])
		}
	}
}

func TestSelectEmptyCriteriaIsIdentity(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Select(nil, true)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	assertKeys(t, out, tbl.Keys()...)
	for _, key := range tbl.Keys() {
		orig, _ := tbl.Row(key)
		got, _ := out.Row(key)
		for col, v := range orig {
			if got[col] != v {
				t.Errorf("row %v, column %q: %v != %v", key, col, got[col], v)
			}
		}
	}
}

func TestSelectUndefinedColumn(t *testing.T) {
	tbl := queryFixture(t)
	_, err := tbl.Select([]criteria.Criterion{criteria.Eq("ghost", 1)}, true)
	if errors.GetCode(err) != errors.CodeUndefinedColumn {
		t.Errorf("expected UNDEFINED_COLUMN, got %v", err)
	}
}

func TestSelectResultIsIndependent(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Select(nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := out.UpdateField(types.IntKey(1), "age", types.Int(99)); err != nil {
		t.Fatal(err)
	}
	orig, _ := tbl.Row(types.IntKey(1))
	if orig["age"] != types.Int(30) {
		t.Error("mutating a query result must not touch the source table")
	}
}

func TestProject(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Project([]string{"age", "name"})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	cols := out.Columns()
	if len(cols) != 2 || cols[0] != "age" || cols[1] != "name" {
		t.Errorf("projection order not honored: %v", cols)
	}
	assertKeys(t, out, tbl.Keys()...)
	row, _ := out.Row(types.IntKey(1))
	if _, ok := row["city"]; ok {
		t.Error("city should be projected away")
	}

	_, err = tbl.Project([]string{"name", "ghost"})
	if errors.GetCode(err) != errors.CodeUndefinedColumn {
		t.Errorf("expected UNDEFINED_COLUMN, got %v", err)
	}
}

func TestSortSingleKey(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Sort([]SortKey{Asc("age")}, true)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	// stable: Bob (key 2) entered before Cid (key 3), both age 25
	assertKeys(t, out, types.IntKey(2), types.IntKey(3), types.IntKey(1), types.IntKey(5), types.IntKey(4))
}

func TestSortDescending(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Sort([]SortKey{Desc("age")}, true)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	assertKeys(t, out, types.IntKey(4), types.IntKey(5), types.IntKey(1), types.IntKey(2), types.IntKey(3))
}

func TestSortCompositeKeys(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Sort([]SortKey{Asc("age"), Desc("name")}, true)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	// the tie at age 25 breaks on name descending: Cid before Bob
	assertKeys(t, out, types.IntKey(3), types.IntKey(2), types.IntKey(1), types.IntKey(5), types.IntKey(4))
}

func TestSortNullsFirst(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Sort([]SortKey{Asc("city")}, true)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if out.Keys()[0] != types.IntKey(4) {
		t.Errorf("null city should sort first, got %v", out.Keys())
	}
}

func TestSortRenumbersIntegerKeys(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Sort([]SortKey{Asc("age")}, false)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	assertKeys(t, out, types.IntKey(0), types.IntKey(1), types.IntKey(2), types.IntKey(3), types.IntKey(4))
	got := names(t, out)
	if got[0] != "Bob" || got[4] != "Dee" {
		t.Errorf("renumbering must keep the sorted order: %v", got)
	}
}

func TestSortRetainsStringKeys(t *testing.T) {
	tbl, err := New([]RawRow{
		{Key: "b", Fields: map[string]interface{}{"n": 2}},
		{Key: "a", Fields: map[string]interface{}{"n": 1}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := tbl.Sort([]SortKey{Asc("n")}, false)
	if err != nil {
		t.Fatal(err)
	}
	assertKeys(t, out, types.StringKey("a"), types.StringKey("b"))
}

func TestSortSkipsUnknownColumns(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Sort([]SortKey{Asc("ghost"), Asc("age")}, true)
	if err != nil {
		t.Fatalf("unknown sort columns are skipped, not errors: %v", err)
	}
	if out.Keys()[0] != types.IntKey(2) {
		t.Error("the surviving sort key should still apply")
	}
}

func TestSortIsIdempotent(t *testing.T) {
	tbl := queryFixture(t)
	once, err := tbl.Sort([]SortKey{Asc("age"), Asc("name")}, true)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := once.Sort([]SortKey{Asc("age"), Asc("name")}, true)
	if err != nil {
		t.Fatal(err)
	}
	assertKeys(t, twice, once.Keys()...)
}

func TestLimit(t *testing.T) {
	tbl := queryFixture(t)

	out := tbl.Limit(2, 0)
	assertKeys(t, out, types.IntKey(0), types.IntKey(1))
	if got := names(t, out); got[0] != "Ann" || got[1] != "Bob" {
		t.Errorf("limit should keep row order: %v", got)
	}

	out = tbl.Limit(2, 3)
	if got := names(t, out); len(got) != 2 || got[0] != "Dee" || got[1] != "Eve" {
		t.Errorf("offset window wrong: %v", got)
	}

	// zero count means unbounded
	out = tbl.Limit(0, 2)
	if out.Len() != 3 {
		t.Errorf("count 0 with offset 2 should yield 3 rows, got %d", out.Len())
	}

	// offset past the end yields an empty table
	out = tbl.Limit(2, 10)
	if out.Len() != 0 {
		t.Errorf("expected empty result, got %d rows", out.Len())
	}

	// negatives are clamped to zero
	out = tbl.Limit(-1, -5)
	if out.Len() != 5 {
		t.Errorf("negative bounds should behave as zero, got %d rows", out.Len())
	}
}

func TestLimitAlwaysRenumbers(t *testing.T) {
	tbl := queryFixture(t)
	if err := tbl.SetKeyColumn("name"); err != nil {
		t.Fatal(err)
	}
	out := tbl.Limit(2, 1)
	assertKeys(t, out, types.IntKey(0), types.IntKey(1))
	if out.KeyColumn() != "" {
		t.Error("limited views lose their key column")
	}
}

func TestQueryPipeline(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Query(
		[]criteria.Criterion{criteria.Eq("city", "Oslo")},
		[]string{"name", "age"},
		[]SortKey{Desc("age")},
		2, 0,
	)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := names(t, out)
	if len(got) != 2 || got[0] != "Eve" || got[1] != "Ann" {
		t.Errorf("expected [Eve Ann], got %v", got)
	}
	if out.Columns()[0] != "name" || len(out.Columns()) != 2 {
		t.Errorf("projection should survive the pipeline: %v", out.Columns())
	}
	assertKeys(t, out, types.IntKey(0), types.IntKey(1))
}

func TestQueryWithoutLimitKeepsKeys(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Query(
		[]criteria.Criterion{criteria.C("age", criteria.OpGe, 30)},
		nil,
		[]SortKey{Asc("age")},
		0, 0,
	)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	assertKeys(t, out, types.IntKey(1), types.IntKey(5), types.IntKey(4))
}

func TestQueryNoOpIsIdentity(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.Query(nil, nil, nil, 0, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	assertKeys(t, out, tbl.Keys()...)
	for _, key := range tbl.Keys() {
		orig, _ := tbl.Row(key)
		got, _ := out.Row(key)
		for col, v := range orig {
			if got[col] != v {
				t.Errorf("row %v differs after a no-op query", key)
			}
		}
	}
}

func TestFetchRowPathsAgree(t *testing.T) {
	tbl := queryFixture(t)

	// scan path
	scanRow, scanKey, ok, err := tbl.FetchRow("name", types.Str("Cid"))
	if err != nil || !ok {
		t.Fatalf("scan path: %v, ok=%v", err, ok)
	}

	// index path
	if err := tbl.AddIndex("name", true); err != nil {
		t.Fatal(err)
	}
	idxRow, idxKey, ok, err := tbl.FetchRow("name", types.Str("Cid"))
	if err != nil || !ok {
		t.Fatalf("index path: %v, ok=%v", err, ok)
	}

	// key-column path
	if err := tbl.SetKeyColumn("name"); err != nil {
		t.Fatal(err)
	}
	keyRow, keyKey, ok, err := tbl.FetchRow("name", types.Str("Cid"))
	if err != nil || !ok {
		t.Fatalf("key-column path: %v, ok=%v", err, ok)
	}

	if scanRow["age"] != idxRow["age"] || idxRow["age"] != keyRow["age"] {
		t.Error("the three lookup paths returned different rows")
	}
	if scanKey != idxKey {
		t.Errorf("scan key %v vs index key %v", scanKey, idxKey)
	}
	if keyKey != types.StringKey("Cid") {
		t.Errorf("key-column path should address by the column value, got %v", keyKey)
	}
}

func TestFetchRowsPreservesKeys(t *testing.T) {
	tbl := queryFixture(t)
	out, err := tbl.FetchRows("age", types.Int(25))
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	assertKeys(t, out, types.IntKey(2), types.IntKey(3))

	out, err = tbl.FetchRows("age", types.Int(99))
	if err != nil || out.Len() != 0 {
		t.Errorf("a miss is an empty table, not an error: %v", err)
	}

	_, err = tbl.FetchRows("ghost", types.Int(1))
	if errors.GetCode(err) != errors.CodeUndefinedColumn {
		t.Errorf("expected UNDEFINED_COLUMN, got %v", err)
	}
}

func TestFetchRowStrictEquality(t *testing.T) {
	tbl := queryFixture(t)
	if _, _, ok, _ := tbl.FetchRow("age", types.Float(25)); ok {
		t.Error("double 25.0 must not match integer age 25")
	}
	if _, _, ok, _ := tbl.FetchRow("age", types.Str("25")); ok {
		t.Error("string \"25\" must not match integer age 25")
	}
}

func TestFind(t *testing.T) {
	tbl := queryFixture(t)

	row, key, ok, err := tbl.Find([]criteria.Criterion{
		criteria.C("age", criteria.OpGt, 25),
		criteria.Eq("city", "Oslo"),
	})
	if err != nil || !ok {
		t.Fatalf("Find: %v, ok=%v", err, ok)
	}
	if key != types.IntKey(1) || row["name"] != types.Str("Ann") {
		t.Errorf("expected the first match in row order, got %v %v", key, row)
	}

	_, _, ok, err = tbl.Find([]criteria.Criterion{criteria.Eq("name", "Zed")})
	if err != nil || ok {
		t.Error("a miss is ok=false, not an error")
	}
}

func TestFindAllOrdered(t *testing.T) {
	tbl, err := New(peopleRaw(), nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := tbl.FindAll(nil, nil, []SortKey{Asc("age")})
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	got := names(t, out)
	if len(got) != 2 || got[0] != "Bob" || got[1] != "Ann" {
		t.Errorf("expected [Bob Ann], got %v", got)
	}
}

func TestFindAllFastPathMatchesScan(t *testing.T) {
	tbl := queryFixture(t)

	viaScan, err := tbl.Select([]criteria.Criterion{criteria.Eq("city", "Oslo")}, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddIndex("city", false); err == nil {
		t.Fatal("city is nullable, indexing it should fail; fixture changed?")
	}
	viaFindAll, err := tbl.FindAll([]criteria.Criterion{criteria.Eq("city", "Oslo")}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertKeys(t, viaFindAll, viaScan.Keys()...)
}

func TestGetList(t *testing.T) {
	tbl := queryFixture(t)
	items, err := tbl.GetList("name")
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	if items[0].Key != types.IntKey(1) || items[0].Value != types.Str("Ann") {
		t.Errorf("item 0 = %+v", items[0])
	}

	_, err = tbl.GetList("ghost")
	if errors.GetCode(err) != errors.CodeUndefinedColumn {
		t.Errorf("expected UNDEFINED_COLUMN, got %v", err)
	}
}

func TestResetKeys(t *testing.T) {
	tbl := queryFixture(t)
	if err := tbl.SetKeyColumn("name"); err != nil {
		t.Fatal(err)
	}
	if err := tbl.ResetKeys(); err != nil {
		t.Fatalf("ResetKeys: %v", err)
	}
	assertKeys(t, tbl, types.IntKey(0), types.IntKey(1), types.IntKey(2), types.IntKey(3), types.IntKey(4))
	if tbl.KeyColumn() != "" {
		t.Error("ResetKeys must clear the key column")
	}
	got := names(t, tbl)
	if got[0] != "Ann" || got[4] != "Eve" {
		t.Errorf("ResetKeys must keep row order: %v", got)
	}
}

func TestSetKeyColumn(t *testing.T) {
	tbl := queryFixture(t)
	if err := tbl.SetKeyColumn("name"); err != nil {
		t.Fatalf("SetKeyColumn: %v", err)
	}
	if tbl.KeyColumn() != "name" {
		t.Errorf("KeyColumn = %q", tbl.KeyColumn())
	}
	row, ok := tbl.Row(types.StringKey("Bob"))
	if !ok || row["age"] != types.Int(25) {
		t.Errorf("rows should be addressable by name now: %v", row)
	}
	assertKeys(t, tbl,
		types.StringKey("Ann"), types.StringKey("Bob"), types.StringKey("Cid"),
		types.StringKey("Dee"), types.StringKey("Eve"))
}

func TestSetKeyColumnRejectsNullsAndDuplicates(t *testing.T) {
	tbl := queryFixture(t)

	// city holds a null
	err := tbl.SetKeyColumn("city")
	if errors.GetCode(err) != errors.CodeKeyColumnNotOneToOne {
		t.Errorf("null values cannot key rows: %v", err)
	}

	// age holds duplicates
	err = tbl.SetKeyColumn("age")
	if errors.GetCode(err) != errors.CodeKeyColumnNotOneToOne {
		t.Errorf("duplicate values cannot key rows: %v", err)
	}

	err = tbl.SetKeyColumn("ghost")
	if errors.GetCode(err) != errors.CodeUndefinedColumn {
		t.Errorf("expected UNDEFINED_COLUMN, got %v", err)
	}
}

func TestKeyColumnSurvivesSelectButNotLimit(t *testing.T) {
	tbl := queryFixture(t)
	if err := tbl.SetKeyColumn("name"); err != nil {
		t.Fatal(err)
	}

	out, err := tbl.Select(nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if out.KeyColumn() != "name" {
		t.Error("key-preserving select should keep the key column")
	}

	limited := out.Limit(2, 0)
	if limited.KeyColumn() != "" {
		t.Error("limit renumbers and must clear the key column")
	}
}

func TestSlice(t *testing.T) {
	tbl := queryFixture(t)
	rows := tbl.Slice(1, 2)
	if len(rows) != 2 || rows[0]["name"] != types.Str("Bob") || rows[1]["name"] != types.Str("Cid") {
		t.Errorf("Slice(1, 2) = %v", rows)
	}
	if rows := tbl.Slice(10, 2); len(rows) != 0 {
		t.Error("out-of-bounds slice is empty")
	}
	if rows := tbl.Slice(0, 0); len(rows) != 5 {
		t.Error("count 0 means unbounded")
	}
}

func TestValues(t *testing.T) {
	tbl := queryFixture(t)
	vals, err := tbl.Values("age")
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	want := []int64{30, 25, 25, 40, 35}
	for i, w := range want {
		if vals[i] != types.Int(w) {
			t.Errorf("position %d: %v, want %d", i, vals[i], w)
		}
	}
}
