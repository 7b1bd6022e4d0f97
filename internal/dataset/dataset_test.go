package dataset

import "testing"

func sample(t *testing.T) *Dataset {
	t.Helper()
	ds, err := New(
		[]string{"city", "revenue", "note"},
		[][]any{
			{"rome", 10.0, nil},
			{"milan", 12.5, "ok"},
			{"rome", 10.0, nil},
			{"turin", nil, "check"},
		},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ds
}

func TestNewRejectsRaggedRows(t *testing.T) {
	_, err := New([]string{"a", "b"}, [][]any{{1.0}})
	if err == nil {
		t.Fatalf("New() with ragged row should fail")
	}
}

func TestColumnTypes(t *testing.T) {
	ds := sample(t)
	types := ds.ColumnTypes()
	if types["city"] != TypeString {
		t.Fatalf("city type = %q, want %q", types["city"], TypeString)
	}
	if types["revenue"] != TypeNumeric {
		t.Fatalf("revenue type = %q, want %q", types["revenue"], TypeNumeric)
	}
}

func TestMissingAndDuplicates(t *testing.T) {
	ds := sample(t)
	missing := ds.MissingCounts()
	if missing["revenue"] != 1 {
		t.Fatalf("revenue missing = %d, want 1", missing["revenue"])
	}
	if missing["note"] != 2 {
		t.Fatalf("note missing = %d, want 2", missing["note"])
	}
	if got := ds.DuplicateRows(); got != 1 {
		t.Fatalf("DuplicateRows() = %d, want 1", got)
	}
}

func TestNumericColumn(t *testing.T) {
	ds := sample(t)
	vals, ok := ds.Numeric("revenue")
	if !ok {
		t.Fatalf("revenue should be numeric")
	}
	if len(vals) != 3 {
		t.Fatalf("numeric values = %d, want 3 (missing skipped)", len(vals))
	}
	if _, ok := ds.Numeric("city"); ok {
		t.Fatalf("city should not be numeric")
	}
}

func TestHeadPreview(t *testing.T) {
	ds := sample(t)
	p := ds.HeadPreview(2)
	if p.TotalRows != 4 {
		t.Fatalf("TotalRows = %d, want 4", p.TotalRows)
	}
	if len(p.Rows) != 2 {
		t.Fatalf("preview rows = %d, want 2", len(p.Rows))
	}
	if p.Rows[0][1] != "10" {
		t.Fatalf("integral float rendered as %q, want %q", p.Rows[0][1], "10")
	}
	if p.Rows[0][2] != "" {
		t.Fatalf("missing cell rendered as %q, want empty", p.Rows[0][2])
	}
}

func TestCloneIsDeep(t *testing.T) {
	ds := sample(t)
	clone := ds.Clone()
	clone.rows[0][0] = "naples"
	if ds.rows[0][0] != "rome" {
		t.Fatalf("Clone() shares row storage with the original")
	}
}

func TestTopValues(t *testing.T) {
	ds := sample(t)
	labels, counts := ds.TopValues("city", 2)
	if len(labels) != 2 || labels[0] != "rome" {
		t.Fatalf("TopValues labels = %v, want rome first", labels)
	}
	if counts[0] != 2 {
		t.Fatalf("rome count = %v, want 2", counts[0])
	}
}
