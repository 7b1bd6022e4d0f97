package validate

import (
	"strings"
	"testing"

	"github.com/giuliaserra/aria/internal/dataset"
)

func TestFileExtension(t *testing.T) {
	allowed := []string{".csv", ".xlsx", ".xls"}

	if ok, _ := FileExtension("sales.CSV", allowed); !ok {
		t.Fatalf("uppercase extension should pass the allow-list")
	}
	ok, msg := FileExtension("sales.pdf", allowed)
	if ok {
		t.Fatalf("disallowed extension should fail")
	}
	if !strings.Contains(msg, ".csv") {
		t.Fatalf("rejection message should echo the allow-list, got %q", msg)
	}
}

func TestFileSize(t *testing.T) {
	if ok, _ := FileSize(5*1024*1024, 10); !ok {
		t.Fatalf("5MB under a 10MB ceiling should pass")
	}
	if ok, _ := FileSize(11*1024*1024, 10); ok {
		t.Fatalf("11MB over a 10MB ceiling should fail")
	}
}

func TestQueryTextBounds(t *testing.T) {
	if ok, _ := QueryText("ab"); ok {
		t.Fatalf("2-character query should fail")
	}
	if ok, _ := QueryText("abc"); !ok {
		t.Fatalf("3-character query should pass")
	}
	if ok, _ := QueryText("   "); ok {
		t.Fatalf("whitespace-only query should fail")
	}
	if ok, _ := QueryText(strings.Repeat("x", 501)); ok {
		t.Fatalf("501-character query should fail")
	}
	// Bounds are character counts: two CJK characters are six bytes but
	// still under the minimum, and 400 are 1200 bytes but within the cap.
	if ok, _ := QueryText("日本"); ok {
		t.Fatalf("2-character multibyte query should fail")
	}
	if ok, _ := QueryText(strings.Repeat("語", 400)); !ok {
		t.Fatalf("400-character multibyte query should pass")
	}
	if ok, _ := QueryText(strings.Repeat("語", 501)); ok {
		t.Fatalf("501-character multibyte query should fail")
	}
}

func TestQuerySafety(t *testing.T) {
	ok, msg := QuerySafety("DROP TABLE users")
	if ok {
		t.Fatalf("destructive SQL should be rejected")
	}
	if !strings.Contains(msg, "drop table") {
		t.Fatalf("rejection should name the offending token, got %q", msg)
	}
	if ok, _ := QuerySafety("average revenue per city"); !ok {
		t.Fatalf("benign query should pass the safety scan")
	}
}

func TestDatasetStructure(t *testing.T) {
	if ok, _ := Dataset(nil); ok {
		t.Fatalf("nil dataset should fail")
	}
	empty, _ := dataset.New([]string{"a"}, nil)
	if ok, _ := Dataset(empty); ok {
		t.Fatalf("zero-row dataset should fail")
	}
	ds, _ := dataset.New([]string{"a"}, [][]any{{1.0}})
	if ok, _ := Dataset(ds); !ok {
		t.Fatalf("one-row one-column dataset should pass")
	}
}

func TestColumnChecks(t *testing.T) {
	ds, _ := dataset.New(
		[]string{"city", "revenue"},
		[][]any{{"rome", 10.0}, {"milan", 12.0}},
	)

	if ok, _ := ColumnExists(ds, "city"); !ok {
		t.Fatalf("existing column should pass")
	}
	ok, msg := ColumnExists(ds, "region")
	if ok {
		t.Fatalf("missing column should fail")
	}
	if !strings.Contains(msg, "city") {
		t.Fatalf("message should list available columns, got %q", msg)
	}

	if ok, _ := NumericColumn(ds, "revenue"); !ok {
		t.Fatalf("numeric column should pass")
	}
	if ok, _ := NumericColumn(ds, "city"); ok {
		t.Fatalf("string column should fail the numeric check")
	}
	if ok, _ := CategoricalColumn(ds, "city", 50); !ok {
		t.Fatalf("low-cardinality column should pass the categorical check")
	}
	if ok, _ := CategoricalColumn(ds, "city", 1); ok {
		t.Fatalf("cardinality above the limit should fail")
	}
}

func TestDetectIssues(t *testing.T) {
	ds, _ := dataset.New(
		[]string{"city", "revenue"},
		[][]any{
			{"rome", 10.0},
			{"rome", 10.0},
			{"milan", nil},
		},
	)

	issues := DetectIssues(ds)
	if issues.Duplicates != 1 {
		t.Fatalf("Duplicates = %d, want 1", issues.Duplicates)
	}
	if issues.MissingValues["revenue"] != 1 {
		t.Fatalf("missing revenue = %d, want 1", issues.MissingValues["revenue"])
	}
	if len(issues.Warnings) != 2 {
		t.Fatalf("warnings = %v, want one missing-values and one duplicates warning", issues.Warnings)
	}
}

func TestDetectIssuesFlagsIDColumns(t *testing.T) {
	rows := make([][]any, 0, 150)
	for i := 0; i < 150; i++ {
		rows = append(rows, []any{float64(i), "x"})
	}
	ds, _ := dataset.New([]string{"id", "label"}, rows)

	issues := DetectIssues(ds)
	found := false
	for _, w := range issues.Warnings {
		if strings.Contains(w, "possible ID field") {
			found = true
		}
	}
	if !found {
		t.Fatalf("full-cardinality column above 100 rows should be flagged, warnings = %v", issues.Warnings)
	}
}
