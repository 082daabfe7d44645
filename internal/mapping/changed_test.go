package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperengineering/syncbridge/internal/types"
)

func TestParseDatetime(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1970-01-01T00:00:00Z", 0},
		{"2002-01-03T22:30:10+01:00", 1010093410},
		{"2002-01-03 22:30:10", 1010097010},
		{"Thu, 03 Jan 2002 22:30:10 GMT", 1010097010},
		{"@1010101010", 1010101010},
	}
	for _, tt := range tests {
		got, err := ParseDatetime(tt.in)
		if err != nil {
			t.Errorf("ParseDatetime(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDatetime(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "   ", "soon", "@-1"} {
		if _, err := ParseDatetime(bad); !errors.Is(err, ErrFieldFormat) {
			t.Errorf("ParseDatetime(%q) error = %v, want ErrFieldFormat", bad, err)
		}
	}
}

func TestDatetimeTransforms(t *testing.T) {
	tr := NewTransforms()
	in, _ := tr.importTransform("datetime")
	out, _ := tr.exportTransform("datetime")
	f := types.FieldMapping{MachineName: "name", RemoteName: "born"}

	e := newFakeEntity("1", userFields())
	if err := in(context.Background(), map[string]any{"born": "2002-01-03"}, e, f); err != nil {
		t.Fatal(err)
	}
	if e.values["name"][0] != int64(1010016000) {
		t.Errorf("imported = %v", e.values["name"])
	}

	v, err := out(context.Background(), e, "", f)
	if err != nil || v != "2002-01-03T00:00:00Z" {
		t.Errorf("exported = %v, %v", v, err)
	}
}

func TestTransforms_Registry(t *testing.T) {
	tr := NewTransforms()
	if !tr.HasImportTransform("datetime") || !tr.HasExportTransform("join_comma") {
		t.Error("built-in transforms missing")
	}
	if tr.HasImportTransform("join_comma") {
		t.Error("export transform reported as import transform")
	}
	imports, exports := tr.Names()
	if len(imports) != 2 || len(exports) != 2 {
		t.Errorf("Names() = %v, %v", imports, exports)
	}
}
