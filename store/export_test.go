package store

import (
	"path/filepath"
	"testing"
)

func TestExportImportSet(t *testing.T) {
	src := openTestStore(t)
	if _, err := src.Create("a", "return true;", "desc a", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Create("b", "return context.gender === 'male';", "", "ex"); err != nil {
		t.Fatal(err)
	}

	data, err := src.ExportSet()
	if err != nil {
		t.Fatalf("ExportSet: %v", err)
	}

	dst, err := Open(filepath.Join(t.TempDir(), "copy.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	n, err := dst.ImportSet(data)
	if err != nil {
		t.Fatalf("ImportSet: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported %d, want 2", n)
	}

	patterns, err := dst.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 2 || patterns[0].Name != "a" || patterns[1].Name != "b" {
		t.Errorf("imported set mismatched: %+v", patterns)
	}
	if patterns[0].Description != "desc a" || patterns[1].Examples != "ex" {
		t.Error("metadata lost in snapshot round trip")
	}

	// Importing the same snapshot again is a no-op.
	n, err = dst.ImportSet(data)
	if err != nil {
		t.Fatalf("second ImportSet: %v", err)
	}
	if n != 0 {
		t.Errorf("second import created %d records", n)
	}
}

func TestImportRevalidatesScripts(t *testing.T) {
	dst := openTestStore(t)

	// A snapshot hand-built around the create path, simulating legacy data
	// with a hostile script.
	set := patternSet{Version: setVersion, Patterns: []Pattern{
		{Name: "clean", Script: "return true;"},
		{Name: "hostile", Script: "process.exit(1);"},
	}}
	data, err := cborEncMode.Marshal(&set)
	if err != nil {
		t.Fatal(err)
	}

	n, err := dst.ImportSet(data)
	if err != nil {
		t.Fatalf("ImportSet: %v", err)
	}
	if n != 1 {
		t.Errorf("imported %d, want 1 (hostile script skipped)", n)
	}
	patterns, _ := dst.List()
	if len(patterns) != 1 || patterns[0].Name != "clean" {
		t.Errorf("unexpected stored set: %+v", patterns)
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	dst := openTestStore(t)

	data, err := cborEncMode.Marshal(&patternSet{Version: 99})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dst.ImportSet(data); err == nil {
		t.Error("unknown snapshot version accepted")
	}
}
