package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionFromFile(t *testing.T) {
	tests := []struct {
		name    string
		want    int64
		wantErr bool
	}{
		{"001_custody.up.sql", 1, false},
		{"012_add_index.up.sql", 12, false},
		{"custody.up.sql", 0, true},
		{"abc_custody.up.sql", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := versionFromFile(tc.name)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %d", got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Errorf("got %d, %v; want %d", got, err, tc.want)
			}
		})
	}
}

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadPlan_numericOrderSkipsDownFiles(t *testing.T) {
	dir := writeFiles(t, "10_j.up.sql", "2_b.up.sql", "001_a.up.sql", "001_a.down.sql", "README.md")

	plan, err := loadPlan(dir)
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	for _, m := range plan {
		got = append(got, m.Version)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 10 {
		t.Errorf("versions = %v, want [1 2 10]", got)
	}
	if plan[2].File != "10_j.up.sql" {
		t.Errorf("last file = %q", plan[2].File)
	}
}

func TestLoadPlan_rejectsDuplicateVersion(t *testing.T) {
	dir := writeFiles(t, "001_a.up.sql", "1_again.up.sql")
	if _, err := loadPlan(dir); err == nil || !strings.Contains(err.Error(), "version 1") {
		t.Errorf("expected duplicate version error, got %v", err)
	}
}

func TestLoadPlan_rejectsUnnumberedFile(t *testing.T) {
	dir := writeFiles(t, "custody.up.sql")
	if _, err := loadPlan(dir); err == nil {
		t.Error("expected error for file without a version prefix")
	}
}

func TestPending_skipsApplied(t *testing.T) {
	plan := []migration{{1, "001_a.up.sql"}, {2, "002_b.up.sql"}, {3, "003_c.up.sql"}}
	todo := pending(plan, map[int64]bool{1: true, 3: true})
	if len(todo) != 1 || todo[0].Version != 2 {
		t.Errorf("pending = %v", todo)
	}
	if len(pending(plan, map[int64]bool{1: true, 2: true, 3: true})) != 0 {
		t.Error("nothing should be pending once every version is applied")
	}
}

func TestLoadPlan_repoSchema(t *testing.T) {
	plan, err := loadPlan(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) < 2 || plan[0].Version != 1 {
		t.Fatalf("expected the custody and webhook migrations, got %v", plan)
	}
}
