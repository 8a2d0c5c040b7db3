package metadata

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const gearCSV = "\ufeff物品ID,物品名称,模型路径\n" +
	"101,Iron Sword,models/sword_a\n" +
	"102,Steel Sword,models/sword_a\n" +
	"103,Golden Sword,models/sword_a\n" +
	"201,Iron Shield,models/shield\n" +
	"301,Swordfish Helm,models/helm\n" +
	"401,,models/none\n" +
	"102,Steel Sword,models/sword_a\n"

func mustParse(t *testing.T, data string) *Catalog {
	t.Helper()
	c, err := ParseCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestParseCSV(t *testing.T) {
	c := mustParse(t, gearCSV)
	if c.Len() != 5 {
		t.Fatalf("Len = %d, want 5 (row without name skipped, duplicate merged)", c.Len())
	}
	it, ok := c.Item("201")
	if !ok || it.Name != "Iron Shield" || it.Label() != "Iron Shield_201" {
		t.Errorf("Item(201) = %+v, %v", it, ok)
	}
}

func TestParseCSV_EnglishHeaders(t *testing.T) {
	c := mustParse(t, "id,name,model_path\n1,Axe,m/axe\n")
	if _, ok := c.Item("1"); !ok {
		t.Error("expected item 1")
	}
}

func TestParseCSV_MissingColumn(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("id,name\n1,Axe\n")); err == nil {
		t.Fatal("expected error for missing model path column")
	}
}

func TestIDFromLabel(t *testing.T) {
	tests := []struct {
		label  string
		wantID string
		wantOK bool
	}{
		{"Iron Sword_101", "101", true},
		{"Two_Part_Name_7", "7", true},
		{"noid", "", false},
		{"trailing_", "", false},
	}
	for _, tt := range tests {
		id, ok := IDFromLabel(tt.label)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("IDFromLabel(%q) = %q, %v; want %q, %v", tt.label, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestSiblings(t *testing.T) {
	c := mustParse(t, gearCSV)
	got := c.Siblings("Iron Sword_101")
	want := []Sibling{{ID: "102", Name: "Steel Sword"}, {ID: "103", Name: "Golden Sword"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Siblings = %+v, want %+v", got, want)
	}
	if s := c.Siblings("Iron Shield_201"); len(s) != 0 {
		t.Errorf("lone item siblings = %+v", s)
	}
	if s := c.Siblings("Unknown_999"); s != nil {
		t.Errorf("unknown siblings = %+v", s)
	}
	if s := c.Siblings("nolabel"); s != nil {
		t.Errorf("malformed label siblings = %+v", s)
	}
}

func TestSearch_SubstringOrdering(t *testing.T) {
	c := mustParse(t, gearCSV)
	got := c.Search("sword", 10)
	var names []string
	for _, m := range got {
		names = append(names, m.Name)
	}
	want := []string{"Swordfish Helm", "Iron Sword", "Steel Sword", "Golden Sword"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Search(sword) = %v, want %v", names, want)
	}
	if got[1].Label != "Iron Sword_101" {
		t.Errorf("label = %q", got[1].Label)
	}
	if n := len(c.Search("sword", 2)); n != 2 {
		t.Errorf("limit ignored: %d results", n)
	}
	if r := c.Search("  ", 10); r != nil {
		t.Errorf("blank query = %+v", r)
	}
}

func TestSearch_FuzzyFallback(t *testing.T) {
	c := mustParse(t, gearCSV)
	got := c.Search("sheild", 10)
	if len(got) == 0 || got[0].ID != "201" {
		t.Errorf("fuzzy Search(sheild) = %+v, want Iron Shield first", got)
	}
}

func TestAutocomplete(t *testing.T) {
	c := mustParse(t, gearCSV)
	got := c.Autocomplete("iron", 10)
	want := []string{"Iron Sword", "Iron Shield"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Autocomplete(iron) = %v, want %v", got, want)
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "none.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 || c.Siblings("a_1") != nil || c.Search("a", 1) != nil {
		t.Error("expected empty catalog")
	}
}

func TestLoadCatalog_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gears.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"物品ID", "物品名称", "模型路径"},
		{"11", "Bow", "m/bow"},
		{"12", "Long Bow", "m/bow"},
	}
	for i, row := range rows {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if got := c.Siblings("Bow_11"); len(got) != 1 || got[0].ID != "12" {
		t.Errorf("Siblings = %+v", got)
	}
}

func TestStore_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gears.csv")
	if err := os.WriteFile(path, []byte("id,name,model_path\n1,Axe,m/axe\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Catalog().Len() != 1 {
		t.Fatalf("Len = %d", s.Catalog().Len())
	}

	if err := os.WriteFile(path, []byte("id,name,model_path\n1,Axe,m/axe\n2,Big Axe,m/axe\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := s.Catalog().Siblings("Axe_1"); len(got) != 1 {
		t.Errorf("Siblings after reload = %+v", got)
	}

	// A broken table keeps the previous catalog.
	if err := os.WriteFile(path, []byte("id,name\n1,Axe\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if s.Catalog().Len() != 2 {
		t.Errorf("Len after failed reload = %d, want 2", s.Catalog().Len())
	}
}
