// Package metadata decorates ranked labels with gear information from an
// external table: item id, display name and the 3D model the item uses.
// Items sharing a model are siblings.
package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/xuri/excelize/v2"
)

// Item is one row of the gear table.
type Item struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ModelPath string `json:"model_path,omitempty"`
}

// Label returns the gallery label for the item, "name_id".
func (i Item) Label() string {
	return i.Name + "_" + i.ID
}

// Sibling is an item sharing a model with a ranked label.
type Sibling struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Match is a name search hit.
type Match struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Accepted header spellings per column.
var (
	idHeaders    = []string{"物品ID", "id", "item_id"}
	nameHeaders  = []string{"物品名称", "name", "item_name"}
	modelHeaders = []string{"模型路径", "model_path", "model"}
)

// Catalog is an immutable view of the gear table.
type Catalog struct {
	items  map[string]Item
	order  []string            // ids in table order
	groups map[string][]string // model path -> ids in table order
	names  bleve.Index
}

// Empty returns a catalog with no items.
func Empty() *Catalog {
	return &Catalog{items: map[string]Item{}, groups: map[string][]string{}}
}

// LoadCatalog reads a .csv or .xlsx gear table. An empty path or a missing
// file yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return Empty(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSVFile(path)
	}
	if err != nil {
		return nil, err
	}
	return FromRows(rows)
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gear table: %w", err)
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse gear table: %w", err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open gear workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// ParseCSV builds a catalog from CSV content.
func ParseCSV(r io.Reader) (*Catalog, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return FromRows(rows)
}

// FromRows builds a catalog from a header row followed by data rows. Rows
// missing an id, name or model path are skipped. A repeated id keeps the
// last row.
func FromRows(rows [][]string) (*Catalog, error) {
	c := Empty()
	if len(rows) == 0 {
		return c, nil
	}
	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idCol, nameCol, modelCol := column(header, idHeaders), column(header, nameHeaders), column(header, modelHeaders)
	if idCol < 0 || nameCol < 0 || modelCol < 0 {
		return nil, fmt.Errorf("gear table header %v lacks id, name or model path column", header)
	}

	for _, row := range rows[1:] {
		item := Item{
			ID:        strings.TrimSpace(cell(row, idCol)),
			Name:      strings.Trim(strings.TrimSpace(cell(row, nameCol)), `"`),
			ModelPath: strings.TrimSpace(cell(row, modelCol)),
		}
		if item.ID == "" || item.Name == "" || item.ModelPath == "" {
			continue
		}
		prev, seen := c.items[item.ID]
		c.items[item.ID] = item
		switch {
		case !seen:
			c.order = append(c.order, item.ID)
		case prev.ModelPath == item.ModelPath:
			continue
		default:
			c.groups[prev.ModelPath] = remove(c.groups[prev.ModelPath], item.ID)
		}
		c.groups[item.ModelPath] = append(c.groups[item.ModelPath], item.ID)
	}
	if err := c.indexNames(); err != nil {
		return nil, err
	}
	return c, nil
}

func column(header []string, names []string) int {
	for i, h := range header {
		h = strings.TrimSpace(h)
		for _, n := range names {
			if strings.EqualFold(h, n) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// indexNames builds the in-memory fuzzy name index.
func (c *Catalog) indexNames() error {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	name := bleve.NewTextFieldMapping()
	name.Analyzer = standard.Name
	doc.AddFieldMappingsAt("name", name)
	im.DefaultMapping = doc

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return fmt.Errorf("failed to create name index: %w", err)
	}
	batch := idx.NewBatch()
	for _, id := range c.order {
		if err := batch.Index(id, map[string]string{"name": c.items[id].Name}); err != nil {
			idx.Close()
			return fmt.Errorf("index gear name: %w", err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("index gear names: %w", err)
	}
	c.names = idx
	return nil
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	return len(c.items)
}

// Item returns the item with id.
func (c *Catalog) Item(id string) (Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// IDFromLabel extracts the item id from a "name_id" label.
func IDFromLabel(label string) (string, bool) {
	i := strings.LastIndex(label, "_")
	if i < 0 || i == len(label)-1 {
		return "", false
	}
	return label[i+1:], true
}

// Siblings returns the other items that share label's model, in table order.
// Unknown labels and labels without an id yield nil.
func (c *Catalog) Siblings(label string) []Sibling {
	id, ok := IDFromLabel(label)
	if !ok {
		return nil
	}
	item, ok := c.items[id]
	if !ok {
		return nil
	}
	var out []Sibling
	for _, other := range c.groups[item.ModelPath] {
		if other == id {
			continue
		}
		o := c.items[other]
		out = append(out, Sibling{ID: o.ID, Name: o.Name})
	}
	return out
}

// Search returns items whose name contains q, case-insensitively, best
// matches first: prefix matches, then earlier match position, then shorter
// names. When nothing contains q, a fuzzy name search is used instead.
func (c *Catalog) Search(q string, limit int) []Match {
	q = strings.TrimSpace(q)
	if q == "" || len(c.items) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}
	ql := strings.ToLower(q)
	var hits []Item
	for _, id := range c.order {
		if strings.Contains(strings.ToLower(c.items[id].Name), ql) {
			hits = append(hits, c.items[id])
		}
	}
	if len(hits) == 0 {
		return c.fuzzy(q, limit)
	}
	sortByRelevance(hits, ql, func(it Item) string { return it.Name })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Match, len(hits))
	for i, it := range hits {
		out[i] = Match{ID: it.ID, Name: it.Name, Label: it.Label()}
	}
	return out
}

func (c *Catalog) fuzzy(q string, limit int) []Match {
	if c.names == nil {
		return nil
	}
	mq := bleve.NewMatchQuery(q)
	mq.SetField("name")
	if len([]rune(q)) >= 5 {
		mq.SetFuzziness(2)
	} else {
		mq.SetFuzziness(1)
	}
	req := bleve.NewSearchRequest(mq)
	req.Size = limit
	res, err := c.names.Search(req)
	if err != nil {
		return nil
	}
	out := make([]Match, 0, len(res.Hits))
	for _, h := range res.Hits {
		it, ok := c.items[h.ID]
		if !ok {
			continue
		}
		out = append(out, Match{ID: it.ID, Name: it.Name, Label: it.Label()})
	}
	return out
}

// Autocomplete returns distinct names containing q, ordered like Search.
func (c *Catalog) Autocomplete(q string, limit int) []string {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}
	ql := strings.ToLower(q)
	seen := map[string]struct{}{}
	var names []string
	for _, id := range c.order {
		n := c.items[id].Name
		if _, ok := seen[n]; ok || !strings.Contains(strings.ToLower(n), ql) {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	sortByRelevance(names, ql, func(s string) string { return s })
	if len(names) > limit {
		names = names[:limit]
	}
	return names
}

func sortByRelevance[T any](xs []T, ql string, name func(T) string) {
	sort.SliceStable(xs, func(i, j int) bool {
		a, b := strings.ToLower(name(xs[i])), strings.ToLower(name(xs[j]))
		ap, bp := strings.HasPrefix(a, ql), strings.HasPrefix(b, ql)
		if ap != bp {
			return ap
		}
		if ai, bi := strings.Index(a, ql), strings.Index(b, ql); ai != bi {
			return ai < bi
		}
		if len([]rune(a)) != len([]rune(b)) {
			return len([]rune(a)) < len([]rune(b))
		}
		return a < b
	})
}

// Close releases the name index.
func (c *Catalog) Close() error {
	if c.names == nil {
		return nil
	}
	return c.names.Close()
}
