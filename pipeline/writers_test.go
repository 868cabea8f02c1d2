package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-listings/models"
)

func readCSV(t *testing.T, path string) ([]byte, [][]string) {
	t.Helper()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte(utf8BOM)) {
		t.Fatalf("csv does not start with a byte-order mark: %q", raw[:min(len(raw), 8)])
	}

	records, err := csv.NewReader(bytes.NewReader(raw[len(utf8BOM):])).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return raw, records
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	listings := []models.Listing{
		{Title: "Cámara réflex, kit \"pro\"", Price: 999, Link: "https://articulo.example.test/MLA-1"},
		{Title: "Lente 50mm", Price: 1234.5, Link: models.LinkNotFound},
	}
	if err := writer.Write(listings); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	_, records := readCSV(t, path)
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "title" || records[0][1] != "price" || records[0][2] != "link" {
		t.Fatalf("unexpected header: %v", records[0])
	}

	want := [][]string{
		{"Cámara réflex, kit \"pro\"", "999.00", "https://articulo.example.test/MLA-1"},
		{"Lente 50mm", "1234.50", "N/A"},
	}
	for i, row := range want {
		got := records[i+1]
		for j := range row {
			if got[j] != row[j] {
				t.Fatalf("row %d col %d = %q, want %q", i+1, j, got[j], row[j])
			}
		}
	}
}

func TestCSVWriterHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "listings.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Validate(); err == nil {
		t.Fatal("expected validation error for header-only file")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat csv: %v", err)
	}
	if info.Size() != headerSize() {
		t.Fatalf("size=%d, want %d", info.Size(), headerSize())
	}
}

func TestCSVWriterOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	if err := os.WriteFile(path, []byte("stale,content\n1,2\n3,4\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]models.Listing{{Title: "Nuevo", Price: 1, Link: "https://x.test/1"}}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	_, records := readCSV(t, path)
	if len(records) != 2 || records[1][0] != "Nuevo" {
		t.Fatalf("records = %v, want header plus one row", records)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price float64
		want  string
	}{
		{0, "0.00"},
		{999, "999.00"},
		{1234.5, "1234.50"},
		{15.99, "15.99"},
		{1299999, "1299999.00"},
	}

	for _, tt := range tests {
		if got := formatPrice(tt.price); got != tt.want {
			t.Fatalf("formatPrice(%v) = %q, want %q", tt.price, got, tt.want)
		}
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	listings := []models.Listing{
		{Title: "Notebook <16GB>", Price: 326799, Link: "https://articulo.example.test/MLA-2?a=1&b=2"},
		{Title: "Mouse", Price: 0, Link: models.LinkNotFound},
	}
	if err := writer.Write(listings); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []models.Listing
	for scanner.Scan() {
		if bytes.Contains(scanner.Bytes(), []byte(`<`)) {
			t.Fatalf("html was escaped: %s", scanner.Bytes())
		}
		var l models.Listing
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, l)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("json lines=%d, want 2", len(decoded))
	}
	if decoded[0] != listings[0] || decoded[1] != listings[1] {
		t.Fatalf("decoded = %+v, want %+v", decoded, listings)
	}
}

func TestJSONLinesPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "listings.csv", want: "listings.jsonl"},
		{in: "out/listings.CSV", want: "out/listings.jsonl"},
		{in: "out/listings", want: "out/listings.jsonl"},
		{in: "out/listings.txt", want: "out/listings.txt.jsonl"},
	}

	for _, tt := range tests {
		if got := JSONLinesPath(tt.in); got != tt.want {
			t.Fatalf("JSONLinesPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "listings.csv")
	jsonPath := filepath.Join(dir, "listings.jsonl")

	writer, err := NewDualWriter(csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if paths := writer.Paths(); len(paths) != 2 || paths[0] != csvPath || paths[1] != jsonPath {
		t.Fatalf("paths = %v, want [%s %s]", paths, csvPath, jsonPath)
	}

	listings := SortByPrice([]models.Listing{
		{Title: "Teclado", Price: 15.99, Link: "https://articulo.example.test/MLA-3"},
		{Title: "Mouse", Price: 9.5, Link: ""},
	})
	if err := writer.Write(listings); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	_, records := readCSV(t, csvPath)
	if len(records) != 3 || records[1][0] != "Mouse" || records[2][1] != "15.99" {
		t.Fatalf("csv records = %v", records)
	}

	f, err := os.Open(jsonPath)
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer f.Close()

	var titles []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var l models.Listing
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		titles = append(titles, l.Title)
	}
	if len(titles) != 2 || titles[0] != "Mouse" || titles[1] != "Teclado" {
		t.Fatalf("jsonl titles = %v, want same order as csv", titles)
	}
}

func TestDualWriterValidateReportsEmptyOutputs(t *testing.T) {
	writer, err := NewDualWriter(filepath.Join(t.TempDir(), "listings.csv"))
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	defer writer.Close()

	err = writer.Validate()
	if err == nil {
		t.Fatal("expected validation error before any write")
	}
	for _, path := range writer.Paths() {
		if !strings.Contains(err.Error(), path) {
			t.Fatalf("error %q does not name %s", err, path)
		}
	}
}
