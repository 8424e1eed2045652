package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/tailored-agentic-units/datashelf/dataset"
	"github.com/tailored-agentic-units/datashelf/storage"
)

const transfersCSV = `player_id,transfer_date,from_club_id,to_club_id,transfer_fee
1,2023-07-01,5,27,1000000
2,2023-08-15,27,11,
3,2021-01-31,11,5,250000
`

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func writeGzipFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestFileStore_List_MissingRoot(t *testing.T) {
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "nonexistent"))

	ids, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List() returned %d ids, want 0", len(ids))
	}
}

func TestFileStore_List(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "cur_transfers.csv", transfersCSV)
	writeGzipFile(t, root, "cur_games.csv.gz", "game_id,date\n1,2023-01-01\n")
	writeTestFile(t, root, "lookups/competitions.csv", "competition_id,name\nGB1,Premier League\n")
	writeTestFile(t, root, "README.md", "not a dataset")
	writeTestFile(t, root, ".staging/cur_players.csv", "player_id\n1\n")
	writeTestFile(t, root, ".hidden.csv", "a\n1\n")

	store := storage.NewFileStore(root)
	ids, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"cur_games", "cur_transfers", "lookups/competitions"}
	if len(ids) != len(want) {
		t.Fatalf("List() = %v, want %v", ids, want)
	}
	for i, id := range ids {
		if id != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, id, want[i])
		}
	}
}

func TestFileStore_Stat(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "cur_transfers.csv", "\ufeff"+transfersCSV)

	store := storage.NewFileStore(root)
	info, err := store.Stat(context.Background(), "cur_transfers")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	if info.Columns[0] != "player_id" {
		t.Errorf("first column = %q, want BOM stripped player_id", info.Columns[0])
	}
	if len(info.Columns) != 5 {
		t.Errorf("got %d columns, want 5", len(info.Columns))
	}
	if info.Bytes != int64(len("\ufeff"+transfersCSV)) {
		t.Errorf("got %d bytes, want %d", info.Bytes, len("\ufeff"+transfersCSV))
	}
}

func TestFileStore_Stat_NotFound(t *testing.T) {
	store := storage.NewFileStore(t.TempDir())

	for _, id := range []string{"cur_clubs", "../etc/passwd", ""} {
		_, err := store.Stat(context.Background(), id)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Stat(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestFileStore_Read_Gzip(t *testing.T) {
	root := t.TempDir()
	writeGzipFile(t, root, "cur_transfers.csv.gz", transfersCSV)

	store := storage.NewFileStore(root)
	table, err := store.Read(context.Background(), "cur_transfers", dataset.Query{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if table.Len() != 3 || table.Total != 3 {
		t.Errorf("got %d rows (total %d), want 3", table.Len(), table.Total)
	}
	if table.Rows[1][4] != "" {
		t.Errorf("empty fee cell = %q, want empty", table.Rows[1][4])
	}
}

func TestFileStore_Read_Filtered(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "cur_transfers.csv", transfersCSV)

	store := storage.NewFileStore(root)
	q := dataset.Query{
		DateRange: &dataset.DateRange{Column: "transfer_date", From: "2023-12-31", To: "2023-01-01"},
		Filters:   []dataset.Filter{{Columns: []string{"from_club_id", "to_club_id"}, Values: []string{"27"}}},
		Columns:   []string{"player_id"},
	}

	table, err := store.Read(context.Background(), "cur_transfers", q)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if table.Len() != 2 {
		t.Fatalf("got %d rows, want 2", table.Len())
	}
	if len(table.Columns) != 5 {
		t.Errorf("got %d columns, want all 5 (projection is not applied by stores)", len(table.Columns))
	}
}

func TestFileStore_Read_InvalidQuery(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "cur_transfers.csv", transfersCSV)

	store := storage.NewFileStore(root)
	q := dataset.Query{Filters: []dataset.Filter{{Columns: []string{"club_id"}, Values: []string{"1"}}}}

	_, err := store.Read(context.Background(), "cur_transfers", q)
	if !errors.Is(err, dataset.ErrInvalidQuery) {
		t.Errorf("Read() error = %v, want ErrInvalidQuery", err)
	}
}

func TestFileStore_Read_Malformed(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "broken.csv", "a,b\n\"unterminated,1\n")

	store := storage.NewFileStore(root)
	_, err := store.Read(context.Background(), "broken", dataset.Query{})
	if !errors.Is(err, storage.ErrReadFailed) {
		t.Errorf("Read() error = %v, want ErrReadFailed", err)
	}
}

func TestFileStore_Read_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "cur_transfers.csv", transfersCSV)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := storage.NewFileStore(root)
	_, err := store.Read(ctx, "cur_transfers", dataset.Query{})
	if !errors.Is(err, storage.ErrReadFailed) {
		t.Errorf("Read() error = %v, want ErrReadFailed", err)
	}
}
