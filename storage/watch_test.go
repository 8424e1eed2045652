package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/datashelf/storage"
)

func TestWatch_ReportsDatasetChanges(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "cur_transfers.csv", transfersCSV)
	writeTestFile(t, root, "lookups/competitions.csv", "competition_id\nGB1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 16)
	require.NoError(t, storage.Watch(ctx, root, func(id string) {
		select {
		case changed <- id:
		default:
		}
	}))

	writeTestFile(t, root, "notes.txt", "ignored")
	writeTestFile(t, root, "lookups/competitions.csv", "competition_id\nES1\n")

	select {
	case id := <-changed:
		assert.Equal(t, "lookups/competitions", id)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	require.NoError(t, os.Remove(filepath.Join(root, "cur_transfers.csv")))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case id := <-changed:
			if id == "cur_transfers" {
				return
			}
			assert.Equal(t, "lookups/competitions", id)
		case <-deadline:
			t.Fatal("removal not reported")
		}
	}
}

func TestWatch_MissingRoot(t *testing.T) {
	err := storage.Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), func(string) {})
	assert.Error(t, err)
}
