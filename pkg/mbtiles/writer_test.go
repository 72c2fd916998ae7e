package mbtiles

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

func TestWriteAndReadBack(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.mbtiles")

	w, err := Create(p, "test map", "png")

	if err != nil {
		t.Fatal(err)
	}

	data := []byte("tile data")
	tile := model.Tile{X: 3, Y: 1, Z: 3}

	if err := w.PutTile(tile, data); err != nil {
		t.Fatal(err)
	}

	if err := w.PutTile(model.Tile{X: 0, Y: 0, Z: 5}, []byte("more")); err != nil {
		t.Fatal(err)
	}

	if w.Count() != 2 {
		t.Errorf("count %d, want 2", w.Count())
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", p)

	if err != nil {
		t.Fatal(err)
	}

	defer db.Close()

	// rows are stored TMS-flipped
	var got []byte
	if err := db.QueryRow("SELECT tile_data FROM tiles WHERE zoom_level=3 AND tile_column=3 AND tile_row=6").Scan(&got); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}

	meta := make(map[string]string)

	rows, err := db.Query("SELECT name, value FROM metadata")

	if err != nil {
		t.Fatal(err)
	}

	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			t.Fatal(err)
		}
		meta[k] = v
	}

	if meta["minzoom"] != "3" || meta["maxzoom"] != "5" || meta["format"] != "png" || meta["scheme"] != "tms" {
		t.Errorf("bad metadata: %v", meta)
	}
}

func TestPutTileOverwrites(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.mbtiles")

	w, err := Create(p, "test", "png")

	if err != nil {
		t.Fatal(err)
	}

	tile := model.Tile{X: 1, Y: 1, Z: 2}

	if err := w.PutTile(tile, []byte("one")); err != nil {
		t.Fatal(err)
	}

	if err := w.PutTile(tile, []byte("two")); err != nil {
		t.Fatal(err)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", p)

	if err != nil {
		t.Fatal(err)
	}

	defer db.Close()

	var got []byte
	if err := db.QueryRow("SELECT tile_data FROM tiles WHERE zoom_level=2 AND tile_column=1 AND tile_row=2").Scan(&got); err != nil {
		t.Fatal(err)
	}

	if string(got) != "two" {
		t.Errorf("got %q, want %q", got, "two")
	}
}
