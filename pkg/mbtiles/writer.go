// Package mbtiles writes fetched tiles into an MBTiles archive.
package mbtiles

import (
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

type Writer struct {
	db      *sql.DB
	name    string
	format  string
	minZoom int
	maxZoom int
	count   int
}

// Create makes a fresh archive at path, replacing any existing file.
func Create(path, name, format string) (*Writer, error) {
	_ = os.Remove(path)

	db, err := sql.Open("sqlite", path)

	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Writer{db: db, name: name, format: format, minZoom: -1, maxZoom: -1}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec("CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER NOT NULL,tile_column INTEGER NOT NULL,tile_row INTEGER NOT NULL,tile_data BLOB NOT NULL,UNIQUE (zoom_level, tile_column, tile_row));")

	if err != nil {
		return err
	}

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);")

	return err
}

// PutTile stores one tile. MBTiles uses TMS row order, so y is flipped.
func (w *Writer) PutTile(t model.Tile, data []byte) error {
	tms := t.FlipY()

	_, err := w.db.Exec("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) values (?,?,?,?)",
		tms.Z, tms.X, tms.Y, data)

	if err != nil {
		return err
	}

	if w.minZoom == -1 || t.Z < w.minZoom {
		w.minZoom = t.Z
	}

	if t.Z > w.maxZoom {
		w.maxZoom = t.Z
	}

	w.count++

	return nil
}

func (w *Writer) Count() int {
	return w.count
}

// Close writes the metadata table and closes the archive.
func (w *Writer) Close() error {
	meta := map[string]string{
		"version": "1.1",
		"format":  w.format,
		"minzoom": fmt.Sprintf("%d", max(w.minZoom, 0)),
		"maxzoom": fmt.Sprintf("%d", max(w.maxZoom, 0)),
		"name":    w.name,
		"scheme":  "tms",
	}

	for k, v := range meta {
		if _, err := w.db.Exec("INSERT INTO metadata (name, value) values (?,?)", k, v); err != nil {
			w.db.Close()
			return err
		}
	}

	return w.db.Close()
}
