// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package index

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vignette-dev/vignette/internal/embed"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// SaveArtifact persists a snapshot as a single SQLite file. The database is
// written to a temporary path and renamed into place, so a crash mid-write
// leaves any previous artifact untouched.
func SaveArtifact(snap *Snapshot, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "creating artifact directory %s", dir)
	}

	tmp := path + ".tmp"
	_ = os.Remove(tmp) // stale leftover from a crashed build

	if err := writeArtifact(snap, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "replacing artifact %s", path)
	}

	return nil
}

func writeArtifact(snap *Snapshot, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "opening artifact %s", path)
	}
	defer func() { _ = db.Close() }()

	const ddl = `
CREATE TABLE manifest (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE images (
	path      TEXT NOT NULL UNIQUE,
	category  TEXT NOT NULL,
	embedding BLOB NOT NULL
)`
	if _, err := db.Exec(ddl); err != nil {
		return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "creating artifact schema")
	}

	tx, err := db.Begin()
	if err != nil {
		return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "beginning artifact transaction")
	}
	defer func() { _ = tx.Rollback() }()

	m := snap.Manifest()
	manifest := map[string]string{
		"schema_version": strconv.Itoa(m.SchemaVersion),
		"file_count":     strconv.Itoa(m.FileCount),
		"built_at":       m.BuiltAt.Format(time.RFC3339),
		"extractor":      m.Extractor,
		"dimensions":     strconv.Itoa(m.Dimensions),
	}
	for key, value := range manifest {
		if _, err := tx.Exec(`INSERT INTO manifest(key, value) VALUES (?, ?)`, key, value); err != nil {
			return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "writing manifest key %s", key)
		}
	}

	// Insertion order is preserved via rowid; search tie-breaking depends on it.
	for _, rec := range snap.Records() {
		blob, err := sqlite_vec.SerializeFloat32(rec.Embedding)
		if err != nil {
			return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "serializing embedding for %s", rec.Path)
		}
		if _, err := tx.Exec(`INSERT INTO images(path, category, embedding) VALUES (?, ?, ?)`,
			rec.Path, rec.Category, blob); err != nil {
			return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "inserting record %s", rec.Path)
		}
	}

	if err := tx.Commit(); err != nil {
		return vgerr.Wrapf(err, vgerr.CodeIndexBuildPersistFailure, "committing artifact")
	}

	return nil
}

// LoadArtifact reads a persisted snapshot and validates it against the
// current extractor. Returns CodeIndexLoadNotFound when no artifact exists
// and CodeIndexLoadCorrupt for any deserialization or compatibility
// failure; both are rebuild triggers for the caller.
func LoadArtifact(path string, extractor embed.Extractor) (*Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, vgerr.Errorf(vgerr.CodeIndexLoadNotFound, "no index artifact at %s", path)
		}
		return nil, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "statting artifact %s", path)
	}

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "opening artifact %s", path)
	}
	defer func() { _ = db.Close() }()

	manifest, err := loadManifest(db)
	if err != nil {
		return nil, err
	}

	if manifest.SchemaVersion != SchemaVersion {
		return nil, vgerr.New(vgerr.CodeIndexLoadCorrupt, "artifact schema version mismatch",
			vgerr.Field("got", manifest.SchemaVersion),
			vgerr.Field("expected", SchemaVersion),
		)
	}
	if manifest.Extractor != extractor.ModelID() {
		return nil, vgerr.New(vgerr.CodeIndexLoadCorrupt, "artifact extractor mismatch",
			vgerr.FieldModel(manifest.Extractor),
			vgerr.Field("expected", extractor.ModelID()),
		)
	}
	if manifest.Dimensions != extractor.Dimensions() {
		return nil, vgerr.New(vgerr.CodeIndexLoadCorrupt, "artifact dimensionality mismatch",
			vgerr.Field("got", manifest.Dimensions),
			vgerr.Field("expected", extractor.Dimensions()),
		)
	}

	rows, err := db.Query(`SELECT path, category, embedding FROM images ORDER BY rowid`)
	if err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "reading artifact records")
	}
	defer func() { _ = rows.Close() }()

	var records []ImageRecord
	for rows.Next() {
		var rec ImageRecord
		var blob []byte
		if err := rows.Scan(&rec.Path, &rec.Category, &blob); err != nil {
			return nil, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "scanning artifact record")
		}

		rec.Embedding, err = decodeFloat32(blob)
		if err != nil {
			return nil, vgerr.Wrap(err, vgerr.CodeIndexLoadCorrupt, "decoding embedding", vgerr.FieldPath(rec.Path))
		}
		if len(rec.Embedding) != manifest.Dimensions {
			return nil, vgerr.New(vgerr.CodeIndexLoadCorrupt, "record dimensionality mismatch",
				vgerr.FieldPath(rec.Path),
				vgerr.Field("got", len(rec.Embedding)),
				vgerr.Field("expected", manifest.Dimensions),
			)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "iterating artifact records")
	}

	return NewSnapshot(records, manifest), nil
}

func loadManifest(db *sql.DB) (Manifest, error) {
	rows, err := db.Query(`SELECT key, value FROM manifest`)
	if err != nil {
		return Manifest{}, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "reading artifact manifest")
	}
	defer func() { _ = rows.Close() }()

	kv := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Manifest{}, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "scanning manifest row")
		}
		kv[key] = value
	}
	if err := rows.Err(); err != nil {
		return Manifest{}, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "iterating manifest rows")
	}

	var m Manifest
	if m.SchemaVersion, err = strconv.Atoi(kv["schema_version"]); err != nil {
		return Manifest{}, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "parsing manifest schema_version %q", kv["schema_version"])
	}
	if m.FileCount, err = strconv.Atoi(kv["file_count"]); err != nil {
		return Manifest{}, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "parsing manifest file_count %q", kv["file_count"])
	}
	if m.BuiltAt, err = time.Parse(time.RFC3339, kv["built_at"]); err != nil {
		return Manifest{}, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "parsing manifest built_at %q", kv["built_at"])
	}
	if m.Dimensions, err = strconv.Atoi(kv["dimensions"]); err != nil {
		return Manifest{}, vgerr.Wrapf(err, vgerr.CodeIndexLoadCorrupt, "parsing manifest dimensions %q", kv["dimensions"])
	}
	m.Extractor = kv["extractor"]

	return m, nil
}

// decodeFloat32 reverses sqlite_vec.SerializeFloat32: little-endian IEEE 754
// float32 values packed back to back.
func decodeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}

	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}
