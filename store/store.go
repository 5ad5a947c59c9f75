// Package store persists tensors and networks in a hierarchical
// group/attribute/dataset container backed by sqlite. Dense payloads
// are zstd-compressed row-major buffers.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableGroups   = "groups"
	tableAttrs    = "attrs"
	tableDatasets = "datasets"

	opTimeout = 3 * time.Second
)

var (
	zenc, _ = zstd.NewWriter(nil)
	zdec, _ = zstd.NewReader(nil)
)

// File is an open container.
type File struct {
	Path string

	db *sql.DB
}

// Create opens the container at path, dropping any previous contents.
func Create(path string) (*File, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &File{Path: path, db: db}, nil
}

// Open opens an existing container at path. It fails with
// ErrFileFormat when the schema is not the one Create writes.
func Open(path string) (*File, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	f := &File{Path: path, db: db}
	if err := f.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) Close() error {
	return errors.Wrap(f.db.Close(), "")
}

func (f *File) checkSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	for _, table := range []string{tableGroups, tableAttrs, tableDatasets} {
		var name string
		err := f.db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		switch {
		case err == sql.ErrNoRows:
			return errors.Wrapf(ErrFileFormat, "%s: no table %s", f.Path, table)
		case err != nil:
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// Group records the group at path. Creating a group twice is a no-op.
func (f *File) Group(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR IGNORE INTO %s (path) VALUES (?)`, tableGroups)
	if _, err := f.db.ExecContext(ctx, sqlStr, path); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// HasGroup reports whether a group exists at path.
func (f *File) HasGroup(path string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT path FROM %s WHERE path=?`, tableGroups)
	var p string
	err := f.db.QueryRowContext(ctx, sqlStr, path).Scan(&p)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, errors.Wrap(err, "")
	}
	return true, nil
}

// PutAttr sets a string attribute on a group.
func (f *File) PutAttr(group, name, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (grp, name, value) VALUES (?, ?, ?)`, tableAttrs)
	if _, err := f.db.ExecContext(ctx, sqlStr, group, name, value); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Attr reads a string attribute. A missing attribute is a format
// error.
func (f *File) Attr(group, name string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT value FROM %s WHERE grp=? AND name=?`, tableAttrs)
	var v string
	err := f.db.QueryRowContext(ctx, sqlStr, group, name).Scan(&v)
	switch {
	case err == sql.ErrNoRows:
		return "", errors.Wrapf(ErrFileFormat, "%s: no attr %s/%s", f.Path, group, name)
	case err != nil:
		return "", errors.Wrap(err, "")
	}
	return v, nil
}

// PutIntAttr sets an integer attribute on a group.
func (f *File) PutIntAttr(group, name string, v int) error {
	return f.PutAttr(group, name, strconv.Itoa(v))
}

// IntAttr reads an integer attribute.
func (f *File) IntAttr(group, name string) (int, error) {
	s, err := f.Attr(group, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(ErrFileFormat, "%s: attr %s/%s: %q", f.Path, group, name, s)
	}
	return v, nil
}

// PutDataset stores a dense float64 payload under a group. data is
// row-major against shape; complex payloads interleave (re, im) and
// double the innermost extent accordingly on the caller's side.
func (f *File) PutDataset(group, name string, shape []int, data []float64) error {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if len(data) != n {
		return errors.Wrapf(ErrFileFormat, "%d values for shape %v", len(data), shape)
	}

	raw := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	payload := zenc.EncodeAll(raw, nil)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (grp, name, shape, payload) VALUES (?, ?, ?, ?)`, tableDatasets)
	if _, err := f.db.ExecContext(ctx, sqlStr, group, name, shapeString(shape), payload); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Dataset reads a dense payload and its shape.
func (f *File) Dataset(group, name string) ([]int, []float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT shape, payload FROM %s WHERE grp=? AND name=?`, tableDatasets)
	var shapeStr string
	var payload []byte
	err := f.db.QueryRowContext(ctx, sqlStr, group, name).Scan(&shapeStr, &payload)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil, errors.Wrapf(ErrFileFormat, "%s: no dataset %s/%s", f.Path, group, name)
	case err != nil:
		return nil, nil, errors.Wrap(err, "")
	}

	shape, err := parseShape(shapeStr)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrFileFormat, "%s: dataset %s/%s shape %q", f.Path, group, name, shapeStr)
	}
	raw, err := zdec.DecodeAll(payload, nil)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrFileFormat, "%s: dataset %s/%s: %v", f.Path, group, name, err)
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	if len(raw) != 8*n {
		return nil, nil, errors.Wrapf(ErrFileFormat, "%s: dataset %s/%s has %d bytes for shape %v", f.Path, group, name, len(raw), shape)
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return shape, data, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableGroups),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableAttrs),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableDatasets),
		fmt.Sprintf(`CREATE TABLE %s (path TEXT PRIMARY KEY) STRICT`, tableGroups),
		fmt.Sprintf(`CREATE TABLE %s (grp TEXT, name TEXT, value TEXT, PRIMARY KEY (grp, name)) STRICT`, tableAttrs),
		fmt.Sprintf(`CREATE TABLE %s (grp TEXT, name TEXT, shape TEXT, payload BLOB, PRIMARY KEY (grp, name)) STRICT`, tableDatasets),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseShape(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil || d <= 0 {
			return nil, errors.Errorf("extent %q", p)
		}
		shape[i] = d
	}
	return shape, nil
}
