package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tablo-db/tablo/internal/bloom"
	"github.com/tablo-db/tablo/internal/cache"
	"github.com/tablo-db/tablo/internal/errors"
	"github.com/tablo-db/tablo/internal/schema"
	"github.com/tablo-db/tablo/internal/table"
	"github.com/tablo-db/tablo/pkg/types"
)

// SnapshotInfo describes one written snapshot.
type SnapshotInfo struct {
	ID         string
	Name       string
	ObjectPath string
	BloomPath  string
	RowCount   int64
	SizeBytes  int64
	CreatedAt  time.Time
}

// Store persists tables as SQLite snapshot files in object storage.
// An optional caller-owned cache short-circuits repeated reads.
type Store struct {
	objects ObjectStorage
	workDir string
	cache   *cache.TableCache
}

// NewStore creates a snapshot store. The cache may be nil; when set,
// Read consults it before touching object storage and Write/Delete
// invalidate it.
func NewStore(objects ObjectStorage, workDir string, c *cache.TableCache) (*Store, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("store: failed to create work directory: %w", err)
	}
	return &Store{objects: objects, workDir: workDir, cache: c}, nil
}

func snapshotObject(name string) string { return "snapshots/" + name + ".sqlite" }
func bloomObject(name string) string    { return "snapshots/" + name + ".bloom" }

// Write persists a table under a name, replacing any previous
// snapshot with that name. Bloom sidecars are built for every string
// and integer column so later lookups can prune without downloading.
func (s *Store) Write(ctx context.Context, t *table.Table, name string) (*SnapshotInfo, error) {
	id := fmt.Sprintf("%s_%s", name, uuid.New().String()[:8])
	createdAt := time.Now()

	localPath := filepath.Join(s.workDir, id+".sqlite")
	defer os.Remove(localPath)
	if err := writeSnapshotFile(ctx, localPath, t, name, id, createdAt); err != nil {
		return nil, err
	}

	bloomPath := filepath.Join(s.workDir, id+".bloom")
	defer os.Remove(bloomPath)
	if err := writeBloomSidecar(bloomPath, t); err != nil {
		return nil, err
	}

	stat, err := os.Stat(localPath)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeUploadFailed, "failed to stat snapshot", err)
	}

	if err := s.objects.Upload(ctx, localPath, snapshotObject(name)); err != nil {
		return nil, errors.NewStorageError(errors.CodeUploadFailed, "failed to upload snapshot", err)
	}
	if err := s.objects.Upload(ctx, bloomPath, bloomObject(name)); err != nil {
		return nil, errors.NewStorageError(errors.CodeUploadFailed, "failed to upload bloom sidecar", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(name)
	}

	log.Printf("store: wrote snapshot %q (%d rows, %d bytes)", name, t.Len(), stat.Size())
	return &SnapshotInfo{
		ID:         id,
		Name:       name,
		ObjectPath: snapshotObject(name),
		BloomPath:  bloomObject(name),
		RowCount:   int64(t.Len()),
		SizeBytes:  stat.Size(),
		CreatedAt:  createdAt,
	}, nil
}

// Read loads a snapshot back into an in-memory table. Cache hits skip
// object storage entirely.
func (s *Store) Read(ctx context.Context, name string) (*table.Table, error) {
	if s.cache != nil {
		if t, ok := s.cache.Get(name); ok {
			return t, nil
		}
	}

	localPath := filepath.Join(s.workDir, fmt.Sprintf("read_%s.sqlite", uuid.New().String()[:8]))
	defer os.Remove(localPath)
	if err := s.objects.Download(ctx, snapshotObject(name), localPath); err != nil {
		if err == ErrObjectNotFound {
			return nil, errors.NewStorageError(errors.CodeSnapshotNotFound,
				fmt.Sprintf("snapshot %q not found", name), err)
		}
		return nil, errors.NewStorageError(errors.CodeDownloadFailed, "failed to download snapshot", err)
	}

	t, err := readSnapshotFile(ctx, localPath)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(name, t)
	}
	return t, nil
}

// List returns the names of all stored snapshots.
func (s *Store) List(ctx context.Context) ([]string, error) {
	objects, err := s.objects.ListObjects(ctx, "snapshots/")
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeDownloadFailed, "failed to list snapshots", err)
	}
	var names []string
	for _, obj := range objects {
		if strings.HasSuffix(obj, ".sqlite") {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(obj, "snapshots/"), ".sqlite"))
		}
	}
	return names, nil
}

// Delete removes a snapshot and its bloom sidecar.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.objects.Delete(ctx, snapshotObject(name)); err != nil {
		return errors.NewStorageError(errors.CodeDeleteFailed, "failed to delete snapshot", err)
	}
	_ = s.objects.Delete(ctx, bloomObject(name))
	if s.cache != nil {
		s.cache.Invalidate(name)
	}
	return nil
}

// Prune returns the snapshot names that may contain the given column
// value, judged by each snapshot's bloom sidecar. Snapshots without a
// sketch for the column stay in the candidate set: absence of a
// sidecar must never cause a false negative.
func (s *Store) Prune(ctx context.Context, column string, v types.Value) ([]string, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []string
	for _, name := range names {
		sketch, err := s.readSidecar(ctx, name, column)
		if err != nil {
			return nil, err
		}
		if sketch == nil || sketch.MightContain(v) {
			candidates = append(candidates, name)
		}
	}
	return candidates, nil
}

func (s *Store) readSidecar(ctx context.Context, name, column string) (*bloom.Sketch, error) {
	localPath := filepath.Join(s.workDir, fmt.Sprintf("bloom_%s.json", uuid.New().String()[:8]))
	defer os.Remove(localPath)
	if err := s.objects.Download(ctx, bloomObject(name), localPath); err != nil {
		if err == ErrObjectNotFound {
			return nil, nil
		}
		return nil, errors.NewStorageError(errors.CodeDownloadFailed, "failed to download bloom sidecar", err)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeDownloadFailed, "failed to read bloom sidecar", err)
	}
	var sidecar bloomSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "corrupt bloom sidecar", err)
	}
	encoded, ok := sidecar.Columns[column]
	if !ok {
		return nil, nil
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "corrupt bloom sidecar", err)
	}
	sketch, err := bloom.Unmarshal(blob)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "corrupt bloom sketch", err)
	}
	return sketch, nil
}

type bloomSidecar struct {
	Columns map[string]string `json:"columns"`
}

func writeBloomSidecar(path string, t *table.Table) error {
	sidecar := bloomSidecar{Columns: make(map[string]string)}
	for _, name := range t.Columns() {
		col, _ := t.Schema().Column(name)
		if col.Type != types.TypeString && col.Type != types.TypeInteger {
			continue
		}
		values, err := t.Values(name)
		if err != nil {
			return err
		}
		sketch := bloom.NewForColumn(len(values), 0.01)
		for _, v := range values {
			sketch.Add(v)
		}
		blob, err := sketch.Marshal()
		if err != nil {
			return err
		}
		sidecar.Columns[name] = base64.StdEncoding.EncodeToString(blob)
	}
	data, err := json.Marshal(sidecar)
	if err != nil {
		return errors.NewInternalError("failed to encode bloom sidecar", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "failed to write bloom sidecar", err)
	}
	return nil
}

// sqliteType maps a column type to its SQLite storage class.
func sqliteType(t types.ColumnType) string {
	switch t {
	case types.TypeInteger, types.TypeBoolean:
		return "INTEGER"
	case types.TypeDouble:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// rowColumn maps a user column name onto its tablo_rows identifier.
// The c_ prefix keeps user columns out of the namespace of the
// synthetic pos/key_int/key_txt columns.
func rowColumn(name string) string {
	return quoteIdent("c_" + name)
}

func writeSnapshotFile(ctx context.Context, path string, t *table.Table, name, id string, createdAt time.Time) error {
	os.Remove(path)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "failed to create snapshot database", err)
	}
	defer db.Close()

	ddl := []string{
		`CREATE TABLE tablo_meta (k TEXT PRIMARY KEY, v TEXT)`,
		`CREATE TABLE tablo_columns (
			pos INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			not_null INTEGER NOT NULL,
			dflt TEXT
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.NewStorageError(errors.CodeUploadFailed, "failed to create snapshot tables", err)
		}
	}

	columns := t.Columns()
	var defs []string
	defs = append(defs, "pos INTEGER PRIMARY KEY", "key_int INTEGER", "key_txt TEXT")
	for _, colName := range columns {
		col, _ := t.Schema().Column(colName)
		defs = append(defs, fmt.Sprintf("%s %s", rowColumn(colName), sqliteType(col.Type)))
	}
	rowDDL := fmt.Sprintf("CREATE TABLE tablo_rows (%s)", strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, rowDDL); err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "failed to create row table", err)
	}

	keyKind := ""
	if kind, ok := t.KeyKind(); ok {
		keyKind = "int"
		if kind == types.KeyString {
			keyKind = "string"
		}
	}
	keys := t.Keys()
	meta := map[string]string{
		"name":        name,
		"snapshot_id": id,
		"key_column":  t.KeyColumn(),
		"key_kind":    keyKind,
		"row_count":   strconv.Itoa(t.Len()),
		"created_at":  createdAt.UTC().Format(time.RFC3339Nano),
	}
	metaStmt, err := db.PrepareContext(ctx, `INSERT INTO tablo_meta (k, v) VALUES (?, ?)`)
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "failed to prepare meta insert", err)
	}
	defer metaStmt.Close()
	for k, v := range meta {
		if _, err := metaStmt.ExecContext(ctx, k, v); err != nil {
			return errors.NewStorageError(errors.CodeUploadFailed, "failed to write meta", err)
		}
	}

	colStmt, err := db.PrepareContext(ctx,
		`INSERT INTO tablo_columns (pos, name, type, not_null, dflt) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "failed to prepare column insert", err)
	}
	defer colStmt.Close()
	for i, colName := range columns {
		col, _ := t.Schema().Column(colName)
		var dflt interface{}
		if col.Default != nil {
			dflt = encodeDefault(*col.Default)
		}
		notNull := 0
		if col.NotNull {
			notNull = 1
		}
		if _, err := colStmt.ExecContext(ctx, i, colName, string(col.Type), notNull, dflt); err != nil {
			return errors.NewStorageError(errors.CodeUploadFailed, "failed to write column metadata", err)
		}
	}

	placeholders := make([]string, 0, len(columns)+3)
	names := []string{"pos", "key_int", "key_txt"}
	for _, colName := range columns {
		names = append(names, rowColumn(colName))
	}
	for range names {
		placeholders = append(placeholders, "?")
	}
	rowStmt, err := db.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO tablo_rows (%s) VALUES (%s)",
		strings.Join(names, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "failed to prepare row insert", err)
	}
	defer rowStmt.Close()

	for i, key := range keys {
		row, _ := t.Row(key)
		args := make([]interface{}, 0, len(columns)+3)
		args = append(args, i)
		if key.Kind() == types.KeyInt {
			args = append(args, key.Int64(), nil)
		} else {
			args = append(args, nil, key.Text())
		}
		for _, colName := range columns {
			args = append(args, valueToArg(row[colName]))
		}
		if _, err := rowStmt.ExecContext(ctx, args...); err != nil {
			return errors.NewStorageError(errors.CodeUploadFailed, "failed to write row", err)
		}
	}
	return nil
}

// valueToArg converts a cell value to a driver argument.
func valueToArg(v types.Value) interface{} {
	switch v.Kind() {
	case types.KindInt:
		return v.Int64()
	case types.KindFloat:
		return v.Float64()
	case types.KindBool:
		if v.Bool() {
			return int64(1)
		}
		return int64(0)
	case types.KindString:
		return v.Text()
	}
	return nil
}

// encodeDefault renders a default value for the column metadata table.
// The column's declared type disambiguates it on read.
func encodeDefault(v types.Value) string {
	switch v.Kind() {
	case types.KindInt:
		return strconv.FormatInt(v.Int64(), 10)
	case types.KindFloat:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case types.KindBool:
		return strconv.FormatBool(v.Bool())
	default:
		return v.Text()
	}
}

func decodeDefault(raw string, t types.ColumnType) (types.Value, error) {
	switch t {
	case types.TypeInteger:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return types.Null(), err
		}
		return types.Int(i), nil
	case types.TypeDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Null(), err
		}
		return types.Float(f), nil
	case types.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return types.Null(), err
		}
		return types.Bool(b), nil
	default:
		return types.Str(raw), nil
	}
}

func readSnapshotFile(ctx context.Context, path string) (*table.Table, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to open snapshot", err)
	}
	defer db.Close()

	meta := make(map[string]string)
	metaRows, err := db.QueryContext(ctx, `SELECT k, v FROM tablo_meta`)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to read snapshot meta", err)
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var k, v string
		if err := metaRows.Scan(&k, &v); err != nil {
			return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to scan snapshot meta", err)
		}
		meta[k] = v
	}
	if err := metaRows.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to read snapshot meta", err)
	}

	s := schema.New()
	var columns []string
	var colTypes []types.ColumnType
	colRows, err := db.QueryContext(ctx,
		`SELECT name, type, not_null, dflt FROM tablo_columns ORDER BY pos`)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to read column metadata", err)
	}
	defer colRows.Close()
	for colRows.Next() {
		var name, typ string
		var notNull int
		var dflt sql.NullString
		if err := colRows.Scan(&name, &typ, &notNull, &dflt); err != nil {
			return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to scan column metadata", err)
		}
		colType := types.ColumnType(typ)
		rule := schema.ColumnRule{Type: colType}
		nn := notNull != 0
		rule.NotNull = &nn
		if dflt.Valid {
			d, err := decodeDefault(dflt.String, colType)
			if err != nil {
				return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "corrupt column default", err)
			}
			rule.Default = &d
		}
		if err := s.AddColumn(name, rule); err != nil {
			return nil, err
		}
		columns = append(columns, name)
		colTypes = append(colTypes, colType)
	}
	if err := colRows.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to read column metadata", err)
	}

	t := table.NewWithSchema(s)

	selectCols := []string{"key_int", "key_txt"}
	for _, name := range columns {
		selectCols = append(selectCols, rowColumn(name))
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM tablo_rows ORDER BY pos", strings.Join(selectCols, ", ")))
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to read rows", err)
	}
	defer rows.Close()

	for rows.Next() {
		var keyInt sql.NullInt64
		var keyTxt sql.NullString
		cells := make([]interface{}, len(columns))
		dest := []interface{}{&keyInt, &keyTxt}
		for i := range cells {
			dest = append(dest, &cells[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to scan row", err)
		}

		var key types.Key
		if keyInt.Valid {
			key = types.IntKey(keyInt.Int64)
		} else {
			key = types.StringKey(keyTxt.String)
		}

		row := make(types.Row, len(columns))
		for i, name := range columns {
			v, err := cellToValue(cells[i], colTypes[i])
			if err != nil {
				return nil, errors.NewStorageError(errors.CodeCorruptSnapshot,
					fmt.Sprintf("corrupt cell in column %q", name), err)
			}
			row[name] = v
		}
		if err := t.AddRow(key, row, false); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "failed to read rows", err)
	}

	switch meta["key_kind"] {
	case "int":
		if err := t.SetKeyKind(types.KeyInt); err != nil {
			return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "key kind does not match stored keys", err)
		}
	case "string":
		if err := t.SetKeyKind(types.KeyString); err != nil {
			return nil, errors.NewStorageError(errors.CodeCorruptSnapshot, "key kind does not match stored keys", err)
		}
	case "":
		// no established kind, the first row decides
	default:
		return nil, errors.NewStorageError(errors.CodeCorruptSnapshot,
			fmt.Sprintf("unknown key kind %q", meta["key_kind"]), nil)
	}

	if keyColumn := meta["key_column"]; keyColumn != "" {
		if err := t.SetKeyColumn(keyColumn); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// cellToValue converts a scanned SQLite cell back into a typed value,
// guided by the declared column type.
func cellToValue(cell interface{}, t types.ColumnType) (types.Value, error) {
	if cell == nil {
		return types.Null(), nil
	}
	switch t {
	case types.TypeInteger:
		i, ok := cell.(int64)
		if !ok {
			return types.Null(), fmt.Errorf("expected integer, got %T", cell)
		}
		return types.Int(i), nil
	case types.TypeDouble:
		switch x := cell.(type) {
		case float64:
			return types.Float(x), nil
		case int64:
			return types.Float(float64(x)), nil
		}
		return types.Null(), fmt.Errorf("expected real, got %T", cell)
	case types.TypeBoolean:
		i, ok := cell.(int64)
		if !ok {
			return types.Null(), fmt.Errorf("expected integer-coded boolean, got %T", cell)
		}
		return types.Bool(i != 0), nil
	default:
		switch x := cell.(type) {
		case string:
			return types.Str(x), nil
		case []byte:
			return types.Str(string(x)), nil
		}
		return types.Null(), fmt.Errorf("expected text, got %T", cell)
	}
}
