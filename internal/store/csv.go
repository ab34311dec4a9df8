package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
)

const (
	dateHeader     = "Date"
	tmpPattern     = ".tmp-*"
	corruptSuffix  = ".corrupt-"
	utf8BOM        = "\ufeff"
	defaultDirPerm = 0755
)

// CSVStore keeps one CSV file per table under a root directory.
// Writes go to a temp file in the destination directory and are renamed into
// place, so a reader sees either the old or the new table.
type CSVStore struct {
	root   string
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCSVStore creates a store rooted at dir, creating it if needed.
func NewCSVStore(dir string, logger zerolog.Logger) (*CSVStore, error) {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, apperrors.NewStoreError("mkdir", dir, apperrors.Join(apperrors.ErrDataDir, err))
	}
	return &CSVStore{
		root:   dir,
		logger: logger.With().Str("component", "store").Logger(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the data root.
func (s *CSVStore) Root() string {
	return s.root
}

// Path resolves a table name to its file path.
func (s *CSVStore) Path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Exists reports whether a table file exists.
func (s *CSVStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Lock acquires the per-name write lock.
func (s *CSVStore) Lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Load reads a table. A missing file yields (nil, nil). A file that cannot be
// parsed is moved aside and also reported as absent.
func (s *CSVStore) Load(name string) (*models.Table, error) {
	p := s.Path(name)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewStoreError("read", p, err)
	}

	t, err := DecodeTable(data)
	if err != nil {
		s.quarantine(p, err)
		return nil, nil
	}
	return t, nil
}

// Save atomically replaces the stored table.
func (s *CSVStore) Save(name string, t *models.Table) error {
	if t == nil {
		t = models.NewTable(models.Schema{})
	}
	data, err := EncodeTable(t)
	if err != nil {
		return apperrors.NewStoreError("encode", name, err)
	}
	return s.WriteFile(name, data)
}

// WriteRows atomically writes a plain CSV file with the given header.
func (s *CSVStore) WriteRows(name string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return apperrors.NewStoreError("encode", name, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return apperrors.NewStoreError("encode", name, err)
	}
	return s.WriteFile(name, buf.Bytes())
}

// ReadRows reads a plain CSV file. A missing file yields no rows.
func (s *CSVStore) ReadRows(name string) ([]string, [][]string, error) {
	p := s.Path(name)
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, apperrors.NewStoreError("read", p, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, apperrors.NewStoreError("read", p, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// WriteFile replaces name with data through a temp file and rename.
func (s *CSVStore) WriteFile(name string, data []byte) error {
	target := s.Path(name)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return apperrors.NewStoreError("mkdir", dir, apperrors.Join(apperrors.ErrDataDir, err))
	}

	tmpFile, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return apperrors.NewStoreError("create temp", dir, err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return apperrors.NewStoreError("write temp", tmpPath, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return apperrors.NewStoreError("sync temp", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.NewStoreError("close temp", tmpPath, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return apperrors.NewStoreError("rename", target, err)
	}

	s.logger.Debug().Str("path", target).Int("bytes", len(data)).Msg("Table written")
	return nil
}

// List returns the table names stored under subdir, sorted.
func (s *CSVStore) List(subdir string) ([]string, error) {
	dir := s.Path(subdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewStoreError("list", dir, err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasSuffix(n, csvExt) || strings.HasPrefix(n, ".tmp-") {
			continue
		}
		names = append(names, filepath.ToSlash(filepath.Join(subdir, n)))
	}
	sort.Strings(names)
	return names, nil
}

func (s *CSVStore) quarantine(p string, cause error) {
	dest := fmt.Sprintf("%s%s%d", p, corruptSuffix, s.now().Unix())
	if err := os.Rename(p, dest); err != nil {
		s.logger.Warn().Err(err).Str("path", p).Msg("Corrupt table could not be moved aside")
		return
	}
	s.logger.Warn().
		Err(cause).
		Str("path", p).
		Str("moved_to", dest).
		Msg("Corrupt table quarantined")
}

// EncodeTable renders a table as CSV: a Date column followed by the schema
// columns. Absent values are written as empty cells.
func EncodeTable(t *models.Table) ([]byte, error) {
	cols := t.Schema.Columns()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(append([]string{dateHeader}, cols...)); err != nil {
		return nil, err
	}
	row := make([]string, len(cols)+1)
	for _, r := range t.Records {
		row[0] = r.Date.Format(models.DateLayout)
		for i, c := range cols {
			if t.Schema.IsText(c) {
				row[i+1] = r.Text[c]
				continue
			}
			v, ok := r.Values[c]
			row[i+1] = formatFloat(v, ok)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTable parses CSV produced by EncodeTable (or any CSV with a leading
// Date column). Columns holding non-numeric cells are read as text.
// Records come back deduplicated by date, keeping the last, and sorted.
func DecodeTable(data []byte) (*models.Table, error) {
	data = bytes.TrimPrefix(data, []byte(utf8BOM))
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", apperrors.ErrCorruptTable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptTable, err)
	}
	if len(header) == 0 || !strings.EqualFold(strings.TrimSpace(header[0]), dateHeader) {
		return nil, fmt.Errorf("%w: first column must be %s", apperrors.ErrCorruptTable, dateHeader)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptTable, err)
	}

	cols := header[1:]
	schema := inferSchema(cols, rows)
	t := models.NewTable(schema)
	for i, row := range rows {
		date, err := models.ParseDay(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: bad date %q", apperrors.ErrCorruptTable, i+2, row[0])
		}
		rec := models.NewRecord(date)
		for j, c := range cols {
			cell := strings.TrimSpace(row[j+1])
			if schema.IsText(c) {
				if cell != "" {
					rec.Text[c] = cell
				}
				continue
			}
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: bad value %q", apperrors.ErrCorruptTable, i+2, cell)
			}
			if !math.IsNaN(v) {
				rec.Values[c] = v
			}
		}
		t.Append(rec)
	}
	t.Normalize()
	return t, nil
}

func inferSchema(cols []string, rows [][]string) models.Schema {
	var schema models.Schema
	for j, c := range cols {
		if isKnownText(c) || !numericColumn(rows, j+1) {
			schema.Text = append(schema.Text, c)
		} else {
			schema.Numeric = append(schema.Numeric, c)
		}
	}
	return schema
}

func isKnownText(col string) bool {
	for _, c := range models.ValuationText {
		if c == col {
			return true
		}
	}
	return false
}

func numericColumn(rows [][]string, idx int) bool {
	for _, row := range rows {
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
	}
	return true
}

func formatFloat(v float64, present bool) string {
	if !present || math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
