// pkg/loader/loader.go
package loader

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/connector"
	"github.com/David-Botos/churn-pipeline/pkg/converter"
	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// ErrNoHeader is returned for CSV input without a header row
var ErrNoHeader = errors.New("csv input has no header row")

// Loader reads record sets from files and databases and writes encoded
// datasets back out
type Loader struct {
	logger    *zap.Logger
	converter *converter.TypeConverter
	batchSize int
}

// NewLoader creates a loader. batchSize is the page size for table reads.
func NewLoader(logger *zap.Logger, batchSize int) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		logger:    logger.Named("loader"),
		converter: converter.NewTypeConverter(logger),
		batchSize: batchSize,
	}
}

// LoadCSV reads a CSV file. Every cell is loaded as raw text; typing is left
// to preprocessing.
func (l *Loader) LoadCSV(path string) (*model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := ReadCSV(f, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	l.logger.Info("Loaded CSV",
		zap.String("path", path),
		zap.Int("rows", ds.Len()),
		zap.Int("columns", len(ds.Columns)))
	return ds, nil
}

// ReadCSV parses CSV data with a header row into a text dataset
func ReadCSV(r io.Reader, source string) (*model.Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = false
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, err
	}

	columns := make([]model.Column, len(header))
	names := make([]string, len(header))
	for i, name := range header {
		// Strip a UTF-8 byte order mark from the first header
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		names[i] = name
		columns[i] = model.Column{Name: name, Kind: model.KindText}
	}

	ds := model.NewDataset(source, columns)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(model.Record, len(names))
		for i, name := range names {
			row[name] = model.Text(record[i])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// LoadTable reads a whole table through a database connector, paging with
// the loader batch size. Column kinds come from the driver column types.
func (l *Loader) LoadTable(ctx context.Context, conn connector.DatabaseConnector, table string) (*model.Dataset, error) {
	exists, err := conn.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("table %s not found in %s", table, conn.Name())
	}

	qualified := conn.QualifiedTable(table)
	ds := model.NewDataset(qualified, nil)
	var kinds []model.Kind

	// ORDER BY 1 keeps pages disjoint
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1", qualified)
	err = conn.BatchQuery(ctx, query, l.batchSize, func(rows *sql.Rows) error {
		if kinds == nil {
			columns, err := l.describe(rows)
			if err != nil {
				return err
			}
			ds.Columns = columns
			kinds = make([]model.Kind, len(columns))
			for i, col := range columns {
				kinds[i] = col.Kind
			}
		}

		values := make([]interface{}, len(kinds))
		ptrs := make([]interface{}, len(kinds))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(model.Record, len(kinds))
		for i, col := range ds.Columns {
			v := l.converter.ConvertDriverValue(values[i], kinds[i])
			if v.Missing {
				ds.Columns[i].Nullable = true
			}
			row[col.Name] = v
		}
		ds.Rows = append(ds.Rows, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", qualified, err)
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("table %s is empty", qualified)
	}

	l.logger.Info("Loaded table",
		zap.String("source", conn.Name()),
		zap.String("table", qualified),
		zap.Int("rows", ds.Len()),
		zap.Int("columns", len(ds.Columns)))
	return ds, nil
}

// describe maps driver column types onto field kinds
func (l *Loader) describe(rows *sql.Rows) ([]model.Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	columns := make([]model.Column, len(types))
	for i, ct := range types {
		scale := int64(-1)
		if _, s, ok := ct.DecimalSize(); ok {
			scale = s
		}
		columns[i] = model.Column{
			Name: ct.Name(),
			Kind: l.converter.KindForDatabaseType(ct.DatabaseTypeName(), scale),
		}
	}
	return columns, nil
}

// WriteMatrixCSV writes an encoded dataset with the label as last column
func WriteMatrixCSV(path string, m *features.Matrix, target string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	header := append(append([]string(nil), m.Columns...), target)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}

	record := make([]string, len(header))
	for i, row := range m.X {
		for j, v := range row {
			record[j] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		record[len(row)] = ""
		if m.Labels != nil {
			record[len(row)] = strconv.FormatFloat(m.Labels[i], 'f', -1, 64)
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteMatrixTable replaces a Postgres table with an encoded dataset
func (l *Loader) WriteMatrixTable(ctx context.Context, pg *connector.PostgresConnector, table string, m *features.Matrix, target string) (int64, error) {
	columns := append(append([]string(nil), m.Columns...), target)
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("%s DOUBLE PRECISION", pq.QuoteIdentifier(col))
	}

	if err := pg.CreateTableIfNotExists(ctx, table, defs, true); err != nil {
		return 0, err
	}

	rows := make([][]interface{}, len(m.X))
	for i, x := range m.X {
		row := make([]interface{}, 0, len(columns))
		for _, v := range x {
			row = append(row, v)
		}
		if m.Labels != nil {
			row = append(row, m.Labels[i])
		} else {
			row = append(row, nil)
		}
		rows[i] = row
	}

	n, err := pg.BatchInsert(ctx, table, columns, rows, l.batchSize)
	if err != nil {
		return n, err
	}
	l.logger.Info("Wrote encoded dataset",
		zap.String("table", pg.QualifiedTable(table)),
		zap.Int64("rows", n))
	return n, nil
}
