// pkg/cleaner/cleaner.go
package cleaner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/converter"
	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// Options selects which columns get special handling during preprocessing
type Options struct {
	// Identifier columns are dropped; the first one found becomes the row identifier
	IdentifierColumns []string
	// Columns always coerced to numbers, whatever share of cells parse
	NumericColumns []string
	// Columns whose missing values become 0 before anything else
	ZeroFillColumns []string
}

// DefaultOptions returns the telco dataset handling
func DefaultOptions() Options {
	return Options{
		IdentifierColumns: []string{"customerID", "CustomerID", "customer_id"},
		NumericColumns:    []string{"TotalCharges"},
		ZeroFillColumns:   []string{"SeniorCitizen"},
	}
}

// DataCleaner prepares a raw record set for the feature encoder
type DataCleaner struct {
	db        *sql.DB
	logger    *zap.Logger
	converter *converter.TypeConverter
	options   Options
}

// NewDataCleaner creates a new DataCleaner instance. db is optional: when set,
// the tracking table is created and every cleaning operation is recorded in it.
func NewDataCleaner(db *sql.DB, logger *zap.Logger, options Options) (*DataCleaner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	cleaner := &DataCleaner{
		db:        db,
		logger:    logger.Named("cleaner"),
		converter: converter.NewTypeConverter(logger),
		options:   options,
	}

	if db != nil {
		if err := cleaner.setupCleaningTable(); err != nil {
			return nil, fmt.Errorf("failed to setup cleaning table: %w", err)
		}
	}

	return cleaner, nil
}

// setupCleaningTable ensures the cleaned_on_ingress tracking table exists
func (c *DataCleaner) setupCleaningTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS public.cleaned_on_ingress (
			id SERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			column_name TEXT NOT NULL,
			original_value TEXT,
			new_value TEXT NOT NULL,
			row_identifier TEXT NOT NULL,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL,
			cleaned_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := c.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}

	c.logger.Info("Ensured cleaned_on_ingress table exists")
	return nil
}

// Preprocess cleans a dataset for encoding: trims column names, drops
// identifier columns, maps the target to 0/1, types every text column and
// fills missing numbers with 0. The input is left untouched.
func (c *DataCleaner) Preprocess(ctx context.Context, ds *model.Dataset, target string) (*model.Dataset, []model.CleaningOperation, error) {
	if ds == nil {
		return nil, nil, errors.New("dataset cannot be nil")
	}
	out := ds.Clone()
	now := time.Now()

	for _, name := range out.ColumnNames() {
		out.RenameColumn(name, strings.TrimSpace(name))
	}
	if !out.HasColumn(target) {
		return nil, nil, fmt.Errorf("%w: %q", features.ErrTargetMissing, target)
	}

	rowIDs, operations := c.dropIdentifiers(out)

	rowIDs, ops, err := c.cleanTarget(out, target, rowIDs)
	if err != nil {
		return nil, nil, err
	}
	operations = append(operations, ops...)

	for i := range out.Columns {
		col := &out.Columns[i]
		if col.Name == target {
			continue
		}
		operations = append(operations, c.typeColumn(out, col, rowIDs)...)
	}

	for i := range out.Columns {
		col := &out.Columns[i]
		if col.Name == target || !col.Kind.IsNumeric() {
			continue
		}
		reason := "missing_numeric"
		if c.isZeroFillColumn(col.Name) {
			reason = "missing_" + toSnakeCase(col.Name)
		}
		for r, row := range out.Rows {
			if op := fillZero(row, col, rowIDs[r], out.Source, reason); op != nil {
				operations = append(operations, *op)
			}
		}
	}

	for i := range operations {
		operations[i].CleanedAt = now
	}

	c.logger.Info("Preprocessed dataset",
		zap.String("source", out.Source),
		zap.Int("rows", out.Len()),
		zap.Int("columns", len(out.Columns)),
		zap.Int("operations", len(operations)),
		zap.Any("summary", model.CleaningSummary(operations)))

	if c.db != nil && len(operations) > 0 {
		if err := c.RecordCleaningOperations(ctx, operations); err != nil {
			return out, operations, fmt.Errorf("failed to record cleaning operations: %w", err)
		}
	}

	return out, operations, nil
}

// dropIdentifiers removes identifier columns and returns one identifier per
// row, generating a UUID where the row has none.
func (c *DataCleaner) dropIdentifiers(ds *model.Dataset) ([]string, []model.CleaningOperation) {
	var idColumn string
	for _, name := range c.options.IdentifierColumns {
		if ds.HasColumn(name) {
			idColumn = name
			break
		}
	}

	rowIDs := make([]string, ds.Len())
	var operations []model.CleaningOperation
	for i, row := range ds.Rows {
		value, exists := row[idColumn]
		id, op := ensureRowID(value, exists && idColumn != "", idColumn, ds.Source)
		rowIDs[i] = id
		if op != nil {
			operations = append(operations, *op)
		}
	}

	for _, name := range c.options.IdentifierColumns {
		if ds.DropColumn(name) {
			c.logger.Debug("Dropped identifier column", zap.String("column", name))
		}
	}
	return rowIDs, operations
}

// cleanTarget maps a Yes/No target to 1/0. Rows whose label cannot be read
// are removed, together with their identifiers.
func (c *DataCleaner) cleanTarget(ds *model.Dataset, target string, rowIDs []string) ([]string, []model.CleaningOperation, error) {
	col := ds.GetColumnByName(target)
	if col.Kind != model.KindText {
		return rowIDs, nil, nil
	}

	var operations []model.CleaningOperation
	keptRows := ds.Rows[:0]
	keptIDs := rowIDs[:0]
	for i, row := range ds.Rows {
		v := row[target]
		label, ok := targetLabel(v)
		if !ok {
			operations = append(operations, model.CleaningOperation{
				Source:            ds.Source,
				ColumnName:        target,
				OriginalValue:     toNullableString(v),
				NewValue:          "",
				RowIdentifier:     rowIDs[i],
				CleaningOperation: "row_removed",
				CleaningReason:    "invalid_target",
			})
			continue
		}
		row[target] = model.Int(label)
		keptRows = append(keptRows, row)
		keptIDs = append(keptIDs, rowIDs[i])
	}
	ds.Rows = keptRows
	col.Kind = model.KindInt

	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("no rows left after cleaning target %q", target)
	}
	if len(operations) > 0 {
		c.logger.Warn("Removed rows without a usable target",
			zap.String("target", target),
			zap.Int("removed", len(operations)))
	}
	return keptIDs, operations, nil
}

// typeColumn infers the kind of a raw text column and converts its cells.
// Numeric cells that do not parse become missing.
func (c *DataCleaner) typeColumn(ds *model.Dataset, col *model.Column, rowIDs []string) []model.CleaningOperation {
	if col.Kind != model.KindText {
		return nil
	}

	raw := make([]string, ds.Len())
	for i, row := range ds.Rows {
		if v, ok := row[col.Name]; ok && !v.Missing {
			raw[i] = v.Str
		}
	}

	kind := c.converter.InferKind(raw)
	if c.isNumericColumn(col.Name) {
		kind = model.KindFloat
	}
	col.Kind = kind

	var operations []model.CleaningOperation
	for i, row := range ds.Rows {
		v, ok := row[col.Name]
		if !ok || v.Missing {
			row[col.Name] = model.Missing(kind)
			col.Nullable = true
			continue
		}
		parsed := c.converter.ParseValue(v.Str, kind)
		row[col.Name] = parsed
		if parsed.Missing {
			col.Nullable = true
			if kind.IsNumeric() && !c.converter.IsNullString(v.Str) {
				operations = append(operations, model.CleaningOperation{
					Source:            ds.Source,
					ColumnName:        col.Name,
					OriginalValue:     v.Str,
					NewValue:          "",
					RowIdentifier:     rowIDs[i],
					CleaningOperation: "numeric_coercion",
					CleaningReason:    "invalid_" + kind.String(),
				})
			}
		}
	}

	if kind != model.KindText {
		c.logger.Debug("Typed column",
			zap.String("column", col.Name),
			zap.String("kind", kind.String()))
	}
	return operations
}

func (c *DataCleaner) isNumericColumn(name string) bool {
	return containsFold(c.options.NumericColumns, name)
}

func (c *DataCleaner) isZeroFillColumn(name string) bool {
	return containsFold(c.options.ZeroFillColumns, name)
}

// RecordCleaningOperations batch inserts cleaning operations into tracking table
func (c *DataCleaner) RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}
	if c.db == nil {
		return errors.New("no database configured for cleaning records")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Begin transaction
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	// Prepare statement
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO public.cleaned_on_ingress
		(source, column_name, original_value, new_value,
		 row_identifier, cleaning_operation, cleaning_reason, cleaned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	// Execute batch insert
	for _, op := range operations {
		_, err = stmt.ExecContext(ctx,
			op.Source,
			op.ColumnName,
			toNullableString(op.OriginalValue),
			op.NewValue,
			op.RowIdentifier,
			op.CleaningOperation,
			op.CleaningReason,
			op.CleanedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	// Commit transaction
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Info("Recorded cleaning operations", zap.Int("count", len(operations)))
	return nil
}
