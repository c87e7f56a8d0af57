package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"brewline/internal/domain"
)

const brewColumns = `id,recipe_id,recipe_name,session_id,brew_date,status,fermentation_start,conditioning_start,packaging_date,
batch_size,original_gravity,final_gravity,measured_abv,fermentation_temp,
target_fermentation_days,target_conditioning_days,fermentation_days,conditioning_days,
notes,quick_notes,measurements,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBrew(row rowScanner) (domain.BrewRecord, error) {
	var (
		b                                          domain.BrewRecord
		recipeID, sessionID, notes                 sql.NullString
		brewDate, createdAt, updatedAt             sql.NullString
		fermStart, condStart, packaging            sql.NullString
		batch, og, fg, abv, temp                   sql.NullFloat64
		targetFerm, targetCond, fermDays, condDays sql.NullInt64
		quickNotes, measurements                   sql.NullString
		status                                     string
	)
	err := row.Scan(&b.ID, &recipeID, &b.RecipeName, &sessionID, &brewDate, &status, &fermStart, &condStart, &packaging,
		&batch, &og, &fg, &abv, &temp,
		&targetFerm, &targetCond, &fermDays, &condDays,
		&notes, &quickNotes, &measurements, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.Status = domain.BrewStatus(status)
	if recipeID.Valid {
		b.RecipeID = &recipeID.String
	}
	if sessionID.Valid {
		b.SessionID = &sessionID.String
	}
	b.Notes = notes.String
	if brewDate.Valid {
		if b.BrewDate, err = parseTime(brewDate.String); err != nil {
			return b, fmt.Errorf("brew %s brew_date: %w", b.ID, err)
		}
	}
	if b.FermentationStart, err = parseNullTime(fermStart); err != nil {
		return b, fmt.Errorf("brew %s fermentation_start: %w", b.ID, err)
	}
	if b.ConditioningStart, err = parseNullTime(condStart); err != nil {
		return b, fmt.Errorf("brew %s conditioning_start: %w", b.ID, err)
	}
	if b.PackagingDate, err = parseNullTime(packaging); err != nil {
		return b, fmt.Errorf("brew %s packaging_date: %w", b.ID, err)
	}
	b.BatchSize = floatPtr(batch)
	b.OriginalGravity = floatPtr(og)
	b.FinalGravity = floatPtr(fg)
	b.MeasuredABV = floatPtr(abv)
	b.FermentationTemp = floatPtr(temp)
	b.TargetFermentationDays = domain.DefaultTargetFermentationDays
	if targetFerm.Valid {
		b.TargetFermentationDays = int(targetFerm.Int64)
	}
	b.TargetConditioningDays = domain.DefaultTargetConditioningDays
	if targetCond.Valid {
		b.TargetConditioningDays = int(targetCond.Int64)
	}
	b.ActualFermentationDays = intPtr(fermDays)
	b.ActualConditioningDays = intPtr(condDays)
	// malformed JSON columns degrade to empty lists rather than failing the read
	b.QuickNotes = []domain.QuickNote{}
	if quickNotes.Valid && quickNotes.String != "" {
		_ = json.Unmarshal([]byte(quickNotes.String), &b.QuickNotes)
	}
	b.Measurements = []domain.Measurement{}
	if measurements.Valid && measurements.String != "" {
		_ = json.Unmarshal([]byte(measurements.String), &b.Measurements)
	}
	if b.QuickNotes == nil {
		b.QuickNotes = []domain.QuickNote{}
	}
	if b.Measurements == nil {
		b.Measurements = []domain.Measurement{}
	}
	if createdAt.Valid {
		b.CreatedAt, _ = parseTime(createdAt.String)
	}
	if updatedAt.Valid {
		b.UpdatedAt, _ = parseTime(updatedAt.String)
	}
	return b, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func encodeJSONColumn(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func brewArgs(b domain.BrewRecord) ([]any, error) {
	quickNotes := b.QuickNotes
	if quickNotes == nil {
		quickNotes = []domain.QuickNote{}
	}
	measurements := b.Measurements
	if measurements == nil {
		measurements = []domain.Measurement{}
	}
	qn, err := encodeJSONColumn(quickNotes)
	if err != nil {
		return nil, fmt.Errorf("encode quick_notes: %w", err)
	}
	ms, err := encodeJSONColumn(measurements)
	if err != nil {
		return nil, fmt.Errorf("encode measurements: %w", err)
	}
	return []any{
		nullableStringPtr(b.RecipeID), b.RecipeName, nullableStringPtr(b.SessionID), formatTime(b.BrewDate), string(b.Status),
		formatTimePtr(b.FermentationStart), formatTimePtr(b.ConditioningStart), formatTimePtr(b.PackagingDate),
		nullableFloat(b.BatchSize), nullableFloat(b.OriginalGravity), nullableFloat(b.FinalGravity),
		nullableFloat(b.MeasuredABV), nullableFloat(b.FermentationTemp),
		b.TargetFermentationDays, b.TargetConditioningDays,
		nullableInt(b.ActualFermentationDays), nullableInt(b.ActualConditioningDays),
		nullable(b.Notes), qn, ms, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	}, nil
}

func (r Repo) InsertBrew(ctx context.Context, b domain.BrewRecord) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.InsertBrewTx(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) InsertBrewTx(ctx context.Context, tx *sql.Tx, b domain.BrewRecord) error {
	args, err := brewArgs(b)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO brews(`+brewColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		append([]any{b.ID}, args...)...)
	if err != nil {
		return fmt.Errorf("insert brew: %w", err)
	}
	return nil
}

// UpdateBrewTx rewrites every column of an existing brew row.
func (r Repo) UpdateBrewTx(ctx context.Context, tx *sql.Tx, b domain.BrewRecord) error {
	args, err := brewArgs(b)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE brews SET recipe_id=?,recipe_name=?,session_id=?,brew_date=?,status=?,
fermentation_start=?,conditioning_start=?,packaging_date=?,
batch_size=?,original_gravity=?,final_gravity=?,measured_abv=?,fermentation_temp=?,
target_fermentation_days=?,target_conditioning_days=?,fermentation_days=?,conditioning_days=?,
notes=?,quick_notes=?,measurements=?,created_at=?,updated_at=? WHERE id=?`, append(args, b.ID)...)
	if err != nil {
		return fmt.Errorf("update brew: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetBrew(ctx context.Context, id string) (domain.BrewRecord, error) {
	return scanBrew(r.DB.QueryRowContext(ctx, `SELECT `+brewColumns+` FROM brews WHERE id=?`, id))
}

func (r Repo) GetBrewTx(ctx context.Context, tx *sql.Tx, id string) (domain.BrewRecord, error) {
	return scanBrew(tx.QueryRowContext(ctx, `SELECT `+brewColumns+` FROM brews WHERE id=?`, id))
}

// ListBrews returns every brew record, newest brew date first.
func (r Repo) ListBrews(ctx context.Context) ([]domain.BrewRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+brewColumns+` FROM brews ORDER BY brew_date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BrewRecord
	for rows.Next() {
		b, err := scanBrew(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) DeleteBrewTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM brews WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
