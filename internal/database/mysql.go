// Package database implements the storage interfaces over MySQL. All
// pipeline-facing surfaces (instrument store, observation store, run store)
// are served by one pooled client.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// MySQLClient handles MySQL database operations.
type MySQLClient struct {
	db     *sql.DB
	logger *logrus.Entry
	cfg    *config.MySQLConfig
}

// NewMySQLClient opens a pooled MySQL connection and verifies it.
func NewMySQLClient(cfg *config.MySQLConfig, log *logrus.Logger) (*MySQLClient, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &MySQLClient{
		db:     db,
		logger: log.WithField("component", "mysql"),
		cfg:    cfg,
	}, nil
}

// Close closes the database connection.
func (mc *MySQLClient) Close() error {
	return mc.db.Close()
}

// Health checks database health.
func (mc *MySQLClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return mc.db.PingContext(ctx)
}

// MigrationStatus reports which schema tables exist.
func (mc *MySQLClient) MigrationStatus(ctx context.Context) (map[string]bool, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
	`

	rows, err := mc.db.QueryContext(ctx, query, mc.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	status := make(map[string]bool, len(schemaTables))
	for _, table := range schemaTables {
		status[table] = present[table]
	}
	return status, nil
}

// Migrate applies the schema DDL.
func (mc *MySQLClient) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := mc.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	mc.logger.Info("Schema migration applied")
	return nil
}

// Provider operations

// GetProviders retrieves all providers.
func (mc *MySQLClient) GetProviders(ctx context.Context) ([]*models.Provider, error) {
	query := `
		SELECT id, name, description, base_url, api_key_required,
		       rate_limit_per_minute, is_active, created_at, updated_at
		FROM providers
		ORDER BY name
	`

	rows, err := mc.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p := &models.Provider{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.BaseURL, &p.APIKeyRequired,
			&p.RateLimitPerMinute, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// GetProviderByName retrieves a provider by name (case-insensitive).
// Returns (nil, nil) when not found.
func (mc *MySQLClient) GetProviderByName(ctx context.Context, name string) (*models.Provider, error) {
	query := `
		SELECT id, name, description, base_url, api_key_required,
		       rate_limit_per_minute, is_active, created_at, updated_at
		FROM providers
		WHERE LOWER(name) = LOWER(?)
	`

	p := &models.Provider{}
	err := mc.db.QueryRowContext(ctx, query, name).Scan(&p.ID, &p.Name, &p.Description,
		&p.BaseURL, &p.APIKeyRequired, &p.RateLimitPerMinute, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return p, nil
}

// UpsertProvider inserts a provider or updates its configuration fields.
func (mc *MySQLClient) UpsertProvider(ctx context.Context, p *models.Provider) error {
	query := `
		INSERT INTO providers (id, name, description, base_url, api_key_required, rate_limit_per_minute, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			description = VALUES(description),
			base_url = VALUES(base_url),
			api_key_required = VALUES(api_key_required),
			rate_limit_per_minute = VALUES(rate_limit_per_minute),
			is_active = VALUES(is_active)
	`

	_, err := mc.db.ExecContext(ctx, query, p.ID, p.Name, p.Description, p.BaseURL,
		p.APIKeyRequired, p.RateLimitPerMinute, p.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert provider %s: %w", p.Name, err)
	}
	return nil
}

// Instrument operations

const instrumentColumns = `
	i.id, i.symbol, i.name, i.unit, i.currency, i.exchange,
	i.provider_id, p.name AS provider_name, i.external_id, i.is_active,
	i.last_updated, i.update_frequency_minutes, i.created_at, i.updated_at
`

func (mc *MySQLClient) scanInstrument(scanner interface{ Scan(...interface{}) error }) (*models.Instrument, error) {
	inst := &models.Instrument{}
	var lastUpdated sql.NullTime
	err := scanner.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Unit, &inst.Currency,
		&inst.Exchange, &inst.ProviderID, &inst.ProviderName, &inst.ExternalID,
		&inst.IsActive, &lastUpdated, &inst.UpdateFrequencyMinute, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		t := lastUpdated.Time
		inst.LastUpdated = &t
	}
	return inst, nil
}

// GetActiveInstruments retrieves all active instruments with their provider
// name resolved.
func (mc *MySQLClient) GetActiveInstruments(ctx context.Context) ([]*models.Instrument, error) {
	query := `
		SELECT ` + instrumentColumns + `
		FROM instruments i
		JOIN providers p ON p.id = i.provider_id
		WHERE i.is_active = 1
		ORDER BY i.symbol
	`

	rows, err := mc.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []*models.Instrument
	for rows.Next() {
		inst, err := mc.scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// GetInstrumentByID retrieves a single instrument. Returns (nil, nil) when
// not found.
func (mc *MySQLClient) GetInstrumentByID(ctx context.Context, id string) (*models.Instrument, error) {
	query := `
		SELECT ` + instrumentColumns + `
		FROM instruments i
		JOIN providers p ON p.id = i.provider_id
		WHERE i.id = ?
	`

	inst, err := mc.scanInstrument(mc.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return inst, nil
}

// GetInstrumentBySymbol retrieves a single instrument by its upper-cased
// symbol. Returns (nil, nil) when not found.
func (mc *MySQLClient) GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	query := `
		SELECT ` + instrumentColumns + `
		FROM instruments i
		JOIN providers p ON p.id = i.provider_id
		WHERE i.symbol = ?
	`

	inst, err := mc.scanInstrument(mc.db.QueryRowContext(ctx, query, models.NormalizeSymbol(symbol)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return inst, nil
}

// CreateInstrument inserts an instrument. The symbol is case-normalized.
func (mc *MySQLClient) CreateInstrument(ctx context.Context, inst *models.Instrument) error {
	query := `
		INSERT INTO instruments
			(id, symbol, name, unit, currency, exchange, provider_id, external_id, is_active, update_frequency_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := mc.db.ExecContext(ctx, query, inst.ID, models.NormalizeSymbol(inst.Symbol),
		inst.Name, inst.Unit, inst.Currency, inst.Exchange, inst.ProviderID,
		inst.ExternalID, inst.IsActive, inst.UpdateFrequencyMinute)
	if err != nil {
		return fmt.Errorf("failed to create instrument %s: %w", inst.Symbol, err)
	}
	return nil
}

// SetInstrumentActive flips the active flag. Instruments are deactivated,
// never deleted.
func (mc *MySQLClient) SetInstrumentActive(ctx context.Context, id string, active bool) error {
	_, err := mc.db.ExecContext(ctx, `UPDATE instruments SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set instrument active flag: %w", err)
	}
	return nil
}

// AdvanceLastUpdated moves last_updated forward to ts only if it exceeds
// the stored value. The guard lives in the WHERE clause, so concurrent runs
// finishing out of order cannot roll the value back.
func (mc *MySQLClient) AdvanceLastUpdated(ctx context.Context, instrumentID string, ts time.Time) error {
	query := `
		UPDATE instruments
		SET last_updated = ?
		WHERE id = ? AND (last_updated IS NULL OR last_updated < ?)
	`

	_, err := mc.db.ExecContext(ctx, query, ts.UTC(), instrumentID, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to advance last_updated: %w", err)
	}
	return nil
}

// Observation operations

// ExistingTimestamps returns the subset of timestamps already stored for an
// instrument, keyed by UnixNano.
func (mc *MySQLClient) ExistingTimestamps(ctx context.Context, instrumentID string, timestamps []time.Time) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{})
	if len(timestamps) == 0 {
		return existing, nil
	}

	placeholders := strings.Repeat("?,", len(timestamps))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(
		`SELECT ts FROM price_observations WHERE instrument_id = ? AND ts IN (%s)`,
		placeholders,
	)

	args := make([]interface{}, 0, len(timestamps)+1)
	args = append(args, instrumentID)
	for _, ts := range timestamps {
		args = append(args, ts.UTC())
	}

	rows, err := mc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing timestamps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		existing[ts.UTC().UnixNano()] = struct{}{}
	}
	return existing, rows.Err()
}

// BulkInsertObservations inserts observations in a single transaction using
// INSERT IGNORE, so residual natural-key conflicts from concurrent runs are
// silently dropped. Returns the number of rows actually inserted.
func (mc *MySQLClient) BulkInsertObservations(ctx context.Context, observations []*models.PriceObservation) (int64, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	tx, err := mc.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`INSERT IGNORE INTO price_observations
		(instrument_id, ts, open_price, high_price, low_price, close_price, volume, source_data)
		VALUES `)
	for i, obs := range observations {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			obs.InstrumentID, obs.Timestamp.UTC(),
			nullDecimal(obs.Open), nullDecimal(obs.High), nullDecimal(obs.Low),
			obs.Close, nullInt64(obs.Volume), obs.SourceData,
		)
	}

	result, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert observations: %w", err)
	}
	created, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit observations: %w", err)
	}

	mc.logger.WithFields(logrus.Fields{
		"instrument_id": observations[0].InstrumentID,
		"created":       created,
		"submitted":     len(observations),
	}).Debug("Bulk inserted observations")
	return created, nil
}

// OverwriteObservation is the explicit correction path for an existing
// natural key. Normal ingestion never calls this.
func (mc *MySQLClient) OverwriteObservation(ctx context.Context, obs *models.PriceObservation) error {
	query := `
		INSERT INTO price_observations
			(instrument_id, ts, open_price, high_price, low_price, close_price, volume, source_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			open_price = VALUES(open_price),
			high_price = VALUES(high_price),
			low_price = VALUES(low_price),
			close_price = VALUES(close_price),
			volume = VALUES(volume),
			source_data = VALUES(source_data)
	`

	_, err := mc.db.ExecContext(ctx, query,
		obs.InstrumentID, obs.Timestamp.UTC(),
		nullDecimal(obs.Open), nullDecimal(obs.High), nullDecimal(obs.Low),
		obs.Close, nullInt64(obs.Volume), obs.SourceData)
	if err != nil {
		return fmt.Errorf("failed to overwrite observation: %w", err)
	}
	return nil
}

const observationColumns = `
	id, instrument_id, ts, open_price, high_price, low_price, close_price, volume, source_data, created_at
`

func scanObservation(scanner interface{ Scan(...interface{}) error }) (*models.PriceObservation, error) {
	obs := &models.PriceObservation{}
	var (
		open, high, low decimal.NullDecimal
		volume          sql.NullInt64
	)
	err := scanner.Scan(&obs.ID, &obs.InstrumentID, &obs.Timestamp,
		&open, &high, &low, &obs.Close, &volume, &obs.SourceData, &obs.CreatedAt)
	if err != nil {
		return nil, err
	}
	if open.Valid {
		obs.Open = &open.Decimal
	}
	if high.Valid {
		obs.High = &high.Decimal
	}
	if low.Valid {
		obs.Low = &low.Decimal
	}
	if volume.Valid {
		obs.Volume = &volume.Int64
	}
	return obs, nil
}

// GetObservations retrieves observations for an instrument since a cutoff,
// newest first, capped at limit.
func (mc *MySQLClient) GetObservations(ctx context.Context, instrumentID string, since time.Time, limit int) ([]*models.PriceObservation, error) {
	if limit < 1 {
		limit = 1000
	}
	query := `
		SELECT ` + observationColumns + `
		FROM price_observations
		WHERE instrument_id = ? AND ts >= ?
		ORDER BY ts DESC
		LIMIT ?
	`

	rows, err := mc.db.QueryContext(ctx, query, instrumentID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var observations []*models.PriceObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// GetLatestObservation retrieves the most recent observation for an
// instrument. Returns (nil, nil) when none exist.
func (mc *MySQLClient) GetLatestObservation(ctx context.Context, instrumentID string) (*models.PriceObservation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM price_observations
		WHERE instrument_id = ?
		ORDER BY ts DESC
		LIMIT 1
	`

	obs, err := scanObservation(mc.db.QueryRowContext(ctx, query, instrumentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}
	return obs, nil
}

// Update run operations

// CreateUpdateRun inserts a PENDING ledger entry.
func (mc *MySQLClient) CreateUpdateRun(ctx context.Context, run *models.UpdateRun) error {
	query := `
		INSERT INTO update_runs
			(id, provider_id, instrument_id, status, correlation_id, records_fetched,
			 records_created, records_updated, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := mc.db.ExecContext(ctx, query, run.ID, nullString(run.ProviderID), run.InstrumentID,
		run.Status, run.CorrelationID, run.Counters.Fetched, run.Counters.Created,
		run.Counters.Updated, run.ErrorMessage, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create update run: %w", err)
	}
	return nil
}

// SaveRunState persists the run's status, counters, error text and
// timestamps in one update.
func (mc *MySQLClient) SaveRunState(ctx context.Context, run *models.UpdateRun) error {
	query := `
		UPDATE update_runs
		SET status = ?, correlation_id = ?, records_fetched = ?, records_created = ?,
		    records_updated = ?, error_message = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`

	_, err := mc.db.ExecContext(ctx, query, run.Status, run.CorrelationID,
		run.Counters.Fetched, run.Counters.Created, run.Counters.Updated,
		run.ErrorMessage, nullTime(run.StartedAt), nullTime(run.CompletedAt), run.ID)
	if err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

// RunFilter narrows update run listings.
type RunFilter struct {
	InstrumentID string
	Status       models.RunStatus
	Limit        int
}

const runColumns = `
	id, provider_id, instrument_id, status, correlation_id, records_fetched,
	records_created, records_updated, error_message, started_at, completed_at, created_at
`

func scanRun(scanner interface{ Scan(...interface{}) error }) (*models.UpdateRun, error) {
	run := &models.UpdateRun{}
	var (
		providerID   sql.NullString
		instrumentID sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)
	err := scanner.Scan(&run.ID, &providerID, &instrumentID, &run.Status,
		&run.CorrelationID, &run.Counters.Fetched, &run.Counters.Created,
		&run.Counters.Updated, &errorMessage, &startedAt, &completedAt, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.ProviderID = providerID.String
	if instrumentID.Valid {
		run.InstrumentID = &instrumentID.String
	}
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// GetUpdateRuns lists ledger entries newest first. UUIDv7 ids sort by
// creation time, so the id ordering is the creation ordering.
func (mc *MySQLClient) GetUpdateRuns(ctx context.Context, filter RunFilter) ([]*models.UpdateRun, error) {
	query := `SELECT ` + runColumns + ` FROM update_runs WHERE 1=1`
	var args []interface{}

	if filter.InstrumentID != "" {
		query += ` AND instrument_id = ?`
		args = append(args, filter.InstrumentID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := mc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query update runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.UpdateRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetUpdateRunByID retrieves a single ledger entry. Returns (nil, nil) when
// not found.
func (mc *MySQLClient) GetUpdateRunByID(ctx context.Context, id string) (*models.UpdateRun, error) {
	query := `SELECT ` + runColumns + ` FROM update_runs WHERE id = ?`

	run, err := scanRun(mc.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get update run: %w", err)
	}
	return run, nil
}

// GetStuckRuns lists runs still RUNNING past a cutoff. A process killed
// mid-task leaves its run in RUNNING; these need out-of-band cleanup.
func (mc *MySQLClient) GetStuckRuns(ctx context.Context, olderThan time.Duration) ([]*models.UpdateRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM update_runs
		WHERE status = ? AND started_at < ?
		ORDER BY started_at
	`

	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := mc.db.QueryContext(ctx, query, models.RunRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.UpdateRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// null helpers

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
