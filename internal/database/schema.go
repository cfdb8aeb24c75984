package database

// schemaTables lists the tables the schema creates, in creation order.
var schemaTables = []string{"providers", "instruments", "price_observations", "update_runs"}

// schemaStatements is the full schema, applied in order. Statements are
// idempotent so the migrate command can run against an existing database.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id CHAR(36) NOT NULL,
		name VARCHAR(100) NOT NULL,
		description TEXT,
		base_url VARCHAR(255) NOT NULL DEFAULT '',
		api_key_required BOOLEAN NOT NULL DEFAULT TRUE,
		rate_limit_per_minute INT NOT NULL DEFAULT 5,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_providers_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS instruments (
		id CHAR(36) NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		name VARCHAR(255) NOT NULL,
		unit VARCHAR(64) NOT NULL DEFAULT '',
		currency CHAR(3) NOT NULL DEFAULT 'USD',
		exchange VARCHAR(64) NOT NULL DEFAULT '',
		provider_id CHAR(36) NOT NULL,
		external_id VARCHAR(64) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_updated DATETIME NULL DEFAULT NULL,
		update_frequency_minutes INT NOT NULL DEFAULT 60,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_instruments_symbol (symbol),
		UNIQUE KEY uq_instruments_provider_external (provider_id, external_id),
		KEY idx_instruments_active (is_active),
		CONSTRAINT fk_instruments_provider FOREIGN KEY (provider_id) REFERENCES providers (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS price_observations (
		id BIGINT NOT NULL AUTO_INCREMENT,
		instrument_id CHAR(36) NOT NULL,
		-- DATETIME, not TIMESTAMP: historical series reach back before the
		-- 1970 epoch, and INSERT IGNORE would clamp out-of-range values
		-- silently instead of failing.
		ts DATETIME NOT NULL,
		open_price DECIMAL(15,6) NULL,
		high_price DECIMAL(15,6) NULL,
		low_price DECIMAL(15,6) NULL,
		close_price DECIMAL(15,6) NOT NULL,
		volume BIGINT NULL,
		source_data JSON NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_observations_instrument_ts (instrument_id, ts),
		KEY idx_observations_ts (ts),
		CONSTRAINT fk_observations_instrument FOREIGN KEY (instrument_id) REFERENCES instruments (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS update_runs (
		id CHAR(36) NOT NULL,
		-- NULL provider: the run failed before a source could be resolved,
		-- e.g. a task referencing a deleted instrument.
		provider_id CHAR(36) NULL,
		instrument_id CHAR(36) NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		correlation_id CHAR(36) NOT NULL DEFAULT '',
		records_fetched INT NOT NULL DEFAULT 0,
		records_created INT NOT NULL DEFAULT 0,
		records_updated INT NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at TIMESTAMP NULL DEFAULT NULL,
		completed_at TIMESTAMP NULL DEFAULT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_runs_instrument (instrument_id),
		KEY idx_runs_status (status),
		CONSTRAINT fk_runs_provider FOREIGN KEY (provider_id) REFERENCES providers (id),
		CONSTRAINT fk_runs_instrument FOREIGN KEY (instrument_id) REFERENCES instruments (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
