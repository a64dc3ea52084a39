package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/petshop/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		acquirer TEXT NOT NULL,
		version INTEGER NOT NULL,
		file_type TEXT NOT NULL DEFAULT 'csv',
		delimiter TEXT NOT NULL DEFAULT ';',
		encoding TEXT NOT NULL DEFAULT 'utf-8',
		has_header BOOLEAN NOT NULL DEFAULT TRUE,
		skip_lines INTEGER NOT NULL DEFAULT 0,
		mappings TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tenant_id, acquirer, version)
	);

	CREATE TABLE IF NOT EXISTS canonical_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		acquirer TEXT NOT NULL,
		nsu TEXT NOT NULL,
		sale_date TEXT NOT NULL,
		payout_date TEXT,
		gross_amount TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		fee_amount TEXT,
		installment_number INTEGER,
		installment_count INTEGER,
		card_brand TEXT,
		transaction_type TEXT,
		lot_id TEXT,
		payout_kind TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		validado BOOLEAN NOT NULL DEFAULT FALSE,
		validado_em TIMESTAMP,
		amarrado BOOLEAN NOT NULL DEFAULT FALSE,
		amarrado_em TIMESTAMP,
		sale_id INTEGER,
		parcela_id INTEGER,
		source_row INTEGER,
		imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_ctx_tenant_nsu ON canonical_transactions(tenant_id, nsu);
	CREATE INDEX IF NOT EXISTS idx_ctx_tenant_run ON canonical_transactions(tenant_id, run_id);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		nsu TEXT,
		sale_date TEXT NOT NULL,
		gross_amount TEXT NOT NULL,
		installment_count INTEGER NOT NULL DEFAULT 1,
		card_brand TEXT,
		conciliado_vendas BOOLEAN NOT NULL DEFAULT FALSE,
		conciliado_em TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sales_tenant_date ON sales(tenant_id, sale_date);

	CREATE TABLE IF NOT EXISTS receivable_installments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		sale_id INTEGER NOT NULL,
		installment_number INTEGER NOT NULL,
		expected_net TEXT NOT NULL,
		due_date TEXT,
		tipo_recebimento TEXT NOT NULL DEFAULT 'parcela',
		conciliacao_id INTEGER,
		amarrado_em TIMESTAMP,
		FOREIGN KEY(sale_id) REFERENCES sales(id)
	);
	CREATE INDEX IF NOT EXISTS idx_parcelas_sale ON receivable_installments(tenant_id, sale_id);

	CREATE TABLE IF NOT EXISTS health_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		process_date TEXT NOT NULL,
		total_receipts INTEGER NOT NULL,
		tied_count INTEGER NOT NULL,
		orphan_count INTEGER NOT NULL,
		total_value TEXT NOT NULL,
		tied_value TEXT NOT NULL,
		orphan_value TEXT NOT NULL,
		auto_tie_rate REAL NOT NULL,
		health TEXT NOT NULL,
		computed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tenant_id, process_date)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}

	migrateCanonicalTransactions()

	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateCanonicalTransactions backfills columns added after the first
// release so existing databases keep working without a reimport.
func migrateCanonicalTransactions() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='canonical_transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for canonical_transactions table", "error", err)
		} else {
			stdlog.Printf("Error checking for canonical_transactions table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(canonical_transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for canonical_transactions", "error", err)
		} else {
			stdlog.Printf("Error querying table schema: %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info", "error", err)
			} else {
				stdlog.Printf("Error scanning column info: %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info", "error", err)
		}
		return
	}

	if _, ok := columnExists["payout_kind"]; !ok {
		if _, err := DB.Exec("ALTER TABLE canonical_transactions ADD COLUMN payout_kind TEXT"); err != nil {
			logger.L.Error("Error adding payout_kind column", "error", err)
		} else {
			logger.L.Info("Added payout_kind column to canonical_transactions table")
		}
	}
	if _, ok := columnExists["source_row"]; !ok {
		if _, err := DB.Exec("ALTER TABLE canonical_transactions ADD COLUMN source_row INTEGER"); err != nil {
			logger.L.Error("Error adding source_row column", "error", err)
		} else {
			logger.L.Info("Added source_row column to canonical_transactions table")
		}
	}
}
