package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/flowbit/invoice-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It mirrors the
// Postgres schema with TEXT-encoded JSON documents and RFC3339 timestamps,
// and is the default driver for local runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id         TEXT PRIMARY KEY,
	vendor     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(vendor);

CREATE TABLE IF NOT EXISTS purchase_orders (
	po_number TEXT PRIMARY KEY,
	vendor    TEXT NOT NULL,
	data      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_purchase_orders_vendor ON purchase_orders(vendor);

CREATE TABLE IF NOT EXISTS delivery_notes (
	dn_number TEXT PRIMARY KEY,
	vendor    TEXT NOT NULL,
	data      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vendor_memories (
	id     TEXT PRIMARY KEY,
	vendor TEXT NOT NULL,
	key    TEXT NOT NULL,
	data   TEXT,
	UNIQUE (vendor, key)
);

CREATE TABLE IF NOT EXISTS correction_memories (
	id              TEXT PRIMARY KEY,
	vendor          TEXT NOT NULL,
	field           TEXT NOT NULL,
	pattern         TEXT NOT NULL,
	suggested_value TEXT NOT NULL,
	confidence      REAL NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	UNIQUE (vendor, field)
);

CREATE TABLE IF NOT EXISTS human_corrections (
	invoice_id     TEXT PRIMARY KEY,
	vendor         TEXT NOT NULL,
	corrections    TEXT NOT NULL,
	final_decision TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_trail (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	invoice_id  TEXT NOT NULL,
	step        TEXT NOT NULL,
	details     TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_trail_invoice ON audit_trail(invoice_id, seq);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) GetInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM invoices WHERE id = ?`, invoiceID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get invoice %s", invoiceID)
	}
	var inv model.Invoice
	if err := json.Unmarshal([]byte(data), &inv); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal invoice")
	}
	return &inv, nil
}

func (s *SQLiteStore) SaveInvoice(ctx context.Context, inv model.Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal invoice")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, vendor, data) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		inv.InvoiceID, inv.Vendor, string(data),
	)
	return eris.Wrapf(err, "sqlite: save invoice %s", inv.InvoiceID)
}

func (s *SQLiteStore) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM invoices ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list invoices")
	}
	defer rows.Close()
	return scanSQLiteInvoices(rows, "list invoices")
}

func (s *SQLiteStore) FindInvoicesByVendorAndNumber(ctx context.Context, vendor, invoiceNumber string) ([]model.Invoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM invoices WHERE vendor = ? AND json_extract(data, '$.fields.invoice_number') = ?`,
		vendor, invoiceNumber,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find invoices by vendor and number")
	}
	defer rows.Close()
	return scanSQLiteInvoices(rows, "find invoices")
}

func scanSQLiteInvoices(rows *sql.Rows, op string) ([]model.Invoice, error) {
	var invoices []model.Invoice
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan invoice (%s)", op)
		}
		var inv model.Invoice
		if err := json.Unmarshal([]byte(data), &inv); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal invoice (%s)", op)
		}
		invoices = append(invoices, inv)
	}
	return invoices, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

func (s *SQLiteStore) SavePurchaseOrder(ctx context.Context, po model.PurchaseOrder) error {
	data, err := json.Marshal(po)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal purchase order")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO purchase_orders (po_number, vendor, data) VALUES (?, ?, ?) ON CONFLICT (po_number) DO NOTHING`,
		po.PONumber, po.Vendor, string(data),
	)
	return eris.Wrapf(err, "sqlite: save purchase order %s", po.PONumber)
}

func (s *SQLiteStore) GetPurchaseOrdersByVendor(ctx context.Context, vendor string) ([]model.PurchaseOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM purchase_orders WHERE vendor = ? ORDER BY po_number`, vendor,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get purchase orders")
	}
	defer rows.Close()

	var pos []model.PurchaseOrder
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan purchase order")
		}
		var po model.PurchaseOrder
		if err := json.Unmarshal([]byte(data), &po); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal purchase order")
		}
		pos = append(pos, po)
	}
	return pos, eris.Wrap(rows.Err(), "sqlite: get purchase orders iterate")
}

func (s *SQLiteStore) SaveDeliveryNote(ctx context.Context, dn model.DeliveryNote) error {
	data, err := json.Marshal(dn)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal delivery note")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO delivery_notes (dn_number, vendor, data) VALUES (?, ?, ?) ON CONFLICT (dn_number) DO NOTHING`,
		dn.DNNumber, dn.Vendor, string(data),
	)
	return eris.Wrapf(err, "sqlite: save delivery note %s", dn.DNNumber)
}

func (s *SQLiteStore) SaveVendorMemory(ctx context.Context, m model.VendorMemory) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	data, err := json.Marshal(m.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vendor memory data")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vendor_memories (id, vendor, key, data) VALUES (?, ?, ?, ?) ON CONFLICT (vendor, key) DO NOTHING`,
		m.ID, m.Vendor, m.Key, string(data),
	)
	return eris.Wrapf(err, "sqlite: save vendor memory %s/%s", m.Vendor, m.Key)
}

func (s *SQLiteStore) GetVendorMemories(ctx context.Context, vendor string) ([]model.VendorMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor, key, data FROM vendor_memories WHERE vendor = ? ORDER BY key`, vendor,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get vendor memories")
	}
	defer rows.Close()

	var memories []model.VendorMemory
	for rows.Next() {
		var m model.VendorMemory
		var data sql.NullString
		if err := rows.Scan(&m.ID, &m.Vendor, &m.Key, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor memory")
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &m.Data); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal vendor memory data")
			}
		}
		memories = append(memories, m)
	}
	return memories, eris.Wrap(rows.Err(), "sqlite: get vendor memories iterate")
}

func (s *SQLiteStore) GetCorrectionMemories(ctx context.Context, vendor string) ([]model.CorrectionMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor, field, pattern, suggested_value, confidence, created_at, updated_at
		 FROM correction_memories WHERE vendor = ? ORDER BY field`, vendor,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get correction memories")
	}
	defer rows.Close()

	var memories []model.CorrectionMemory
	for rows.Next() {
		m, err := scanSQLiteCorrectionMemory(rows.Scan)
		if err != nil {
			return nil, err
		}
		memories = append(memories, *m)
	}
	return memories, eris.Wrap(rows.Err(), "sqlite: get correction memories iterate")
}

func (s *SQLiteStore) GetCorrectionMemory(ctx context.Context, vendor, field string) (*model.CorrectionMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, vendor, field, pattern, suggested_value, confidence, created_at, updated_at
		 FROM correction_memories WHERE vendor = ? AND field = ?`,
		vendor, field,
	)
	m, err := scanSQLiteCorrectionMemory(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func scanSQLiteCorrectionMemory(scan func(...any) error) (*model.CorrectionMemory, error) {
	var m model.CorrectionMemory
	var createdAt, updatedAt string
	if err := scan(&m.ID, &m.Vendor, &m.Field, &m.Pattern, &m.SuggestedValue, &m.Confidence, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan correction memory")
	}
	var err error
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse correction memory created_at")
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse correction memory updated_at")
	}
	return &m, nil
}

func (s *SQLiteStore) CreateCorrectionMemory(ctx context.Context, m model.CorrectionMemory) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO correction_memories (id, vendor, field, pattern, suggested_value, confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Vendor, m.Field, m.Pattern, m.SuggestedValue, m.Confidence, now, now,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: create correction memory %s/%s", m.Vendor, m.Field)
	}
	return m.ID, nil
}

func (s *SQLiteStore) AdjustCorrectionMemoryConfidence(ctx context.Context, id string, delta float64) (float64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var confidence float64
	err := s.db.QueryRowContext(ctx,
		`UPDATE correction_memories
		 SET confidence = MIN(1.0, MAX(0.0, confidence + ?)), updated_at = ?
		 WHERE id = ?
		 RETURNING confidence`,
		delta, now, id,
	).Scan(&confidence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, eris.Errorf("correction memory not found: %s", id)
		}
		return 0, eris.Wrapf(err, "sqlite: adjust correction memory %s", id)
	}
	return confidence, nil
}

func (s *SQLiteStore) SaveHumanCorrection(ctx context.Context, hc model.HumanCorrection) error {
	corrections, err := json.Marshal(hc.Corrections)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal human corrections")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO human_corrections (invoice_id, vendor, corrections, final_decision)
		 VALUES (?, ?, ?, ?) ON CONFLICT (invoice_id) DO NOTHING`,
		hc.InvoiceID, hc.Vendor, string(corrections), string(hc.FinalDecision),
	)
	return eris.Wrapf(err, "sqlite: save human correction %s", hc.InvoiceID)
}

func (s *SQLiteStore) GetHumanCorrection(ctx context.Context, invoiceID string) (*model.HumanCorrection, error) {
	var hc model.HumanCorrection
	var corrections, decision string
	err := s.db.QueryRowContext(ctx,
		`SELECT invoice_id, vendor, corrections, final_decision FROM human_corrections WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&hc.InvoiceID, &hc.Vendor, &corrections, &decision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get human correction %s", invoiceID)
	}
	if err := json.Unmarshal([]byte(corrections), &hc.Corrections); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal human corrections")
	}
	hc.FinalDecision = model.FinalDecision(decision)
	return &hc, nil
}

func (s *SQLiteStore) AppendAuditEntries(ctx context.Context, invoiceID string, entries []model.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin audit append")
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO audit_trail (invoice_id, step, details, recorded_at) VALUES (?, ?, ?, ?)`,
			invoiceID, string(e.Step), e.Details, e.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: append audit entry for %s", invoiceID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit audit append")
}

func (s *SQLiteStore) ListAuditEntries(ctx context.Context, invoiceID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, details, recorded_at FROM audit_trail WHERE invoice_id = ? ORDER BY seq`,
		invoiceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit entries")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var step, recordedAt string
		if err := rows.Scan(&step, &e.Details, &recordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse audit entry timestamp")
		}
		e.Step = model.AuditStep(step)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit entries iterate")
}
