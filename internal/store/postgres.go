package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/flowbit/invoice-engine/internal/db"
	"github.com/flowbit/invoice-engine/internal/model"
)

// PostgresStore implements Store using pgxpool. Invoice-like documents live
// in JSONB columns; correction memories are flat rows with a (vendor, field)
// unique constraint that enforces the one-row-per-pair invariant.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the per-invocation hot path (one recall + learn round trip per invoice).
var preparedStatements = map[string]string{
	"get_invoice":         `SELECT data FROM invoices WHERE id = $1`,
	"vendor_memories":     `SELECT id, vendor, key, data FROM vendor_memories WHERE vendor = $1 ORDER BY key`,
	"correction_memories": `SELECT id, vendor, field, pattern, suggested_value, confidence, created_at, updated_at FROM correction_memories WHERE vendor = $1 ORDER BY field`,
	"purchase_orders":     `SELECT data FROM purchase_orders WHERE vendor = $1 ORDER BY po_number`,
	"human_correction":    `SELECT invoice_id, vendor, corrections, final_decision FROM human_corrections WHERE invoice_id = $1`,
	"adjust_confidence":   `UPDATE correction_memories SET confidence = LEAST(1.0, GREATEST(0.0, confidence + $1)), updated_at = now() WHERE id = $2 RETURNING confidence`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id         TEXT PRIMARY KEY,
	vendor     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(vendor);
CREATE INDEX IF NOT EXISTS idx_invoices_vendor_number
	ON invoices(vendor, (data->'fields'->>'invoice_number'));

CREATE TABLE IF NOT EXISTS purchase_orders (
	po_number TEXT PRIMARY KEY,
	vendor    TEXT NOT NULL,
	data      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_purchase_orders_vendor ON purchase_orders(vendor);

CREATE TABLE IF NOT EXISTS delivery_notes (
	dn_number TEXT PRIMARY KEY,
	vendor    TEXT NOT NULL,
	data      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS vendor_memories (
	id     TEXT PRIMARY KEY,
	vendor TEXT NOT NULL,
	key    TEXT NOT NULL,
	data   JSONB,
	UNIQUE (vendor, key)
);

CREATE TABLE IF NOT EXISTS correction_memories (
	id              TEXT PRIMARY KEY,
	vendor          TEXT NOT NULL,
	field           TEXT NOT NULL,
	pattern         TEXT NOT NULL,
	suggested_value TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (vendor, field)
);

CREATE TABLE IF NOT EXISTS human_corrections (
	invoice_id     TEXT PRIMARY KEY,
	vendor         TEXT NOT NULL,
	corrections    JSONB NOT NULL,
	final_decision TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_trail (
	id          TEXT PRIMARY KEY,
	seq         BIGINT GENERATED ALWAYS AS IDENTITY,
	invoice_id  TEXT NOT NULL,
	step        TEXT NOT NULL,
	details     TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_trail_invoice ON audit_trail(invoice_id, seq);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM invoices WHERE id = $1`, invoiceID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get invoice %s", invoiceID)
	}
	var inv model.Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal invoice")
	}
	return &inv, nil
}

func (s *PostgresStore) SaveInvoice(ctx context.Context, inv model.Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal invoice")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO invoices (id, vendor, data) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		inv.InvoiceID, inv.Vendor, data,
	)
	return eris.Wrapf(err, "postgres: save invoice %s", inv.InvoiceID)
}

func (s *PostgresStore) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM invoices ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list invoices")
	}
	defer rows.Close()
	return scanInvoices(rows, "list invoices")
}

func (s *PostgresStore) FindInvoicesByVendorAndNumber(ctx context.Context, vendor, invoiceNumber string) ([]model.Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM invoices WHERE vendor = $1 AND data->'fields'->>'invoice_number' = $2`,
		vendor, invoiceNumber,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find invoices by vendor and number")
	}
	defer rows.Close()
	return scanInvoices(rows, "find invoices")
}

func scanInvoices(rows pgx.Rows, op string) ([]model.Invoice, error) {
	var invoices []model.Invoice
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan invoice (%s)", op)
		}
		var inv model.Invoice
		if err := json.Unmarshal(data, &inv); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal invoice (%s)", op)
		}
		invoices = append(invoices, inv)
	}
	return invoices, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

func (s *PostgresStore) SavePurchaseOrder(ctx context.Context, po model.PurchaseOrder) error {
	data, err := json.Marshal(po)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal purchase order")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO purchase_orders (po_number, vendor, data) VALUES ($1, $2, $3) ON CONFLICT (po_number) DO NOTHING`,
		po.PONumber, po.Vendor, data,
	)
	return eris.Wrapf(err, "postgres: save purchase order %s", po.PONumber)
}

func (s *PostgresStore) GetPurchaseOrdersByVendor(ctx context.Context, vendor string) ([]model.PurchaseOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM purchase_orders WHERE vendor = $1 ORDER BY po_number`, vendor,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get purchase orders")
	}
	defer rows.Close()

	var pos []model.PurchaseOrder
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan purchase order")
		}
		var po model.PurchaseOrder
		if err := json.Unmarshal(data, &po); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal purchase order")
		}
		pos = append(pos, po)
	}
	return pos, eris.Wrap(rows.Err(), "postgres: get purchase orders iterate")
}

func (s *PostgresStore) SaveDeliveryNote(ctx context.Context, dn model.DeliveryNote) error {
	data, err := json.Marshal(dn)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal delivery note")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO delivery_notes (dn_number, vendor, data) VALUES ($1, $2, $3) ON CONFLICT (dn_number) DO NOTHING`,
		dn.DNNumber, dn.Vendor, data,
	)
	return eris.Wrapf(err, "postgres: save delivery note %s", dn.DNNumber)
}

func (s *PostgresStore) SaveVendorMemory(ctx context.Context, m model.VendorMemory) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	data, err := json.Marshal(m.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vendor memory data")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO vendor_memories (id, vendor, key, data) VALUES ($1, $2, $3, $4) ON CONFLICT (vendor, key) DO NOTHING`,
		m.ID, m.Vendor, m.Key, data,
	)
	return eris.Wrapf(err, "postgres: save vendor memory %s/%s", m.Vendor, m.Key)
}

func (s *PostgresStore) GetVendorMemories(ctx context.Context, vendor string) ([]model.VendorMemory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, vendor, key, data FROM vendor_memories WHERE vendor = $1 ORDER BY key`, vendor,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get vendor memories")
	}
	defer rows.Close()

	var memories []model.VendorMemory
	for rows.Next() {
		var m model.VendorMemory
		var data []byte
		if err := rows.Scan(&m.ID, &m.Vendor, &m.Key, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor memory")
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &m.Data); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal vendor memory data")
			}
		}
		memories = append(memories, m)
	}
	return memories, eris.Wrap(rows.Err(), "postgres: get vendor memories iterate")
}

func (s *PostgresStore) GetCorrectionMemories(ctx context.Context, vendor string) ([]model.CorrectionMemory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, vendor, field, pattern, suggested_value, confidence, created_at, updated_at
		 FROM correction_memories WHERE vendor = $1 ORDER BY field`, vendor,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get correction memories")
	}
	defer rows.Close()

	var memories []model.CorrectionMemory
	for rows.Next() {
		var m model.CorrectionMemory
		if err := rows.Scan(&m.ID, &m.Vendor, &m.Field, &m.Pattern, &m.SuggestedValue, &m.Confidence, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction memory")
		}
		memories = append(memories, m)
	}
	return memories, eris.Wrap(rows.Err(), "postgres: get correction memories iterate")
}

func (s *PostgresStore) GetCorrectionMemory(ctx context.Context, vendor, field string) (*model.CorrectionMemory, error) {
	var m model.CorrectionMemory
	err := s.pool.QueryRow(ctx,
		`SELECT id, vendor, field, pattern, suggested_value, confidence, created_at, updated_at
		 FROM correction_memories WHERE vendor = $1 AND field = $2`,
		vendor, field,
	).Scan(&m.ID, &m.Vendor, &m.Field, &m.Pattern, &m.SuggestedValue, &m.Confidence, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get correction memory %s/%s", vendor, field)
	}
	return &m, nil
}

func (s *PostgresStore) CreateCorrectionMemory(ctx context.Context, m model.CorrectionMemory) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO correction_memories (id, vendor, field, pattern, suggested_value, confidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Vendor, m.Field, m.Pattern, m.SuggestedValue, m.Confidence, now, now,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: create correction memory %s/%s", m.Vendor, m.Field)
	}
	return m.ID, nil
}

// AdjustCorrectionMemoryConfidence applies the delta and clamps to [0,1] in a
// single UPDATE so concurrent reinforcement for the same row cannot interleave
// a stale read with the write.
func (s *PostgresStore) AdjustCorrectionMemoryConfidence(ctx context.Context, id string, delta float64) (float64, error) {
	var confidence float64
	err := s.pool.QueryRow(ctx,
		`UPDATE correction_memories
		 SET confidence = LEAST(1.0, GREATEST(0.0, confidence + $1)), updated_at = now()
		 WHERE id = $2
		 RETURNING confidence`,
		delta, id,
	).Scan(&confidence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, eris.Errorf("correction memory not found: %s", id)
		}
		return 0, eris.Wrapf(err, "postgres: adjust correction memory %s", id)
	}
	return confidence, nil
}

func (s *PostgresStore) SaveHumanCorrection(ctx context.Context, hc model.HumanCorrection) error {
	corrections, err := json.Marshal(hc.Corrections)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal human corrections")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO human_corrections (invoice_id, vendor, corrections, final_decision)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (invoice_id) DO NOTHING`,
		hc.InvoiceID, hc.Vendor, corrections, string(hc.FinalDecision),
	)
	return eris.Wrapf(err, "postgres: save human correction %s", hc.InvoiceID)
}

func (s *PostgresStore) GetHumanCorrection(ctx context.Context, invoiceID string) (*model.HumanCorrection, error) {
	var hc model.HumanCorrection
	var corrections []byte
	var decision string
	err := s.pool.QueryRow(ctx,
		`SELECT invoice_id, vendor, corrections, final_decision FROM human_corrections WHERE invoice_id = $1`,
		invoiceID,
	).Scan(&hc.InvoiceID, &hc.Vendor, &corrections, &decision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get human correction %s", invoiceID)
	}
	if err := json.Unmarshal(corrections, &hc.Corrections); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal human corrections")
	}
	hc.FinalDecision = model.FinalDecision(decision)
	return &hc, nil
}

func (s *PostgresStore) AppendAuditEntries(ctx context.Context, invoiceID string, entries []model.AuditEntry) error {
	for _, e := range entries {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO audit_trail (id, invoice_id, step, details, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), invoiceID, string(e.Step), e.Details, e.Timestamp,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: append audit entry for %s", invoiceID)
		}
	}
	return nil
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, invoiceID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT step, details, recorded_at FROM audit_trail WHERE invoice_id = $1 ORDER BY seq`,
		invoiceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit entries")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var step string
		if err := rows.Scan(&step, &e.Details, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		e.Step = model.AuditStep(step)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit entries iterate")
}
