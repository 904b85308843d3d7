package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"go.uber.org/zap"
)

// DefaultInvoicePrefix is used when no prefix is configured
const DefaultInvoicePrefix = "INV"

// InvoiceIssuer is a local numbering authority backed by the
// issued_invoice_numbers table. Numbers are gapless per database and a
// repeated idempotency key returns the identifiers issued the first time.
type InvoiceIssuer struct {
	db          *DB
	prefix      string
	sellerGSTIN string
	logger      *zap.Logger
}

var _ port.InvoiceIssuer = (*InvoiceIssuer)(nil)

// NewInvoiceIssuer creates a local issuer
func NewInvoiceIssuer(db *DB, prefix, sellerGSTIN string, logger *zap.Logger) *InvoiceIssuer {
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	return &InvoiceIssuer{
		db:          db,
		prefix:      prefix,
		sellerGSTIN: sellerGSTIN,
		logger:      logger,
	}
}

// Issue assigns the next invoice number and its registration reference
func (i *InvoiceIssuer) Issue(ctx context.Context, req port.IssueRequest) (*port.IssuedInvoice, error) {
	if req.IdempotencyKey == "" {
		return nil, errors.New("idempotency key required")
	}
	issuedAt := req.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	var issued *port.IssuedInvoice
	err := i.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := i.db.executor(txCtx)

		// The key doubles as a placeholder number until the sequence is known
		res, err := exec.ExecContext(txCtx, `
			INSERT INTO issued_invoice_numbers (idempotency_key, invoice_number, irn, order_id, grand_total, issued_at)
			VALUES (?, ?, '', ?, ?, ?)
			ON CONFLICT (idempotency_key) DO NOTHING
		`, req.IdempotencyKey, "pending:"+req.IdempotencyKey, req.OrderID, req.Totals.GrandTotal.Minor(), issuedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to reserve invoice number: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			issued, err = i.existing(txCtx, exec, req)
			return err
		}

		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read invoice sequence: %w", err)
		}
		number := fmt.Sprintf("%s-%06d", i.prefix, seq)
		irn := i.registrationNumber(number, issuedAt)
		if _, err := exec.ExecContext(txCtx,
			"UPDATE issued_invoice_numbers SET invoice_number = ?, irn = ? WHERE seq = ?",
			number, irn, seq,
		); err != nil {
			return fmt.Errorf("failed to assign invoice number: %w", err)
		}
		issued = &port.IssuedInvoice{InvoiceNumber: number, IRN: irn}
		return nil
	})
	if err != nil {
		i.logger.Error("Failed to issue invoice number",
			zap.String("order_id", req.OrderID),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
		return nil, err
	}

	i.logger.Info("Invoice number issued",
		zap.String("order_id", req.OrderID),
		zap.String("invoice_number", issued.InvoiceNumber))
	return issued, nil
}

func (i *InvoiceIssuer) existing(ctx context.Context, exec executor, req port.IssueRequest) (*port.IssuedInvoice, error) {
	var (
		orderID string
		issued  port.IssuedInvoice
	)
	err := exec.QueryRowContext(ctx,
		"SELECT order_id, invoice_number, irn FROM issued_invoice_numbers WHERE idempotency_key = ?",
		req.IdempotencyKey,
	).Scan(&orderID, &issued.InvoiceNumber, &issued.IRN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice number for key %s vanished", req.IdempotencyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read issued invoice number: %w", err)
	}
	if orderID != req.OrderID {
		return nil, fmt.Errorf("idempotency key %s already used by order %s", req.IdempotencyKey, orderID)
	}
	return &issued, nil
}

// registrationNumber hashes seller GSTIN, financial year, document type and
// number into a 64 character reference
func (i *InvoiceIssuer) registrationNumber(number string, issuedAt time.Time) string {
	sum := sha256.Sum256([]byte(i.sellerGSTIN + FinancialYear(issuedAt) + "INV" + number))
	return hex.EncodeToString(sum[:])
}

// FinancialYear returns the April-to-March year label, e.g. "2026-27"
func FinancialYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}
