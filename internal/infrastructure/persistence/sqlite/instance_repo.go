package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/garyjia/fulfillment-engine/internal/domain/pricing"
	"github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// InstanceRepository implements port.InstanceRepository on SQLite. The
// instance row carries the revision; history, payments and invoices live in
// their own tables and are written in the same transaction.
type InstanceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)

// payloadDocument is the JSON stored in instances.payload. Derived totals,
// payments and invoices are not part of it.
type payloadDocument struct {
	Order        *orderDocument              `json:"order,omitempty"`
	Installation *entity.InstallationPayload `json:"installation,omitempty"`
}

type orderDocument struct {
	CustomerID string             `json:"customer_id"`
	Items      []pricing.LineItem `json:"items"`
	Shipping   money.Money        `json:"shipping"`
	Policy     ledger.Policy      `json:"policy"`
}

// Create stores a new instance at revision 1
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.Instance) error {
	payload, err := encodePayload(inst)
	if err != nil {
		return err
	}

	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.executor(txCtx)
		_, err := exec.ExecContext(txCtx, `
			INSERT INTO instances (id, kind, state, held_from, revision, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		`, inst.ID, inst.Kind, inst.State, inst.HeldFrom, payload, inst.CreatedAt.UTC(), inst.UpdatedAt.UTC())
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("instance %s already exists", inst.ID)
			}
			return fmt.Errorf("failed to insert instance: %w", err)
		}
		return r.writeChildren(txCtx, inst, 0)
	})
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("instance_id", inst.ID), zap.Error(err))
		return err
	}

	inst.Revision = 1
	return nil
}

// GetByID loads an instance with its history, payments and invoices from
// one read transaction
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.Instance, error) {
	var inst *entity.Instance
	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		inst, err = r.load(txCtx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *InstanceRepository) load(ctx context.Context, id string) (*entity.Instance, error) {
	exec := r.db.executor(ctx)

	var (
		inst    entity.Instance
		payload string
	)
	err := exec.QueryRowContext(ctx, `
		SELECT id, kind, state, held_from, revision, payload, created_at, updated_at
		FROM instances
		WHERE id = ?
	`, id).Scan(&inst.ID, &inst.Kind, &inst.State, &inst.HeldFrom, &inst.Revision, &payload, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.String("instance_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	inst.CreatedAt = inst.CreatedAt.UTC()
	inst.UpdatedAt = inst.UpdatedAt.UTC()

	if err := decodePayload(&inst, payload); err != nil {
		return nil, err
	}
	if inst.History, err = r.loadHistory(ctx, exec, id); err != nil {
		return nil, err
	}
	if inst.Order != nil {
		if inst.Order.Ledger.Payments, err = r.loadPayments(ctx, exec, id); err != nil {
			return nil, err
		}
		if inst.Order.Invoices, err = r.loadInvoices(ctx, exec, id); err != nil {
			return nil, err
		}
		if err := inst.Order.Reprice(); err != nil {
			return nil, fmt.Errorf("stored order %s does not price: %w", id, err)
		}
	}

	if err := inst.CheckInvariants(); err != nil {
		r.logger.Error("Stored instance violates invariants", zap.String("instance_id", id), zap.Error(err))
		return nil, fmt.Errorf("corrupt instance: %w", err)
	}
	return &inst, nil
}

// List returns instances matching the filter, newest first
func (r *InstanceRepository) List(ctx context.Context, filter port.ListFilter, page port.Page) ([]*entity.Instance, error) {
	page = page.Normalize()

	var (
		where []string
		args  []interface{}
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}
	query := "SELECT id FROM instances"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, page.Limit, page.Offset)

	rows, err := r.db.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan instance id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instances: %w", err)
	}

	instances := make([]*entity.Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Save writes inst if the stored revision equals expectedRevision
func (r *InstanceRepository) Save(ctx context.Context, inst *entity.Instance, expectedRevision int64) error {
	payload, err := encodePayload(inst)
	if err != nil {
		return err
	}
	next := expectedRevision + 1

	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.executor(txCtx)
		res, err := exec.ExecContext(txCtx, `
			UPDATE instances
			SET state = ?, held_from = ?, revision = ?, payload = ?, updated_at = ?
			WHERE id = ? AND revision = ?
		`, inst.State, inst.HeldFrom, next, payload, inst.UpdatedAt.UTC(), inst.ID, expectedRevision)
		if err != nil {
			return fmt.Errorf("failed to update instance: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return r.missOrConflict(txCtx, exec, inst.ID, expectedRevision)
		}

		var stored int64
		if err := exec.QueryRowContext(txCtx,
			"SELECT COALESCE(MAX(sequence_number), 0) FROM instance_history WHERE instance_id = ?", inst.ID,
		).Scan(&stored); err != nil {
			return fmt.Errorf("failed to read history length: %w", err)
		}
		if int64(len(inst.History)) < stored {
			return fmt.Errorf("instance %s: history cannot shrink from %d to %d entries", inst.ID, stored, len(inst.History))
		}
		return r.writeChildren(txCtx, inst, stored)
	})
	if err != nil {
		if !errors.Is(err, workflow.ErrConcurrentModification) {
			r.logger.Error("Failed to save instance", zap.String("instance_id", inst.ID), zap.Error(err))
		}
		return err
	}

	inst.Revision = next
	return nil
}

func (r *InstanceRepository) missOrConflict(ctx context.Context, exec executor, id string, expected int64) error {
	var current int64
	err := exec.QueryRowContext(ctx, "SELECT revision FROM instances WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read revision: %w", err)
	}
	return fmt.Errorf("%w: %s expected revision %d, found %d", workflow.ErrConcurrentModification, id, expected, current)
}

// writeChildren appends history after storedHistory and upserts payments and invoices
func (r *InstanceRepository) writeChildren(ctx context.Context, inst *entity.Instance, storedHistory int64) error {
	exec := r.db.executor(ctx)

	for _, h := range inst.History[storedHistory:] {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO instance_history (instance_id, sequence_number, from_state, to_state, event, actor, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, inst.ID, h.Sequence, h.FromState, h.ToState, h.Event, h.Actor, h.Notes, h.Timestamp.UTC())
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: history entry %d of %s already written", workflow.ErrConcurrentModification, h.Sequence, inst.ID)
			}
			return fmt.Errorf("failed to insert history: %w", err)
		}
	}

	if inst.Order == nil {
		return nil
	}

	for pos, p := range inst.Order.Ledger.Payments {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, position, amount, method, external_ref, status, refunded_amount, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				status = excluded.status,
				refunded_amount = excluded.refunded_amount,
				updated_at = excluded.updated_at
		`, p.ID, inst.ID, pos, p.Amount.Minor(), p.Method, p.ExternalRef, p.Status, p.RefundedAmount.Minor(),
			p.CreatedAt.UTC(), p.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to write payment %s: %w", p.ID, err)
		}
	}

	// Voids are stored before new invoices so the active-invoice index holds
	for pos, inv := range inst.Order.Invoices {
		totals, err := json.Marshal(inv.Totals)
		if err != nil {
			return fmt.Errorf("failed to encode invoice totals: %w", err)
		}
		var voidedAt sql.NullTime
		if inv.VoidedAt != nil {
			voidedAt = sql.NullTime{Time: inv.VoidedAt.UTC(), Valid: true}
		}
		_, err = exec.ExecContext(ctx, `
			INSERT INTO invoices (id, order_id, position, invoice_number, irn, customer_id, totals, issued_at, voided, voided_at, void_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				voided = excluded.voided,
				voided_at = excluded.voided_at,
				void_reason = excluded.void_reason
		`, inv.ID, inst.ID, pos, inv.Number, inv.IRN, inv.CustomerID, string(totals), inv.IssuedAt.UTC(),
			inv.Voided, voidedAt, inv.VoidReason)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: order %s", workflow.ErrInvoiceAlreadyExists, inst.ID)
			}
			return fmt.Errorf("failed to write invoice %s: %w", inv.ID, err)
		}
	}
	return nil
}

func (r *InstanceRepository) loadHistory(ctx context.Context, exec executor, id string) ([]entity.HistoryEntry, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT sequence_number, from_state, to_state, event, actor, notes, created_at
		FROM instance_history
		WHERE instance_id = ?
		ORDER BY sequence_number
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []entity.HistoryEntry
	for rows.Next() {
		var h entity.HistoryEntry
		if err := rows.Scan(&h.Sequence, &h.FromState, &h.ToState, &h.Event, &h.Actor, &h.Notes, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.Timestamp = h.Timestamp.UTC()
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *InstanceRepository) loadPayments(ctx context.Context, exec executor, orderID string) ([]ledger.Payment, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT id, amount, method, external_ref, status, refunded_amount, created_at, updated_at
		FROM payments
		WHERE order_id = ?
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p                ledger.Payment
			amount, refunded int64
		)
		if err := rows.Scan(&p.ID, &amount, &p.Method, &p.ExternalRef, &p.Status, &refunded, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = money.FromMinor(amount)
		p.RefundedAmount = money.FromMinor(refunded)
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *InstanceRepository) loadInvoices(ctx context.Context, exec executor, orderID string) ([]entity.Invoice, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT id, invoice_number, irn, customer_id, totals, issued_at, voided, voided_at, void_reason
		FROM invoices
		WHERE order_id = ?
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []entity.Invoice
	for rows.Next() {
		var (
			inv      entity.Invoice
			totals   string
			voidedAt sql.NullTime
		)
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.IRN, &inv.CustomerID, &totals, &inv.IssuedAt,
			&inv.Voided, &voidedAt, &inv.VoidReason); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		if err := json.Unmarshal([]byte(totals), &inv.Totals); err != nil {
			return nil, fmt.Errorf("failed to decode invoice totals: %w", err)
		}
		inv.OrderID = orderID
		inv.IssuedAt = inv.IssuedAt.UTC()
		if voidedAt.Valid {
			t := voidedAt.Time.UTC()
			inv.VoidedAt = &t
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func encodePayload(inst *entity.Instance) (string, error) {
	var doc payloadDocument
	switch {
	case inst.Order != nil:
		doc.Order = &orderDocument{
			CustomerID: inst.Order.CustomerID,
			Items:      inst.Order.Items,
			Shipping:   inst.Order.Shipping,
			Policy:     inst.Order.Ledger.Policy,
		}
	case inst.Installation != nil:
		doc.Installation = inst.Installation
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload of %s: %w", inst.ID, err)
	}
	return string(data), nil
}

func decodePayload(inst *entity.Instance, raw string) error {
	var doc payloadDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("failed to decode payload of %s: %w", inst.ID, err)
	}
	if doc.Order != nil {
		inst.Order = &entity.OrderPayload{
			CustomerID: doc.Order.CustomerID,
			Items:      doc.Order.Items,
			Shipping:   doc.Order.Shipping,
			Ledger:     ledger.New(doc.Order.Policy),
		}
	}
	inst.Installation = doc.Installation
	return nil
}
