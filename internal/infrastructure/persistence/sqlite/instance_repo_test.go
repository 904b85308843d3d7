package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/application/workflow"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/garyjia/fulfillment-engine/internal/domain/pricing"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"github.com/garyjia/fulfillment-engine/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var createdAt = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*InstanceRepository, *DB) {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	raw, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "engine.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	require.NoError(t, database.NewMigrator(raw, logger).Run(ctx, database.EmbeddedMigrations()))

	db := NewDB(raw.DB, logger)
	return NewInstanceRepository(db, logger), db
}

func testOrder(t *testing.T, id string) *entity.Instance {
	t.Helper()
	payload, err := entity.NewOrderPayload("CUST-1", []pricing.LineItem{{
		ProductID:       "RO-100",
		Description:     "RO purifier",
		Quantity:        2,
		UnitPrice:       money.MustParse("1000"),
		DiscountPercent: decimal.NewFromInt(10),
		GSTRate:         decimal.NewFromInt(18),
	}}, money.Zero, ledger.Policy{AllowOverpayment: true})
	require.NoError(t, err)
	return entity.NewOrder(id, domainwf.StateNew, payload, "alice", createdAt)
}

type stubIssuer struct{}

func (stubIssuer) Issue(ctx context.Context, req port.IssueRequest) (*port.IssuedInvoice, error) {
	return &port.IssuedInvoice{InvoiceNumber: "INV-" + req.IdempotencyKey, IRN: "irn-" + req.IdempotencyKey}, nil
}

func TestInstanceRepository_CreateAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	inst := testOrder(t, "ord-1")

	require.NoError(t, repo.Create(ctx, inst))
	assert.Equal(t, int64(1), inst.Revision)

	got, err := repo.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, entity.KindOrder, got.Kind)
	assert.Equal(t, domainwf.StateNew, got.State)
	assert.Equal(t, int64(1), got.Revision)
	assert.True(t, createdAt.Equal(got.CreatedAt))
	require.Len(t, got.History, 1)
	assert.Equal(t, "alice", got.History[0].Actor)
	assert.Equal(t, money.MustParse("2124"), got.Order.Totals.GrandTotal)
	assert.Equal(t, "RO purifier", got.Order.Items[0].Description)
	assert.True(t, got.Order.Ledger.Policy.AllowOverpayment)

	assert.Error(t, repo.Create(ctx, testOrder(t, "ord-1")), "duplicate id")
}

func TestInstanceRepository_GetMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), "nope")

	assert.ErrorIs(t, err, domainwf.ErrInstanceNotFound)
}

func TestInstanceRepository_SaveChecksRevision(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testOrder(t, "ord-1")))

	first, err := repo.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "ord-1")
	require.NoError(t, err)

	first.AppendHistory(first.State, domainwf.StateConfirmed, domainwf.To(domainwf.StateConfirmed), "a", "", createdAt.Add(time.Minute))
	require.NoError(t, repo.Save(ctx, first, 1))
	assert.Equal(t, int64(2), first.Revision)

	second.AppendHistory(second.State, domainwf.StateCancelled, domainwf.To(domainwf.StateCancelled), "b", "dup", createdAt.Add(time.Minute))
	err = repo.Save(ctx, second, 1)
	assert.ErrorIs(t, err, domainwf.ErrConcurrentModification)

	stored, err := repo.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateConfirmed, stored.State)
	assert.Len(t, stored.History, 2)

	assert.ErrorIs(t, repo.Save(ctx, testOrder(t, "ghost"), 1), domainwf.ErrInstanceNotFound)
}

func TestInstanceRepository_EngineRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	engine := workflow.NewEngine(repo, workflow.WithDefinition(entity.KindOrder, workflow.NewOrderDefinition()))

	_, err := engine.Create(ctx, testOrder(t, "ord-1"))
	require.NoError(t, err)

	inst, err := engine.Apply(ctx, entity.KindOrder, "ord-1", "pos", workflow.RecordPayment(money.MustParse("2124"), "CARD", "tx-1"))
	require.NoError(t, err)
	pid := inst.Order.Ledger.Payments[0].ID
	_, err = engine.Apply(ctx, entity.KindOrder, "ord-1", "pos", workflow.CapturePayment(pid))
	require.NoError(t, err)

	_, err = engine.Transition(ctx, entity.KindOrder, "ord-1", domainwf.To(domainwf.StateConfirmed), "ops", entity.TransitionInput{})
	require.NoError(t, err)
	_, err = engine.Apply(ctx, entity.KindOrder, "ord-1", "acct", workflow.GenerateInvoice(stubIssuer{}))
	require.NoError(t, err)
	_, err = engine.Apply(ctx, entity.KindOrder, "ord-1", "acct", workflow.VoidInvoice("wrong address"))
	require.NoError(t, err)
	_, err = engine.Apply(ctx, entity.KindOrder, "ord-1", "acct", workflow.GenerateInvoice(stubIssuer{}))
	require.NoError(t, err)

	for _, s := range []domainwf.State{domainwf.StateAllocated, domainwf.StatePicklistCreated, domainwf.StatePicking,
		domainwf.StatePicked, domainwf.StatePacking, domainwf.StatePacked, domainwf.StateManifested,
		domainwf.StateReadyToShip, domainwf.StateShipped} {
		_, err = engine.Transition(ctx, entity.KindOrder, "ord-1", domainwf.To(s), "wh", entity.TransitionInput{})
		require.NoError(t, err)
	}
	_, err = engine.Transition(ctx, entity.KindOrder, "ord-1", domainwf.To(domainwf.StateCancelled), "bob",
		entity.TransitionInput{Reason: "customer refused"})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, "ord-1")
	require.NoError(t, err)

	assert.Equal(t, domainwf.StateCancelled, got.State)
	assert.NoError(t, got.CheckInvariants())
	last, _ := got.LastEntry()
	assert.Equal(t, "customer refused", last.Notes)
	assert.Equal(t, int64(len(got.History)), last.Sequence)

	require.Len(t, got.Order.Ledger.Payments, 1)
	assert.Equal(t, ledger.PaymentCaptured, got.Order.Ledger.Payments[0].Status)
	assert.Equal(t, ledger.StatusPaid, got.Order.PaymentStatus())

	require.Len(t, got.Order.Invoices, 2)
	assert.True(t, got.Order.Invoices[0].Voided)
	require.NotNil(t, got.Order.Invoices[0].VoidedAt)
	assert.Equal(t, "wrong address", got.Order.Invoices[0].VoidReason)
	active, ok := got.Order.ActiveInvoice()
	require.True(t, ok)
	assert.Equal(t, "INV-ord-1#1", active.Number)
	assert.Equal(t, money.MustParse("2124"), active.Totals.GrandTotal)

	_, err = engine.Transition(ctx, entity.KindOrder, "ord-1", domainwf.To(domainwf.StateCancelled), "bob",
		entity.TransitionInput{Reason: "again"})
	assert.ErrorIs(t, err, domainwf.ErrIllegalTransition)
}

func TestInstanceRepository_Installation(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	inst := entity.NewInstallation("ins-1", &entity.InstallationPayload{
		CustomerID: "CUST-1",
		ProductID:  "RO-100",
		Address:    "12 MG Road",
		Schedule:   &entity.Schedule{Date: createdAt.AddDate(0, 0, 2), Slot: "AM"},
	}, "ops", createdAt)
	require.NoError(t, repo.Create(ctx, inst))

	got, err := repo.GetByID(ctx, "ins-1")
	require.NoError(t, err)
	assert.Nil(t, got.Order)
	require.NotNil(t, got.Installation)
	assert.Equal(t, "12 MG Road", got.Installation.Address)
	assert.Equal(t, "AM", got.Installation.Schedule.Slot)
}

func TestInstanceRepository_List(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for i, id := range []string{"ord-a", "ord-b", "ord-c"} {
		o := testOrder(t, id)
		o.CreatedAt = createdAt.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(ctx, o))
	}
	require.NoError(t, repo.Create(ctx, entity.NewInstallation("ins-1",
		&entity.InstallationPayload{CustomerID: "C"}, "ops", createdAt)))

	orders, err := repo.List(ctx, port.ListFilter{Kind: entity.KindOrder}, port.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ord-c", orders[0].ID)
	assert.Equal(t, "ord-b", orders[1].ID)

	rest, err := repo.List(ctx, port.ListFilter{Kind: entity.KindOrder}, port.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "ord-a", rest[0].ID)

	newInstallations, err := repo.List(ctx, port.ListFilter{Kind: entity.KindInstallation, State: domainwf.StateNew}, port.Page{})
	require.NoError(t, err)
	assert.Len(t, newInstallations, 1)
}

func TestDB_NestedTransactionJoinsOuter(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := repo.Create(txCtx, testOrder(t, "ord-1")); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = repo.GetByID(ctx, "ord-1")
	assert.ErrorIs(t, err, domainwf.ErrInstanceNotFound)
}
