package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/events"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	store    *repositories.MemoryStore
	bus      *events.LocalBus
	notifier *Notifier

	wallets  *WalletService
	products *ProductService
	orders   *OrderService
	refunds  *RefundEngine
	disputes *DisputeService
	payouts  *PayoutService
	audit    *AuditService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()
	store := repositories.NewMemoryStore()
	bus := events.NewLocalBus()
	notifier := NewNotifier(bus, log)
	t.Cleanup(notifier.Wait)

	inventory := NewInventoryReservation(log)
	ledger := NewWalletLedger(log)
	escrow := NewEscrowLedger(ledger, log)
	refunds := NewRefundEngine(store, escrow, notifier, log)

	return &harness{
		store:    store,
		bus:      bus,
		notifier: notifier,
		wallets:  NewWalletService(store, ledger, notifier, decimal.NewFromInt(10000), log),
		products: NewProductService(store, inventory, notifier, log),
		orders:   NewOrderService(store, inventory, ledger, escrow, refunds, notifier, log),
		refunds:  refunds,
		disputes: NewDisputeService(store, escrow, refunds, notifier, log),
		payouts:  NewPayoutService(store, ledger, NewSimulatedGateway(decimal.NewFromInt(1000)), notifier, log),
		audit:    NewAuditService(store),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newActor(role string) models.Actor {
	return models.Actor{AccountID: uuid.New(), Role: role}
}

var admin = models.Actor{AccountID: uuid.MustParse("00000000-0000-0000-0000-0000000000ad"), Role: models.RoleAdmin}

func (h *harness) fund(t *testing.T, a models.Actor, amount string) {
	t.Helper()
	_, err := h.wallets.Deposit(context.Background(), a, dec(amount), models.DepositMethodCard)
	require.NoError(t, err)
}

func (h *harness) listing(t *testing.T, seller models.Actor, price string, qty int) *models.Product {
	t.Helper()
	p, err := h.products.CreateProduct(context.Background(), seller, CreateProductInput{Title: "widget", Price: dec(price), Quantity: qty})
	require.NoError(t, err)
	return p
}

func (h *harness) buy(t *testing.T, buyer models.Actor, productID uuid.UUID, qty int) *models.Order {
	t.Helper()
	o, err := h.orders.PlaceOrder(context.Background(), buyer, PlaceOrderInput{Items: []OrderLine{{ProductID: productID, Quantity: qty}}})
	require.NoError(t, err)
	return o
}

func (h *harness) wallet(t *testing.T, a models.Actor) *models.Wallet {
	t.Helper()
	w, err := h.wallets.GetWallet(context.Background(), a)
	require.NoError(t, err)
	return w
}

// assertLedgerConsistent checks both buckets against the sum of their transactions.
func (h *harness) assertLedgerConsistent(t *testing.T, accounts ...models.Actor) {
	t.Helper()
	for _, a := range accounts {
		w := h.wallet(t, a)
		txs, err := h.wallets.ListTransactions(context.Background(), a, a.AccountID, 100, 0)
		require.NoError(t, err)

		balance, pending := decimal.Zero, decimal.Zero
		for _, tx := range txs {
			if tx.Bucket == models.BucketPending {
				pending = pending.Add(tx.Amount)
			} else {
				balance = balance.Add(tx.Amount)
			}
		}
		assert.True(t, balance.Equal(w.Balance), "balance %s, ledger sum %s", w.Balance, balance)
		assert.True(t, pending.Equal(w.PendingBalance), "pending %s, ledger sum %s", w.PendingBalance, pending)
		assert.False(t, w.Balance.IsNegative())
		assert.False(t, w.PendingBalance.IsNegative())
	}
}

func (h *harness) escrowOf(t *testing.T, a models.Actor, orderID uuid.UUID) *models.Escrow {
	t.Helper()
	e, err := h.orders.GetEscrow(context.Background(), a, orderID)
	require.NoError(t, err)
	return e
}

func TestPlaceOrder_HoldsPaymentInEscrow(t *testing.T) {
	h := newHarness(t)
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "80", 3)

	o := h.buy(t, buyer, p.ID, 1)

	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.True(t, dec("80").Equal(o.TotalAmount))
	assert.True(t, dec("20").Equal(h.wallet(t, buyer).Balance))

	e := h.escrowOf(t, buyer, o.ID)
	assert.Equal(t, models.EscrowStatusHeld, e.Status)
	assert.True(t, dec("80").Equal(e.Amount))

	stock, err := h.products.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stock.Quantity)
	h.assertLedgerConsistent(t, buyer)
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	h := newHarness(t)
	seller := newActor(models.RoleSeller)
	p := h.listing(t, seller, "10", 1)

	const buyers = 8
	actors := make([]models.Actor, buyers)
	for i := range actors {
		actors[i] = newActor(models.RoleBuyer)
		h.fund(t, actors[i], "50")
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := range actors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.orders.PlaceOrder(context.Background(), actors[i], PlaceOrderInput{
				Items: []OrderLine{{ProductID: p.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrInsufficientInventory)
	}
	assert.Equal(t, 1, succeeded)

	stock, err := h.products.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Quantity)
	h.assertLedgerConsistent(t, actors...)
}

func TestPlaceOrder_InsufficientFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "10")
	p := h.listing(t, seller, "25", 4)

	_, err := h.orders.PlaceOrder(context.Background(), buyer, PlaceOrderInput{Items: []OrderLine{{ProductID: p.ID, Quantity: 1}}})
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	stock, err := h.products.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stock.Quantity)

	orders, err := h.orders.ListOrders(context.Background(), buyer, false, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.True(t, dec("10").Equal(h.wallet(t, buyer).Balance))
}

func TestPlaceOrder_Validation(t *testing.T) {
	h := newHarness(t)
	buyer, seller, other := newActor(models.RoleBuyer), newActor(models.RoleSeller), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p1 := h.listing(t, seller, "5", 10)
	p2 := h.listing(t, other, "5", 10)

	cases := []struct {
		name  string
		actor models.Actor
		lines []OrderLine
	}{
		{"no lines", buyer, nil},
		{"zero quantity", buyer, []OrderLine{{ProductID: p1.ID, Quantity: 0}}},
		{"too many units", buyer, []OrderLine{{ProductID: p1.ID, Quantity: models.MaxItemQuantity + 1}}},
		{"two sellers", buyer, []OrderLine{{ProductID: p1.ID, Quantity: 1}, {ProductID: p2.ID, Quantity: 1}}},
		{"own product", seller, []OrderLine{{ProductID: p1.ID, Quantity: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.orders.PlaceOrder(context.Background(), tc.actor, PlaceOrderInput{Items: tc.lines})
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestPlaceOrder_MergesDuplicateLines(t *testing.T) {
	h := newHarness(t)
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "7.50", 10)

	o, err := h.orders.PlaceOrder(context.Background(), buyer, PlaceOrderInput{Items: []OrderLine{
		{ProductID: p.ID, Quantity: 2},
		{ProductID: p.ID, Quantity: 3},
	}})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 5, o.Items[0].Quantity)
	assert.True(t, dec("37.50").Equal(o.TotalAmount))
}

func TestOrderLifecycle_CompleteReleasesToSeller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "40", 2)
	o := h.buy(t, buyer, p.ID, 1)

	_, err := h.orders.Ship(ctx, buyer, o.ID, "TRK-1")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.orders.Ship(ctx, seller, o.ID, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	o, err = h.orders.Ship(ctx, seller, o.ID, "TRK-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, o.Status)
	require.NotNil(t, o.TrackingNumber)
	assert.Equal(t, "TRK-1", *o.TrackingNumber)

	o, err = h.orders.ConfirmDelivery(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, o.Status)

	o, err = h.orders.Complete(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)

	assert.Equal(t, models.EscrowStatusReleased, h.escrowOf(t, seller, o.ID).Status)
	w := h.wallet(t, seller)
	assert.True(t, dec("40").Equal(w.PendingBalance))
	assert.True(t, w.Balance.IsZero())
	h.assertLedgerConsistent(t, buyer, seller)

	_, err = h.orders.Cancel(ctx, buyer, o.ID, "too late")
	var te *models.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.OrderStatusCompleted, te.From)
}

func TestOrderLifecycle_InvalidTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "10", 5)
	o := h.buy(t, buyer, p.ID, 1)

	_, err := h.orders.ConfirmDelivery(ctx, buyer, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = h.orders.Complete(ctx, buyer, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	e := h.escrowOf(t, buyer, o.ID)
	assert.Equal(t, models.EscrowStatusHeld, e.Status)
	assert.True(t, dec("90").Equal(h.wallet(t, buyer).Balance))
}

func TestCancel_RefundsAndRestocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "30", 3)
	o := h.buy(t, buyer, p.ID, 2)

	stranger := newActor(models.RoleBuyer)
	_, err := h.orders.Cancel(ctx, stranger, o.ID, "nope")
	assert.ErrorIs(t, err, models.ErrForbidden)

	o, err = h.orders.Cancel(ctx, buyer, o.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	require.NotNil(t, o.CancelReason)

	assert.True(t, dec("100").Equal(h.wallet(t, buyer).Balance))
	assert.Equal(t, models.EscrowStatusRefunded, h.escrowOf(t, buyer, o.ID).Status)

	stock, err := h.products.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stock.Quantity)

	refunds, err := h.refunds.ListForOrder(ctx, buyer, o.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, models.RefundTypeFull, refunds[0].Type)
	h.assertLedgerConsistent(t, buyer, seller)
}

func TestAdminRefund_PaidOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "50")
	p := h.listing(t, seller, "20", 1)
	o := h.buy(t, buyer, p.ID, 1)

	_, err := h.orders.AdminRefund(ctx, seller, o.ID, "fraud")
	assert.ErrorIs(t, err, models.ErrForbidden)

	o, err = h.orders.AdminRefund(ctx, admin, o.ID, "fraud")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, o.Status)
	assert.True(t, dec("50").Equal(h.wallet(t, buyer).Balance))

	stock, err := h.products.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock.Quantity)
}

func TestRefundOrder_PartialThenOverRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "80", 1)
	o := h.buy(t, buyer, p.ID, 1)

	r, err := h.refunds.RefundOrder(ctx, admin, o.ID, dec("30"), "damaged box")
	require.NoError(t, err)
	assert.Equal(t, models.RefundTypePartial, r.Type)

	_, err = h.refunds.RefundOrder(ctx, admin, o.ID, dec("60"), "again")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	_, err = h.refunds.RefundOrder(ctx, admin, o.ID, dec("0.001"), "fractional")
	assert.ErrorIs(t, err, models.ErrValidation)

	r, err = h.refunds.RefundOrder(ctx, admin, o.ID, dec("50"), "rest")
	require.NoError(t, err)
	assert.Equal(t, models.RefundTypeFull, r.Type)

	e := h.escrowOf(t, buyer, o.ID)
	assert.Equal(t, models.EscrowStatusRefunded, e.Status)
	assert.True(t, dec("80").Equal(e.TotalRefunded))

	_, err = h.refunds.RefundOrder(ctx, admin, o.ID, dec("1"), "exhausted")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	o, err = h.orders.GetOrder(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	h.assertLedgerConsistent(t, buyer)
}

func TestDispute_PartialRefundThenSecondRefundRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "80", 1)
	o := h.buy(t, buyer, p.ID, 1)

	d, err := h.disputes.Open(ctx, buyer, o.ID, "item never arrived")
	require.NoError(t, err)
	assert.Equal(t, seller.AccountID, d.SellerID)

	amount := dec("50")
	d, err = h.disputes.Resolve(ctx, admin, d.ID, ResolveInput{RefundBuyer: true, Amount: &amount, Resolution: "half back"})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolvedBuyer, d.Status)

	for i := 0; i < 3; i++ {
		_, err = h.refunds.RefundOrder(ctx, admin, o.ID, dec("10"), "another slice")
		assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	}

	e := h.escrowOf(t, buyer, o.ID)
	assert.Equal(t, models.EscrowStatusPartialRefunded, e.Status)
	assert.True(t, dec("50").Equal(e.TotalRefunded))
	assert.True(t, dec("70").Equal(h.wallet(t, buyer).Balance))

	o, err = h.orders.GetOrder(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, o.Status)
}

func TestRefundOrder_RejectedWhileDisputed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "80", 1)
	o := h.buy(t, buyer, p.ID, 1)

	_, err := h.disputes.Open(ctx, buyer, o.ID, "broken on arrival")
	require.NoError(t, err)

	_, err = h.refunds.RefundOrder(ctx, admin, o.ID, dec("10"), "goodwill")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	e := h.escrowOf(t, buyer, o.ID)
	assert.Equal(t, models.EscrowStatusHeld, e.Status)
	assert.True(t, e.TotalRefunded.IsZero())
	assert.True(t, dec("20").Equal(h.wallet(t, buyer).Balance))
	h.assertLedgerConsistent(t, buyer)
}

func TestDispute_ResolvesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "60", 1)
	o := h.buy(t, buyer, p.ID, 1)

	d, err := h.disputes.Open(ctx, buyer, o.ID, "wrong colour")
	require.NoError(t, err)

	_, err = h.disputes.Open(ctx, buyer, o.ID, "again")
	assert.Error(t, err)

	_, err = h.disputes.Resolve(ctx, buyer, d.ID, ResolveInput{Resolution: "mine"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	d, err = h.disputes.Resolve(ctx, admin, d.ID, ResolveInput{Resolution: "seller is right"})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolvedSeller, d.Status)
	assert.True(t, dec("60").Equal(h.wallet(t, seller).PendingBalance))

	_, err = h.disputes.Resolve(ctx, admin, d.ID, ResolveInput{RefundBuyer: true, Resolution: "changed mind"})
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)

	_, err = h.disputes.AddMessage(ctx, buyer, d.ID, "but why")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)

	o, err = h.orders.GetOrder(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	h.assertLedgerConsistent(t, buyer, seller)
}

func TestDispute_MessagesAndReleaseRemainder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, seller := newActor(models.RoleBuyer), newActor(models.RoleSeller)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "80", 1)
	o := h.buy(t, buyer, p.ID, 1)
	o, err := h.orders.Ship(ctx, seller, o.ID, "TRK-9")
	require.NoError(t, err)

	d, err := h.disputes.Open(ctx, buyer, o.ID, "scratched")
	require.NoError(t, err)

	_, err = h.orders.ConfirmDelivery(ctx, buyer, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	outsider := newActor(models.RoleBuyer)
	_, err = h.disputes.AddMessage(ctx, outsider, d.ID, "hello")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = h.disputes.AddMessage(ctx, seller, d.ID, "it left the warehouse intact")
	require.NoError(t, err)

	got, err := h.disputes.GetDispute(ctx, buyer, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusUnderReview, got.Status)
	require.Len(t, got.Messages, 1)

	amount := dec("20")
	_, err = h.disputes.Resolve(ctx, admin, d.ID, ResolveInput{
		RefundBuyer:      true,
		Amount:           &amount,
		Resolution:       "partial credit for the scratch",
		ReleaseRemainder: true,
	})
	require.NoError(t, err)

	assert.True(t, dec("40").Equal(h.wallet(t, buyer).Balance))
	assert.True(t, dec("60").Equal(h.wallet(t, seller).PendingBalance))
	assert.Equal(t, models.EscrowStatusReleased, h.escrowOf(t, buyer, o.ID).Status)
	h.assertLedgerConsistent(t, buyer, seller)

	entries, err := h.audit.ListAudit(ctx, admin, models.EntityDispute, d.ID, 10, 0)
	require.NoError(t, err)
	resolved := 0
	for _, e := range entries {
		if e.Action == "dispute_"+models.DisputeStatusResolvedBuyer {
			resolved++
		}
	}
	assert.Equal(t, 1, resolved)
}

// earn puts amount into the seller's pending balance through a completed order.
func (h *harness) earn(t *testing.T, seller models.Actor, amount string) {
	t.Helper()
	ctx := context.Background()
	buyer := newActor(models.RoleBuyer)
	h.fund(t, buyer, amount)
	p := h.listing(t, seller, amount, 1)
	o := h.buy(t, buyer, p.ID, 1)
	_, err := h.orders.Ship(ctx, seller, o.ID, "TRK")
	require.NoError(t, err)
	_, err = h.orders.ConfirmDelivery(ctx, buyer, o.ID)
	require.NoError(t, err)
	_, err = h.orders.Complete(ctx, buyer, o.ID)
	require.NoError(t, err)
}

func TestPayout_RequestAndSettle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := newActor(models.RoleSeller)
	h.earn(t, seller, "40")

	_, err := h.payouts.Request(ctx, seller, PayoutRequest{Amount: dec("40.01"), Method: models.PayoutMethodPaypal})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	_, err = h.payouts.Request(ctx, seller, PayoutRequest{Amount: dec("10"), Method: "cheque"})
	assert.ErrorIs(t, err, models.ErrValidation)

	p, err := h.payouts.Request(ctx, seller, PayoutRequest{Amount: dec("40"), Method: models.PayoutMethodBankTransfer})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusProcessing, p.Status)
	assert.True(t, h.wallet(t, seller).PendingBalance.IsZero())

	n, err := h.payouts.SettleDue(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err = h.payouts.GetPayout(ctx, seller, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCompleted, p.Status)
	require.NotNil(t, p.Reference)
	assert.Regexp(t, `^PAY-[0-9A-F]{12}$`, *p.Reference)

	again, err := h.payouts.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, *p.Reference, *again.Reference)
	assert.True(t, h.wallet(t, seller).PendingBalance.IsZero())
	h.assertLedgerConsistent(t, seller)
}

// reentrantGateway settles the same payout again from inside Send, the way a
// second worker would while the first one waits on the gateway.
type reentrantGateway struct {
	mu     sync.Mutex
	sends  int
	settle func(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	inner  *models.Payout
}

func (g *reentrantGateway) Send(ctx context.Context, p *models.Payout) (string, error) {
	g.mu.Lock()
	g.sends++
	first := g.sends == 1
	g.mu.Unlock()
	if first {
		inner, err := g.settle(ctx, p.ID)
		if err != nil {
			return "", err
		}
		g.inner = inner
	}
	return "PAY-" + p.ID.String()[:8], nil
}

func TestPayout_SettleClaimsBeforeSending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := newActor(models.RoleSeller)
	h.earn(t, seller, "40")

	gw := &reentrantGateway{}
	payouts := NewPayoutService(h.store, NewWalletLedger(zap.NewNop()), gw, h.notifier, zap.NewNop())
	gw.settle = payouts.Settle

	p, err := payouts.Request(ctx, seller, PayoutRequest{Amount: dec("40"), Method: models.PayoutMethodCrypto})
	require.NoError(t, err)

	settled, err := payouts.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.sends)
	require.NotNil(t, gw.inner)
	assert.Equal(t, models.PayoutStatusProcessing, gw.inner.Status)
	assert.Equal(t, models.PayoutStatusCompleted, settled.Status)

	n, err := payouts.SettleDue(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, gw.sends)
	assert.True(t, h.wallet(t, seller).PendingBalance.IsZero())
	h.assertLedgerConsistent(t, seller)
}

func TestPayout_FailureIsReversed(t *testing.T) {
	h := newHarness(t)
	h.payouts.gateway = NewSimulatedGateway(dec("10"))
	ctx := context.Background()
	seller := newActor(models.RoleSeller)
	h.earn(t, seller, "40")

	p, err := h.payouts.Request(ctx, seller, PayoutRequest{Amount: dec("40"), Method: models.PayoutMethodCrypto})
	require.NoError(t, err)

	p, err = h.payouts.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.True(t, dec("40").Equal(h.wallet(t, seller).PendingBalance))

	p, err = h.payouts.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailed, p.Status)
	assert.True(t, dec("40").Equal(h.wallet(t, seller).PendingBalance))
	h.assertLedgerConsistent(t, seller)
}

func TestPayout_OnlySellers(t *testing.T) {
	h := newHarness(t)
	buyer := newActor(models.RoleBuyer)
	_, err := h.payouts.Request(context.Background(), buyer, PayoutRequest{Amount: dec("1"), Method: models.PayoutMethodPaypal})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestWallet_Transfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := newActor(models.RoleBuyer), newActor(models.RoleBuyer)
	h.fund(t, a, "100")
	h.fund(t, b, "1")

	out, in, err := h.wallets.Transfer(ctx, a, b.AccountID, dec("35.25"), "rent")
	require.NoError(t, err)
	assert.True(t, dec("-35.25").Equal(out.Amount))
	assert.True(t, dec("35.25").Equal(in.Amount))
	assert.True(t, dec("64.75").Equal(h.wallet(t, a).Balance))
	assert.True(t, dec("36.25").Equal(h.wallet(t, b).Balance))

	_, _, err = h.wallets.Transfer(ctx, a, b.AccountID, dec("1000"), "")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	_, _, err = h.wallets.Transfer(ctx, a, uuid.New(), dec("1"), "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	out, in, err = h.wallets.Transfer(ctx, a, a.AccountID, dec("10"), "self")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, in)
	assert.True(t, dec("64.75").Equal(h.wallet(t, a).Balance))
	h.assertLedgerConsistent(t, a, b)
}

func TestWallet_DepositLimitsAndAdjust(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := newActor(models.RoleBuyer)

	_, err := h.wallets.Deposit(ctx, a, dec("10000.01"), models.DepositMethodCard)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = h.wallets.Deposit(ctx, a, dec("-5"), models.DepositMethodCard)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = h.wallets.Deposit(ctx, a, dec("5"), "gold")
	assert.ErrorIs(t, err, models.ErrValidation)

	h.fund(t, a, "20")

	_, err = h.wallets.AdminAdjust(ctx, a, a.AccountID, dec("5"), "self service")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.wallets.AdminAdjust(ctx, admin, a.AccountID, dec("-25"), "clawback")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	tx, err := h.wallets.AdminAdjust(ctx, admin, a.AccountID, dec("-5"), "chargeback")
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(tx.BalanceAfter))

	_, err = h.wallets.ListTransactions(ctx, newActor(models.RoleBuyer), a.AccountID, 10, 0)
	assert.ErrorIs(t, err, models.ErrForbidden)
	txs, err := h.wallets.ListTransactions(ctx, admin, a.AccountID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.TxTypeAdminAdjustment, txs[0].Type)
	h.assertLedgerConsistent(t, a)
}

func TestProduct_Restock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller, other := newActor(models.RoleSeller), newActor(models.RoleSeller)

	_, err := h.products.CreateProduct(ctx, newActor(models.RoleBuyer), CreateProductInput{Title: "x", Price: dec("1"), Quantity: 1})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.products.CreateProduct(ctx, seller, CreateProductInput{Title: "x", Price: dec("1.999"), Quantity: 1})
	assert.ErrorIs(t, err, models.ErrValidation)

	p := h.listing(t, seller, "3", 0)

	_, err = h.products.Restock(ctx, other, p.ID, 5)
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.products.Restock(ctx, seller, p.ID, 0)
	assert.ErrorIs(t, err, models.ErrValidation)

	p, err = h.products.Restock(ctx, seller, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Quantity)
}

func TestProduct_UpdateAndDeactivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller, other, buyer := newActor(models.RoleSeller), newActor(models.RoleSeller), newActor(models.RoleBuyer)
	h.fund(t, buyer, "100")
	p := h.listing(t, seller, "30", 4)

	price := dec("25")
	_, err := h.products.UpdateProduct(ctx, other, p.ID, UpdateProductInput{Price: &price})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.products.UpdateProduct(ctx, seller, p.ID, UpdateProductInput{})
	assert.ErrorIs(t, err, models.ErrValidation)
	bad := dec("-1")
	_, err = h.products.UpdateProduct(ctx, seller, p.ID, UpdateProductInput{Price: &bad})
	assert.ErrorIs(t, err, models.ErrValidation)

	updated, err := h.products.UpdateProduct(ctx, seller, p.ID, UpdateProductInput{Price: &price})
	require.NoError(t, err)
	assert.True(t, price.Equal(updated.Price))
	assert.Equal(t, 4, updated.Quantity)

	o := h.buy(t, buyer, p.ID, 1)
	assert.True(t, dec("25").Equal(o.TotalAmount))

	_, err = h.products.Deactivate(ctx, other, p.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	deactivated, err := h.products.Deactivate(ctx, seller, p.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
	assert.Equal(t, 3, deactivated.Quantity)

	_, err = h.orders.PlaceOrder(ctx, buyer, PlaceOrderInput{Items: []OrderLine{{ProductID: p.ID, Quantity: 1}}})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NotErrorIs(t, err, models.ErrInsufficientInventory)
	assert.True(t, dec("75").Equal(h.wallet(t, buyer).Balance))

	// orders placed before deactivation still complete
	_, err = h.orders.Ship(ctx, seller, o.ID, "TRK-1")
	require.NoError(t, err)

	active := true
	reactivated, err := h.products.UpdateProduct(ctx, admin, p.ID, UpdateProductInput{IsActive: &active})
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)
	h.buy(t, buyer, p.ID, 1)
}

func TestNotifier_PublishesAfterCommit(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []events.Event
	require.NoError(t, h.bus.Subscribe(ctx, events.StreamLedger, func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	}))

	buyer := newActor(models.RoleBuyer)
	h.fund(t, buyer, "5")
	_, err := h.wallets.Deposit(ctx, buyer, dec("20000"), models.DepositMethodCard)
	require.Error(t, err)
	h.notifier.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, events.EventWalletDeposit, got[0].Type)
	assert.Equal(t, []string{buyer.AccountID.String()}, got[0].Recipients)
}
