package repositories

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps all state in process. Atomic units are serialized and
// applied copy-on-write, so a failed unit leaves no trace. Used by tests and
// STORE_DRIVER=memory.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memState struct {
	accounts  map[uuid.UUID]models.Account
	wallets   map[uuid.UUID]models.Wallet // by account id
	walletTxs []models.WalletTransaction
	products  map[uuid.UUID]models.Product
	orders    map[uuid.UUID]models.Order
	escrows   map[uuid.UUID]models.Escrow // by order id
	refunds   []models.Refund
	disputes  map[uuid.UUID]models.Dispute
	messages  []models.DisputeMessage
	payouts   map[uuid.UUID]models.Payout
	audit     []models.AuditLog
}

func newMemState() *memState {
	return &memState{
		accounts: map[uuid.UUID]models.Account{},
		wallets:  map[uuid.UUID]models.Wallet{},
		products: map[uuid.UUID]models.Product{},
		orders:   map[uuid.UUID]models.Order{},
		escrows:  map[uuid.UUID]models.Escrow{},
		disputes: map[uuid.UUID]models.Dispute{},
		payouts:  map[uuid.UUID]models.Payout{},
	}
}

// clone copies every container. Stored values are replaced, never mutated in place.
func (st *memState) clone() *memState {
	return &memState{
		accounts:  maps.Clone(st.accounts),
		wallets:   maps.Clone(st.wallets),
		walletTxs: slices.Clone(st.walletTxs),
		products:  maps.Clone(st.products),
		orders:    maps.Clone(st.orders),
		escrows:   maps.Clone(st.escrows),
		refunds:   slices.Clone(st.refunds),
		disputes:  maps.Clone(st.disputes),
		messages:  slices.Clone(st.messages),
		payouts:   maps.Clone(st.payouts),
		audit:     slices.Clone(st.audit),
	}
}

type memTx struct {
	st *memState
}

func (t *memTx) Accounts() AccountRepository { return memAccounts{t.st} }
func (t *memTx) Wallets() WalletRepository   { return memWallets{t.st} }
func (t *memTx) Products() ProductRepository { return memProducts{t.st} }
func (t *memTx) Orders() OrderRepository     { return memOrders{t.st} }
func (t *memTx) Escrows() EscrowRepository   { return memEscrows{t.st} }
func (t *memTx) Refunds() RefundRepository   { return memRefunds{t.st} }
func (t *memTx) Disputes() DisputeRepository { return memDisputes{t.st} }
func (t *memTx) Payouts() PayoutRepository   { return memPayouts{t.st} }
func (t *memTx) Audit() AuditRepository      { return memAudit{t.st} }

func page[T any](items []T, limit, offset int) []T {
	limit, offset = normalizePage(limit, offset)
	if offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

// accounts

type memAccounts struct{ st *memState }

func (r memAccounts) Ensure(_ context.Context, id uuid.UUID, role string) (*models.Account, error) {
	now := time.Now().UTC()
	a, ok := r.st.accounts[id]
	if !ok {
		a = models.Account{ID: id, Role: role, CreatedAt: now}
		r.st.accounts[id] = a
	}
	if _, ok := r.st.wallets[id]; !ok {
		r.st.wallets[id] = models.Wallet{ID: uuid.New(), AccountID: id, CreatedAt: now, UpdatedAt: now}
	}
	return &a, nil
}

func (r memAccounts) Get(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := r.st.accounts[id]
	if !ok {
		return nil, models.NotFoundf("account %s", id)
	}
	return &a, nil
}

// wallets

type memWallets struct{ st *memState }

func (r memWallets) GetByAccount(_ context.Context, accountID uuid.UUID) (*models.Wallet, error) {
	w, ok := r.st.wallets[accountID]
	if !ok {
		return nil, models.NotFoundf("wallet for account %s", accountID)
	}
	return &w, nil
}

func (r memWallets) Lock(_ context.Context, accountIDs ...uuid.UUID) error {
	for _, id := range accountIDs {
		if _, ok := r.st.wallets[id]; !ok {
			return models.NotFoundf("wallet")
		}
	}
	return nil
}

func (r memWallets) Apply(_ context.Context, accountID uuid.UUID, bucket string, delta decimal.Decimal) (*models.Wallet, error) {
	w, ok := r.st.wallets[accountID]
	if !ok {
		return nil, models.NotFoundf("wallet for account %s", accountID)
	}
	field, column := &w.Balance, "balance"
	if bucket == models.BucketPending {
		field, column = &w.PendingBalance, "pending_balance"
	}
	next := field.Add(delta)
	if next.IsNegative() {
		return nil, fmt.Errorf("%w: %s of account %s cannot cover %s", models.ErrInsufficientFunds, column, accountID, delta.Neg())
	}
	*field = next
	w.UpdatedAt = time.Now().UTC()
	r.st.wallets[accountID] = w
	return &w, nil
}

func (r memWallets) AppendTransaction(_ context.Context, t *models.WalletTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.st.walletTxs = append(r.st.walletTxs, *t)
	return nil
}

func (r memWallets) ListTransactions(_ context.Context, accountID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	for i := len(r.st.walletTxs) - 1; i >= 0; i-- {
		if r.st.walletTxs[i].AccountID == accountID {
			out = append(out, r.st.walletTxs[i])
		}
	}
	return page(out, limit, offset), nil
}

// products

type memProducts struct{ st *memState }

func (r memProducts) Create(_ context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.st.products[p.ID] = *p
	return nil
}

func (r memProducts) Get(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	return &p, nil
}

func (r memProducts) Update(_ context.Context, id uuid.UUID, patch ProductPatch) (*models.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	p.UpdatedAt = time.Now().UTC()
	r.st.products[id] = p
	return &p, nil
}

func (r memProducts) Decrement(_ context.Context, id uuid.UUID, qty int) (*models.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	if !p.IsActive {
		return nil, models.Validationf("product %q is no longer available", p.Title)
	}
	if p.Quantity < qty {
		return nil, fmt.Errorf("%w: %d unit(s) of %q requested, %d available",
			models.ErrInsufficientInventory, qty, p.Title, p.Quantity)
	}
	p.Quantity -= qty
	p.UpdatedAt = time.Now().UTC()
	r.st.products[id] = p
	return &p, nil
}

func (r memProducts) Increment(_ context.Context, id uuid.UUID, qty int) (*models.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	p.Quantity += qty
	p.UpdatedAt = time.Now().UTC()
	r.st.products[id] = p
	return &p, nil
}

// orders

type memOrders struct{ st *memState }

func (r memOrders) Create(_ context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = slices.Clone(o.Items)
	r.st.orders[o.ID] = stored
	return nil
}

func (r memOrders) Get(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, models.NotFoundf("order %s", id)
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (r memOrders) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.Get(ctx, id)
}

func (r memOrders) UpdateStatus(_ context.Context, id uuid.UUID, from, to string, patch OrderPatch) error {
	o, ok := r.st.orders[id]
	if !ok {
		return models.NotFoundf("order %s", id)
	}
	if o.Status != from {
		return fmt.Errorf("%w: order %s is no longer %s", models.ErrConcurrencyConflict, id, from)
	}
	o.Status = to
	if patch.TrackingNumber != nil {
		o.TrackingNumber = patch.TrackingNumber
	}
	if patch.CancelReason != nil {
		o.CancelReason = patch.CancelReason
	}
	o.UpdatedAt = time.Now().UTC()
	r.st.orders[id] = o
	return nil
}

func (r memOrders) List(_ context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var out []models.Order
	for _, o := range r.st.orders {
		if filter.BuyerID != nil && o.BuyerID != *filter.BuyerID {
			continue
		}
		if filter.SellerID != nil && !o.HasSeller(*filter.SellerID) {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		o.Items = slices.Clone(o.Items)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

// escrows

type memEscrows struct{ st *memState }

func (r memEscrows) Create(_ context.Context, e *models.Escrow) error {
	if _, exists := r.st.escrows[e.OrderID]; exists {
		return fmt.Errorf("%w: escrow for order %s already exists", models.ErrValidation, e.OrderID)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	r.st.escrows[e.OrderID] = *e
	return nil
}

func (r memEscrows) GetByOrder(_ context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	e, ok := r.st.escrows[orderID]
	if !ok {
		return nil, models.NotFoundf("escrow for order %s", orderID)
	}
	return &e, nil
}

func (r memEscrows) GetByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	return r.GetByOrder(ctx, orderID)
}

func (r memEscrows) Update(_ context.Context, e *models.Escrow) error {
	if _, ok := r.st.escrows[e.OrderID]; !ok {
		return models.NotFoundf("escrow %s", e.ID)
	}
	e.UpdatedAt = time.Now().UTC()
	r.st.escrows[e.OrderID] = *e
	return nil
}

// refunds

type memRefunds struct{ st *memState }

func (r memRefunds) Create(_ context.Context, ref *models.Refund) error {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	r.st.refunds = append(r.st.refunds, *ref)
	return nil
}

func (r memRefunds) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	var out []models.Refund
	for _, ref := range r.st.refunds {
		if ref.OrderID == orderID {
			out = append(out, ref)
		}
	}
	return out, nil
}

// disputes

type memDisputes struct{ st *memState }

func (r memDisputes) Create(_ context.Context, d *models.Dispute) error {
	for _, existing := range r.st.disputes {
		if existing.OrderID == d.OrderID {
			return fmt.Errorf("%w: disputes_order_id_key already exists", models.ErrValidation)
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	stored := *d
	stored.Messages = nil
	r.st.disputes[d.ID] = stored
	return nil
}

func (r memDisputes) Get(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, ok := r.st.disputes[id]
	if !ok {
		return nil, models.NotFoundf("dispute")
	}
	return &d, nil
}

func (r memDisputes) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return r.Get(ctx, id)
}

func (r memDisputes) GetByOrder(_ context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	for _, d := range r.st.disputes {
		if d.OrderID == orderID {
			return &d, nil
		}
	}
	return nil, models.NotFoundf("dispute")
}

func (r memDisputes) Update(_ context.Context, d *models.Dispute) error {
	if _, ok := r.st.disputes[d.ID]; !ok {
		return models.NotFoundf("dispute %s", d.ID)
	}
	d.UpdatedAt = time.Now().UTC()
	stored := *d
	stored.Messages = nil
	r.st.disputes[d.ID] = stored
	return nil
}

func (r memDisputes) AddMessage(_ context.Context, m *models.DisputeMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	r.st.messages = append(r.st.messages, *m)
	return nil
}

func (r memDisputes) ListMessages(_ context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	var out []models.DisputeMessage
	for _, m := range r.st.messages {
		if m.DisputeID == disputeID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memDisputes) List(_ context.Context, filter DisputeFilter) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, d := range r.st.disputes {
		if filter.PartyID != nil && !d.IsParty(*filter.PartyID) {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

// payouts

type memPayouts struct{ st *memState }

func (r memPayouts) Create(_ context.Context, p *models.Payout) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.st.payouts[p.ID] = *p
	return nil
}

func (r memPayouts) Get(_ context.Context, id uuid.UUID) (*models.Payout, error) {
	p, ok := r.st.payouts[id]
	if !ok {
		return nil, models.NotFoundf("payout %s", id)
	}
	return &p, nil
}

func (r memPayouts) Claim(_ context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	p, ok := r.st.payouts[id]
	if !ok || p.Status != models.PayoutStatusProcessing {
		return false, nil
	}
	if p.SettlingAt != nil && !p.SettlingAt.Before(staleBefore) {
		return false, nil
	}
	p.SettlingAt = &at
	r.st.payouts[id] = p
	return true, nil
}

func (r memPayouts) MarkCompleted(_ context.Context, id uuid.UUID, reference string, at time.Time) (bool, error) {
	p, ok := r.st.payouts[id]
	if !ok || p.Status != models.PayoutStatusProcessing {
		return false, nil
	}
	p.Status = models.PayoutStatusCompleted
	p.Reference = &reference
	p.CompletedAt = &at
	r.st.payouts[id] = p
	return true, nil
}

func (r memPayouts) MarkFailed(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	p, ok := r.st.payouts[id]
	if !ok || p.Status != models.PayoutStatusProcessing {
		return false, nil
	}
	p.Status = models.PayoutStatusFailed
	p.FailureReason = &reason
	p.CompletedAt = &at
	r.st.payouts[id] = p
	return true, nil
}

func (r memPayouts) ListDue(_ context.Context, processedBefore time.Time, limit int) ([]models.Payout, error) {
	var out []models.Payout
	for _, p := range r.st.payouts {
		if p.Status == models.PayoutStatusProcessing && p.ProcessedAt != nil && !p.ProcessedAt.After(processedBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(*out[j].ProcessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memPayouts) ListBySeller(_ context.Context, sellerID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	var out []models.Payout
	for _, p := range r.st.payouts {
		if p.SellerID == sellerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// audit

type memAudit struct{ st *memState }

func (r memAudit) Log(_ context.Context, entry models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.st.audit = append(r.st.audit, entry)
	return nil
}

func (r memAudit) GetByEntity(_ context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	for i := len(r.st.audit) - 1; i >= 0; i-- {
		l := r.st.audit[i]
		if l.EntityType == entityType && l.EntityID != nil && *l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return page(out, limit, offset), nil
}
