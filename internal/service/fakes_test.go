package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"order-pipeline/internal/config"
	"order-pipeline/internal/entity"
	"order-pipeline/internal/gateway"
	"order-pipeline/internal/repository"
)

type fakeOrderRepo struct {
	orders map[string]*entity.Order
	items  map[string][]entity.OrderItem
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: map[string]*entity.Order{},
		items:  map[string][]entity.OrderItem{},
	}
}

func (r *fakeOrderRepo) put(o entity.Order) { r.orders[o.ID] = &o }

func (r *fakeOrderRepo) Create(ctx context.Context, tx *sql.Tx, o *entity.Order) error {
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) InsertItems(ctx context.Context, tx *sql.Tx, items []entity.OrderItem) error {
	for _, it := range items {
		r.items[it.OrderID] = append(r.items[it.OrderID], it)
	}
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) FindByConversationID(ctx context.Context, cid string) (*entity.Order, error) {
	for _, o := range r.orders {
		if o.ConversationID == cid {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) FindByTracking(ctx context.Context, tn string) (*entity.Order, error) {
	for _, o := range r.orders {
		if o.TrackingNumber == tn && tn != "" {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) ItemsByOrder(ctx context.Context, orderID string) ([]entity.OrderItem, error) {
	return r.items[orderID], nil
}

func (r *fakeOrderRepo) SetPaymentToken(ctx context.Context, id, token string) error {
	if o, ok := r.orders[id]; ok {
		o.PaymentToken = token
	}
	return nil
}

func (r *fakeOrderRepo) UpdateStatusIf(ctx context.Context, id string, from, to entity.OrderStatus, debug *entity.PaymentDebug) (bool, error) {
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if debug != nil {
		o.PaymentDebug = *debug
	}
	return true, nil
}

func (r *fakeOrderRepo) ResolvePayment(ctx context.Context, id string, paid bool, debug entity.PaymentDebug) (bool, error) {
	o, ok := r.orders[id]
	if !ok || o.Status != entity.OrderPending {
		return false, nil
	}
	if paid {
		o.Status = entity.OrderPaid
		o.PaymentStatus = entity.PaymentPaid
	} else {
		o.Status = entity.OrderFailed
	}
	o.PaymentDebug = debug
	return true, nil
}

func (r *fakeOrderRepo) UpdateRefund(ctx context.Context, id string, ps entity.PaymentStatus, st entity.OrderStatus, debug entity.PaymentDebug) error {
	o, ok := r.orders[id]
	if !ok {
		return errors.New("no such order")
	}
	o.PaymentStatus = ps
	o.Status = st
	o.PaymentDebug = debug
	return nil
}

func (r *fakeOrderRepo) UpdateShipping(ctx context.Context, id string, patch repository.ShippingPatch) (*entity.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, errors.New("no such order")
	}
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.Carrier != "" {
		o.Carrier = patch.Carrier
	}
	if patch.TrackingNumber != "" {
		o.TrackingNumber = patch.TrackingNumber
	}
	if patch.TrackingURL != "" {
		o.TrackingURL = patch.TrackingURL
	}
	if patch.ShippedAt != nil && o.ShippedAt == nil {
		t := *patch.ShippedAt
		o.ShippedAt = &t
	}
	if patch.DeliveredAt != nil && o.DeliveredAt == nil {
		t := *patch.DeliveredAt
		o.DeliveredAt = &t
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) FindStalePending(ctx context.Context, before time.Time, withToken bool, limit int) ([]entity.Order, error) {
	var out []entity.Order
	for _, o := range r.orders {
		if o.Status != entity.OrderPending || !o.CreatedAt.Before(before) {
			continue
		}
		if withToken != (o.PaymentToken != "") {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

type fakeCatalogRepo struct {
	products map[string]entity.Product
	lists    []entity.PriceList
	prices   map[string][]entity.ProductPrice // productID|listID
	buyers   map[string]entity.Buyer
	adjusts  map[string]int
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		products: map[string]entity.Product{},
		prices:   map[string][]entity.ProductPrice{},
		buyers:   map[string]entity.Buyer{},
		adjusts:  map[string]int{},
	}
}

func priceKey(productID, listID string) string { return productID + "|" + listID }

func (r *fakeCatalogRepo) ProductsByIDs(ctx context.Context, ids []string) (map[string]entity.Product, error) {
	out := map[string]entity.Product{}
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *fakeCatalogRepo) ActivePriceLists(ctx context.Context, now time.Time) ([]entity.PriceList, error) {
	return r.lists, nil
}

func (r *fakeCatalogRepo) PricesFor(ctx context.Context, productID, listID string) ([]entity.ProductPrice, error) {
	return r.prices[priceKey(productID, listID)], nil
}

func (r *fakeCatalogRepo) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	p, ok := r.products[productID]
	if !ok {
		return 0, fmt.Errorf("no product %s", productID)
	}
	p.Stock += delta
	if p.Stock < 0 {
		p.Stock = 0
	}
	r.products[productID] = p
	r.adjusts[productID] += delta
	return p.Stock, nil
}

func (r *fakeCatalogRepo) BuyerContext(ctx context.Context, userID string) (entity.Buyer, error) {
	if b, ok := r.buyers[userID]; ok {
		return b, nil
	}
	return entity.Buyer{UserID: userID, Role: "individual"}, nil
}

type fakeGateway struct {
	session     *gateway.Session
	sessionErr  error
	result      *gateway.PaymentResult
	retrieveErr error
	cancelErr   error
	refundErr   error

	cancelled []string
	refunds   []refundCall
}

type refundCall struct {
	txID   string
	amount int64
}

func (g *fakeGateway) CreateSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	return g.session, nil
}

func (g *fakeGateway) Retrieve(ctx context.Context, token, conversationID string) (*gateway.PaymentResult, error) {
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	return g.result, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, paymentID string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, paymentID)
	return nil
}

func (g *fakeGateway) Refund(ctx context.Context, transactionID string, amountMinor int64, currency string) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, refundCall{txID: transactionID, amount: amountMinor})
	return nil
}

type fakeEventRepo struct {
	claimed map[string]bool
	journal []entity.WebhookEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{claimed: map[string]bool{}}
}

func (r *fakeEventRepo) Claim(ctx context.Context, source, eventID string) (bool, error) {
	key := source + "|" + eventID
	if r.claimed[key] {
		return true, nil
	}
	r.claimed[key] = true
	return false, nil
}

func (r *fakeEventRepo) Release(ctx context.Context, source, eventID string) error {
	delete(r.claimed, source+"|"+eventID)
	return nil
}

func (r *fakeEventRepo) Journal(ctx context.Context, ev entity.WebhookEvent) error {
	r.journal = append(r.journal, ev)
	return nil
}

type fakeReturnRepo struct {
	returns map[string]*entity.Return
}

func newFakeReturnRepo() *fakeReturnRepo {
	return &fakeReturnRepo{returns: map[string]*entity.Return{}}
}

func (r *fakeReturnRepo) FindByID(ctx context.Context, id string) (*entity.Return, error) {
	ret, ok := r.returns[id]
	if !ok {
		return nil, nil
	}
	cp := *ret
	return &cp, nil
}

func (r *fakeReturnRepo) LatestByOrder(ctx context.Context, orderID string) (*entity.Return, error) {
	var latest *entity.Return
	for _, ret := range r.returns {
		if ret.OrderID != orderID {
			continue
		}
		if latest == nil || ret.CreatedAt.After(latest.CreatedAt) {
			latest = ret
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeReturnRepo) UpdateStatusIf(ctx context.Context, id string, from, to entity.ReturnStatus, receivedAt *time.Time) (bool, error) {
	ret, ok := r.returns[id]
	if !ok || ret.Status != from {
		return false, nil
	}
	ret.Status = to
	if receivedAt != nil && ret.ReceivedAt == nil {
		t := *receivedAt
		ret.ReceivedAt = &t
	}
	return true, nil
}

type fakeAuditRepo struct {
	refundEvents  []string
	notifications []string
}

func (r *fakeAuditRepo) AppendRefundEvent(ctx context.Context, orderID string, amountMinor int64, refundType, transactionID, reason string) error {
	r.refundEvents = append(r.refundEvents, fmt.Sprintf("%s:%s:%d", orderID, refundType, amountMinor))
	return nil
}

func (r *fakeAuditRepo) AppendNotification(ctx context.Context, channel, recipient, template string, ok bool, note string) error {
	r.notifications = append(r.notifications, channel+":"+note)
	return nil
}

type fakeCouponRepo struct {
	coupons map[string]*entity.Coupon
	uses    map[string]int
}

func newFakeCouponRepo() *fakeCouponRepo {
	return &fakeCouponRepo{coupons: map[string]*entity.Coupon{}, uses: map[string]int{}}
}

func (r *fakeCouponRepo) FindByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	c, ok := r.coupons[code]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCouponRepo) IncrementUsage(ctx context.Context, code string) error {
	r.uses[code]++
	return nil
}

// quietNotifier builds a Notifier with every channel disabled and no broker,
// journaling into the given audit fake.
func quietNotifier(audit repository.AuditRepo) *Notifier {
	return NewNotifier(config.Notifier{Timeout: time.Second}, audit, nil)
}
