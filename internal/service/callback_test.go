package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-pipeline/internal/entity"
	"order-pipeline/internal/gateway"
)

func newCallbackFixture(gw *fakeGateway) (*CallbackService, *fakeOrderRepo, *fakeCatalogRepo) {
	orders := newFakeOrderRepo()
	catalog := newFakeCatalogRepo()
	svc := NewCallbackService(orders, catalog, gw, quietNotifier(&fakeAuditRepo{}))
	return svc, orders, catalog
}

func pendingOrder() entity.Order {
	return entity.Order{
		ID: "ORD-1", ConversationID: "conv-1", Status: entity.OrderPending,
		PaymentStatus: entity.PaymentUnpaid, TotalMinor: 5000,
		PaymentToken: "tok-1", CustomerEmail: "a@b.c",
	}
}

func TestCallbackSuccessDecrementsStockOnce(t *testing.T) {
	gw := &fakeGateway{result: &gateway.PaymentResult{
		Status: "SUCCESS", PaymentID: "pay-1", TransactionIDs: []string{"tx-1"},
	}}
	svc, orders, catalog := newCallbackFixture(gw)
	orders.put(pendingOrder())
	orders.items["ORD-1"] = []entity.OrderItem{{OrderID: "ORD-1", ProductID: "p1", Quantity: 2}}
	catalog.products["p1"] = entity.Product{ID: "p1", Stock: 10}

	outcome, err := svc.Resolve(context.Background(), "tok-1", "conv-1", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "success", outcome.Status)

	o, _ := orders.FindByID(context.Background(), "ORD-1")
	assert.Equal(t, entity.OrderPaid, o.Status)
	assert.Equal(t, entity.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "pay-1", o.PaymentDebug.PaymentID)
	assert.Equal(t, 8, catalog.products["p1"].Stock)

	// A redelivered callback re-reads the final state without double effects.
	outcome, err = svc.Resolve(context.Background(), "tok-1", "conv-1", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "success", outcome.Status)
	assert.Equal(t, 8, catalog.products["p1"].Stock)
}

func TestCallbackFailureMarksFailed(t *testing.T) {
	gw := &fakeGateway{result: &gateway.PaymentResult{Status: "FAILURE", ErrorCode: "10051", ErrorMessage: "insufficient funds"}}
	svc, orders, catalog := newCallbackFixture(gw)
	orders.put(pendingOrder())
	catalog.products["p1"] = entity.Product{ID: "p1", Stock: 10}

	outcome, err := svc.Resolve(context.Background(), "tok-1", "conv-1", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "failure", outcome.Status)

	o, _ := orders.FindByID(context.Background(), "ORD-1")
	assert.Equal(t, entity.OrderFailed, o.Status)
	assert.Equal(t, "10051", o.PaymentDebug.ErrorCode)
	// Pending orders never held stock, so nothing changes.
	assert.Equal(t, 10, catalog.products["p1"].Stock)
}

func TestCallbackGatewayErrorLeavesPending(t *testing.T) {
	gw := &fakeGateway{retrieveErr: errors.New("timeout")}
	svc, orders, _ := newCallbackFixture(gw)
	orders.put(pendingOrder())

	outcome, err := svc.Resolve(context.Background(), "tok-1", "conv-1", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", outcome.Status)

	o, _ := orders.FindByID(context.Background(), "ORD-1")
	assert.Equal(t, entity.OrderPending, o.Status)
}

func TestCallbackIndefiniteResultStaysPending(t *testing.T) {
	gw := &fakeGateway{result: &gateway.PaymentResult{}}
	svc, orders, _ := newCallbackFixture(gw)
	orders.put(pendingOrder())

	outcome, err := svc.Resolve(context.Background(), "tok-1", "conv-1", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", outcome.Status)

	o, _ := orders.FindByID(context.Background(), "ORD-1")
	assert.Equal(t, entity.OrderPending, o.Status)
}

func TestCallbackFindsOrderByConversationID(t *testing.T) {
	gw := &fakeGateway{result: &gateway.PaymentResult{Status: "SUCCESS"}}
	svc, orders, _ := newCallbackFixture(gw)
	orders.put(pendingOrder())

	outcome, err := svc.Resolve(context.Background(), "tok-1", "conv-1", "")
	require.NoError(t, err)
	assert.Equal(t, "success", outcome.Status)
	assert.Equal(t, "ORD-1", outcome.Order.ID)
}

func TestCallbackUnknownOrderIsPending(t *testing.T) {
	svc, _, _ := newCallbackFixture(&fakeGateway{})
	outcome, err := svc.Resolve(context.Background(), "tok-x", "conv-x", "ORD-x")
	require.NoError(t, err)
	assert.Equal(t, "pending", outcome.Status)
}

func TestCallbackNoTokenAnywhereIsPending(t *testing.T) {
	svc, orders, _ := newCallbackFixture(&fakeGateway{})
	o := pendingOrder()
	o.PaymentToken = ""
	orders.put(o)

	outcome, err := svc.Resolve(context.Background(), "", "conv-1", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", outcome.Status)
}

func TestCallbackPersistsTokenForHousekeeper(t *testing.T) {
	gw := &fakeGateway{retrieveErr: errors.New("timeout")}
	svc, orders, _ := newCallbackFixture(gw)
	o := pendingOrder()
	o.PaymentToken = ""
	orders.put(o)

	_, err := svc.Resolve(context.Background(), "tok-from-redirect", "conv-1", "ORD-1")
	require.NoError(t, err)

	stored, _ := orders.FindByID(context.Background(), "ORD-1")
	assert.Equal(t, "tok-from-redirect", stored.PaymentToken)
}

func TestCallbackNonPendingOrderReportsFinalStatus(t *testing.T) {
	svc, orders, _ := newCallbackFixture(&fakeGateway{})
	o := pendingOrder()
	o.Status = entity.OrderCancelled
	orders.put(o)

	outcome, err := svc.Resolve(context.Background(), "tok-1", "conv-1", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "failure", outcome.Status)
}
