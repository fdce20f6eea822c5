package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-pipeline/internal/config"
	"order-pipeline/internal/entity"
	"order-pipeline/internal/repository"
	"order-pipeline/internal/service"
)

type failingOrders struct {
	repository.OrderRepo
}

func (failingOrders) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	return nil, errors.New("connection refused")
}

// The gateway treats anything but 200 as undelivered and keeps retrying, so
// even an infra failure during resolution has to be acked with pending.
func TestPaymentCallbackAcksPendingOnInfraError(t *testing.T) {
	callback := service.NewCallbackService(failingOrders{}, nil, nil, nil)
	h := NewHandler(nil, nil, nil, callback, nil, nil, nil, nil, config.Server{})

	req := httptest.NewRequest(http.MethodPost, "/payment/callback?token=tok-1&orderId=ORD-1", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.PaymentCallback(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}
