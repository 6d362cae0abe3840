package cli

import (
	"context"
	"fmt"

	"github.com/mrz1836/flowcore/internal/domain"
	"github.com/mrz1836/flowcore/internal/handler"
)

// orderContext is the typed view fetchOrderHandler decodes out of the
// Task's opaque Context map.
type orderContext struct {
	OrderID string `mapstructure:"order_id"`
}

// fetchOrderHandler simulates an initial data-fetch step with no parents.
type fetchOrderHandler struct{}

func (fetchOrderHandler) Handle(_ context.Context, taskCtx handler.TaskContext, _ map[string]domain.HandlerResult, _ *domain.Step) (domain.HandlerResult, error) {
	var oc orderContext
	if err := domain.Decode(taskCtx.Context, &oc); err != nil {
		return nil, fmt.Errorf("fetch_order: %w", err)
	}
	return domain.HandlerResult{"order_id": oc.OrderID, "amount": 4200}, nil
}

// fetchResult is the typed view chargePaymentHandler decodes out of the
// fetch step's HandlerResult.
type fetchResult struct {
	Amount int `mapstructure:"amount"`
}

// chargePaymentHandler simulates a payment charge keyed off the fetch step's
// output.
type chargePaymentHandler struct{}

func (chargePaymentHandler) Handle(_ context.Context, _ handler.TaskContext, parents map[string]domain.HandlerResult, _ *domain.Step) (domain.HandlerResult, error) {
	fetch, ok := parents["fetch_order"]
	if !ok {
		return nil, fmt.Errorf("charge_payment: missing fetch_order result")
	}
	var fr fetchResult
	if err := domain.Decode(fetch, &fr); err != nil {
		return nil, fmt.Errorf("charge_payment: %w", err)
	}
	return domain.HandlerResult{"charged": fr.Amount}, nil
}

// shipOrderHandler simulates dispatching a shipment once payment clears.
type shipOrderHandler struct{}

func (shipOrderHandler) Handle(_ context.Context, _ handler.TaskContext, _ map[string]domain.HandlerResult, _ *domain.Step) (domain.HandlerResult, error) {
	return domain.HandlerResult{"tracking_number": "TRK-0001"}, nil
}

// notifyCustomerHandler simulates a best-effort notification step that runs
// in parallel with shipping, both gated on the same payment step.
type notifyCustomerHandler struct{}

func (notifyCustomerHandler) Handle(_ context.Context, _ handler.TaskContext, _ map[string]domain.HandlerResult, _ *domain.Step) (domain.HandlerResult, error) {
	return domain.HandlerResult{"notified": true}, nil
}

// registerDemoHandlers wires the sample order-processing handlers into reg.
func registerDemoHandlers(reg *handler.Registry) error {
	handlers := map[string]handler.StepHandler{
		"fetch_order":     fetchOrderHandler{},
		"charge_payment":  chargePaymentHandler{},
		"ship_order":      shipOrderHandler{},
		"notify_customer": notifyCustomerHandler{},
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}
