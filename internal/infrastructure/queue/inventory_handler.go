package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appinventory "github.com/channelsync/backend/internal/application/inventory"
)

// StockChangeIngester is the application port the handler feeds decoded
// events into.
type StockChangeIngester interface {
	Ingest(ctx context.Context, events []appinventory.StockChangeEvent) error
}

// StockChangeHandler decodes stock-change payloads and forwards them to the
// intake service. Producers publish either a single event object, a bare
// array of events, or a wrapper holding the array under "inventory_requests"
// (or its "events" alias); all of these are accepted. An empty payload is a
// producer defect and is rejected rather than acknowledged.
type StockChangeHandler struct {
	intake StockChangeIngester
	logger *zap.Logger
}

// NewStockChangeHandler creates a new stock-change message handler
func NewStockChangeHandler(intake StockChangeIngester, logger *zap.Logger) *StockChangeHandler {
	return &StockChangeHandler{
		intake: intake,
		logger: logger.Named("stock-change-handler"),
	}
}

// Handle implements Handler
func (h *StockChangeHandler) Handle(ctx context.Context, payload []byte) error {
	events, err := decodeStockChangeEvents(payload)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: empty stock-change payload", ErrMalformedPayload)
	}

	if err := h.intake.Ingest(ctx, events); err != nil {
		if errors.Is(err, appinventory.ErrEmptyBatch) {
			return fmt.Errorf("%w: empty stock-change batch", ErrMalformedPayload)
		}
		return fmt.Errorf("queue: intake failed: %w", err)
	}
	return nil
}

// decodeStockChangeEvents parses the accepted payload shapes. Numbers are
// decoded as json.Number so large numeric IDs inside metadata survive without
// float rounding.
func decodeStockChangeEvents(payload []byte) ([]appinventory.StockChangeEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var events []appinventory.StockChangeEvent
		if err := decodeJSON(trimmed, &events); err != nil {
			return nil, fmt.Errorf("%w: invalid stock-change array: %w", ErrMalformedPayload, err)
		}
		return events, nil
	}

	var wrapper struct {
		InventoryRequests []appinventory.StockChangeEvent `json:"inventory_requests"`
		Events            []appinventory.StockChangeEvent `json:"events"`
	}
	if err := decodeJSON(trimmed, &wrapper); err == nil {
		if len(wrapper.InventoryRequests) > 0 {
			return wrapper.InventoryRequests, nil
		}
		if len(wrapper.Events) > 0 {
			return wrapper.Events, nil
		}
	}

	var event appinventory.StockChangeEvent
	if err := decodeJSON(trimmed, &event); err != nil {
		return nil, fmt.Errorf("%w: invalid stock-change payload: %w", ErrMalformedPayload, err)
	}
	return []appinventory.StockChangeEvent{event}, nil
}

func decodeJSON(data []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(v)
}

var _ Handler = (*StockChangeHandler)(nil)
