package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"switchboard/internal/domain"
)

// BookingTool handles reservation intents. It is the usual second step of a
// search chain: the search tool suggests it when the query mentions booking.
type BookingTool struct {
	logger *slog.Logger
}

// NewBookingTool creates the booking tool.
func NewBookingTool(logger *slog.Logger) *BookingTool {
	return &BookingTool{logger: logger}
}

func (t *BookingTool) Info() domain.ToolInfo {
	return domain.ToolInfo{
		Name:           "booking",
		Version:        "1.0.0",
		Description:    "Creates reservations and bookings for a named item and date",
		RequiredParams: []string{"item", "date"},
	}
}

// ParamSchema declares the booking params; the registry validates calls
// against it before Run.
func (t *BookingTool) ParamSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"item": {"type": "string", "minLength": 1},
			"date": {"type": "string", "minLength": 1},
			"count": {"type": "integer", "minimum": 1}
		},
		"required": ["item", "date"]
	}`)
}

// CanHandle keys off booking-flavored intents and the presence of the
// entities a reservation needs.
func (t *BookingTool) CanHandle(_ context.Context, tc domain.ToolContext) (float64, error) {
	intent := strings.ToLower(tc.Intent)

	confidence := 0.0
	switch {
	case intent == "booking" || intent == "book":
		confidence = 1.0
	case containsAny(intent, "reserve", "schedule", "appointment"):
		confidence = 0.9
	}
	if confidence == 0 {
		return 0, nil
	}

	// A reservation without its entities is a guess, not a booking.
	if _, ok := tc.Entities["item"]; !ok {
		confidence *= 0.7
	}
	if _, ok := tc.Entities["date"]; !ok {
		confidence *= 0.7
	}
	return clamp01(confidence), nil
}

// Run records the reservation and returns a confirmation id. Search results
// carried on the chain are echoed back so callers can show what the booking
// was based on.
func (t *BookingTool) Run(_ context.Context, params map[string]any, tc domain.ToolContext) (map[string]any, error) {
	item, _ := params["item"].(string)
	date, _ := params["date"].(string)

	confirmation := domain.NewID()
	t.logger.Info("booking created", "item", item, "date", date, "confirmation", confirmation)

	result := map[string]any{
		"action":       "booking",
		"item":         item,
		"date":         date,
		"confirmation": confirmation,
		"status":       "confirmed",
	}
	if tc.ChainContext != nil {
		if prev, ok := tc.ChainContext["search_results"]; ok {
			result["based_on"] = prev
		}
	}
	return result, nil
}
