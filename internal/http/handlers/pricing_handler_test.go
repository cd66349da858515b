// README: Handler tests for the pure calculator endpoints.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/handlers"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/trip"
	"carpool/internal/types"
)

// buildTestRouter wires a minimal Gin engine with the calculator
// endpoints. No trip or pricing store is needed: estimates are stubbed
// and fare-split/refund math is pure.
func buildTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewPricingHandler(pricing.NewService(nil), trip.NewService(stubRouter{}, nil))
	r := gin.New()
	r.POST("/api/pricing/quote", h.Quote)
	r.POST("/api/pricing/split", h.Split)
	r.POST("/api/pricing/refit", h.Refit)
	r.POST("/api/pricing/refund-preview", h.RefundPreview)
	return r
}

type stubRouter struct{}

func (stubRouter) Estimate(_ context.Context, _, _ types.Point) (float64, float64, error) {
	return 10, 20, nil
}

func doRequest(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQuoteEndpoint(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, "/api/pricing/quote", map[string]any{
		"origin":      map[string]float64{"lat": 37.7749, "lng": -122.4194},
		"destination": map[string]float64{"lat": 37.3382, "lng": -121.8863},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Quote struct {
			SuggestedPricePerSeat struct {
				AmountCents int64 `json:"amount_cents"`
			} `json:"suggested_price_per_seat"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// 10 miles / 20 minutes at default rates
	if resp.Quote.SuggestedPricePerSeat.AmountCents != 1740 {
		t.Errorf("suggested price = %d, want 1740", resp.Quote.SuggestedPricePerSeat.AmountCents)
	}
}

func TestSplitEndpoint(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, "/api/pricing/split", map[string]any{
		"base_price_per_seat_cents": 1740,
		"passengers":                3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		DiscountPercentage     int `json:"discount_percentage"`
		DiscountedPricePerSeat struct {
			AmountCents int64 `json:"amount_cents"`
		} `json:"discounted_price_per_seat"`
		DriverEarnings struct {
			AmountCents int64 `json:"amount_cents"`
		} `json:"driver_earnings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DiscountPercentage != 40 {
		t.Errorf("discount = %d, want 40", resp.DiscountPercentage)
	}
	if resp.DiscountedPricePerSeat.AmountCents != 1044 {
		t.Errorf("discounted per seat = %d, want 1044", resp.DiscountedPricePerSeat.AmountCents)
	}
	if resp.DriverEarnings.AmountCents != 3132 {
		t.Errorf("driver earnings = %d, want 3132", resp.DriverEarnings.AmountCents)
	}
}

func TestSplitEndpointRejectsInvalidInput(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, "/api/pricing/split", map[string]any{
		"base_price_per_seat_cents": 1740,
		"passengers":                0,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRefundPreviewEndpoint(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, "/api/pricing/refund-preview", map[string]any{
		"total_paid_cents": 3480,
		"departure_time":   time.Now().UTC().Add(3 * time.Hour).Format(time.RFC3339),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Cancellable bool `json:"cancellable"`
		Outcome     struct {
			RefundAmount struct {
				AmountCents int64 `json:"amount_cents"`
			} `json:"refund_amount"`
			PenaltyAmount struct {
				AmountCents int64 `json:"amount_cents"`
			} `json:"penalty_amount"`
			Category string `json:"category"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Cancellable {
		t.Fatal("cancellation 3h before departure reported as closed")
	}
	if resp.Outcome.Category != "minor-penalty" {
		t.Errorf("category = %s, want minor-penalty", resp.Outcome.Category)
	}
	if got := resp.Outcome.RefundAmount.AmountCents + resp.Outcome.PenaltyAmount.AmountCents; got != 3480 {
		t.Errorf("refund + penalty = %d, want 3480", got)
	}
}

func TestRefundPreviewPastCutoff(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, "/api/pricing/refund-preview", map[string]any{
		"total_paid_cents": 3480,
		"departure_time":   time.Now().UTC().Add(-1 * time.Hour).Format(time.RFC3339),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Cancellable bool `json:"cancellable"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Cancellable {
		t.Error("cancellation an hour after departure reported as open")
	}
}
