package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/causacart/causacart/internal/auth"
)

func TestGetCart_MissingIdentity(t *testing.T) {
	t.Parallel()

	h := &Handlers{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	req := httptest.NewRequest("GET", "/api/cart", nil)
	rec := httptest.NewRecorder()

	h.GetCart(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Message == "" {
		t.Fatal("expected an error message")
	}
}

func TestAddCartItem_RejectsMalformedBody(t *testing.T) {
	t.Parallel()

	h := &Handlers{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `not json`},
		{name: "unknown field", body: `{"product_id":"9e8cf3a3-dc87-44e9-a36b-ef7f4da261a9","quantity":1,"extra":true}`},
		{name: "zero quantity", body: `{"product_id":"9e8cf3a3-dc87-44e9-a36b-ef7f4da261a9","quantity":0}`},
		{name: "missing product", body: `{"quantity":2}`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("POST", "/api/cart/items", bytes.NewBufferString(tc.body))
			req = req.WithContext(auth.WithIdentity(req.Context(), auth.SessionIdentity("sess-1")))
			rec := httptest.NewRecorder()

			h.AddCartItem(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestMergeCart_RequiresUser(t *testing.T) {
	t.Parallel()

	h := &Handlers{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	req := httptest.NewRequest("POST", "/api/cart/merge", bytes.NewBufferString(`{"session_id":"sess-old"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.SessionIdentity("sess-old")))
	rec := httptest.NewRecorder()

	h.MergeCart(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCheckout_RejectsInvalidAddress(t *testing.T) {
	t.Parallel()

	h := &Handlers{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	body := `{"shipping_address":{"street":"Av. Reforma 123","city":"CDMX","state":"CDMX","postal_code":"06600","country":"MX"},"contact":{"name":"Ana","phone":"5512345678","email":"not-an-email"}}`
	req := httptest.NewRequest("POST", "/api/checkout", bytes.NewBufferString(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.SessionIdentity("sess-1")))
	rec := httptest.NewRecorder()

	h.Checkout(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}
