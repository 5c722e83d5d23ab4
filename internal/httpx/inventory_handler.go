package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-commerce-inventory.git/internal/inventory"
	"github.com/ariefcatur/go-commerce-inventory.git/internal/redisx"
)

type InventoryHandler struct {
	Ledger *inventory.Service
	Redis  *redis.Client // optional read cache
}

type QuantityReq struct {
	Quantity  int    `json:"quantity"`
	Reference string `json:"reference,omitempty"`
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Get("/inventory/low-stock", h.listLowStock)
	r.Get("/inventory/{productID}", h.getInventory)
	r.Put("/inventory/{productID}", h.updateInventory)
	r.Post("/inventory/{productID}/reserve", h.reserve)
	r.Post("/inventory/{productID}/release", h.release)
	r.Post("/inventory/{productID}/deduct", h.deduct)
	r.Get("/inventory/{productID}/transactions", h.listTransactions)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, inventory.ErrInvalidState):
		code = http.StatusConflict
	case errors.Is(err, inventory.ErrInsufficientInventory):
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (h *InventoryHandler) getInventory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache-aside snapshot
	key := fmt.Sprintf(redisx.KeyInventory, productID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	rec, err := h.Ledger.Get(ctx, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Redis != nil {
		b, _ := json.Marshal(rec)
		_ = h.Redis.Set(ctx, key, b, redisx.TTLInventory).Err()
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) updateInventory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	var patch inventory.UpdatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Ledger.Update(ctx, productID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	h.invalidate(ctx, productID)
	writeJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	h.mutateQty(w, r, h.Ledger.Reserve)
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	h.mutateQty(w, r, h.Ledger.Release)
}

func (h *InventoryHandler) deduct(w http.ResponseWriter, r *http.Request) {
	h.mutateQty(w, r, h.Ledger.Deduct)
}

func (h *InventoryHandler) mutateQty(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, productID string, qty int, reference string) (inventory.Record, error)) {
	productID := chi.URLParam(r, "productID")
	var req QuantityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be positive"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := op(ctx, productID, req.Quantity, req.Reference)
	if err != nil {
		writeError(w, err)
		return
	}
	h.invalidate(ctx, productID)
	writeJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	page := atoiDefault(r.URL.Query().Get("page"), 1)
	limit := atoiDefault(r.URL.Query().Get("limit"), 20)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	txs, err := h.Ledger.History(ctx, productID, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":   productID,
		"page":         page,
		"limit":        limit,
		"transactions": txs,
	})
}

func (h *InventoryHandler) listLowStock(w http.ResponseWriter, r *http.Request) {
	var override *int
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid threshold"})
			return
		}
		override = &n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	recs, err := h.Ledger.LowStock(ctx, override)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []inventory.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *InventoryHandler) invalidate(ctx context.Context, productID string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyInventory, productID)).Err()
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
