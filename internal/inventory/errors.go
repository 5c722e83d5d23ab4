package inventory

import "errors"

// ErrNotFound is returned when no ledger row exists for the product, so HTTP
// handlers can respond with 404.
var ErrNotFound = errors.New("inventory record not found")

// ErrInvalidState guards the available = quantity - reserved >= 0 invariant.
var ErrInvalidState = errors.New("invalid inventory state")

// ErrInsufficientInventory is returned when a reservation or deduction asks
// for more than is available.
var ErrInsufficientInventory = errors.New("insufficient inventory")
