package events

// Exchange is the shared durable topic all services publish to.
const Exchange = "microservices.events"

// Routing keys follow {service}.{entity}.{action}.
const (
	KeyInventoryUpdated  = "product.inventory.updated"
	KeyInventoryLowStock = "product.inventory.low_stock"
	KeyOrderCreated      = "order.order.created"
	KeyOrderCancelled    = "order.order.cancelled"
	KeyPaymentCaptured   = "order.payment.captured"
)

// PartitionKey keeps every event for one aggregate on one partition so
// subscribers see them in order.
func PartitionKey(aggregateID string) []byte { return []byte(aggregateID) }
