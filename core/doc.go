// Package core contains the delivery domain contracts, entities, and the
// reconciliation orchestration logic. Storage, marketplace and transport
// adapters depend on this package; core must not depend on them.
package core
