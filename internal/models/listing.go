package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ListingAttributes is the flattened component attribute map joined
// onto a listing (CPU/GPU/RAM/storage fields). Keys are flat field
// names such as "cpu_id", "ram_capacity_gb", "gpu_model".
type ListingAttributes map[string]interface{}

// Listing is a marketplace listing being valuated. The catalog/browse
// surface owns the rest of the listing record; this core only needs the
// base price and the flattened attributes.
type Listing struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	Title         string            `json:"title" db:"title"`
	BasePrice     float64           `json:"base_price" db:"base_price"`
	AdjustedPrice float64           `json:"adjusted_price" db:"adjusted_price"`
	Attributes    ListingAttributes `json:"attributes" db:"attributes"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// Fields returns the flattened field map handed to the evaluator:
// component attributes plus the base price.
func (l *Listing) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, len(l.Attributes)+1)
	for k, v := range l.Attributes {
		fields[k] = v
	}
	fields["base_price"] = l.BasePrice
	return fields
}

// ListingSnapshot is the read-only slice of a listing an evaluation
// pass works against.
type ListingSnapshot struct {
	ID        uuid.UUID
	BasePrice float64
	Fields    map[string]interface{}
}

// Snapshot builds the evaluation snapshot for the listing.
func (l *Listing) Snapshot() ListingSnapshot {
	return ListingSnapshot{
		ID:        l.ID,
		BasePrice: l.BasePrice,
		Fields:    l.Fields(),
	}
}

// JSONB scanning for ListingAttributes

func (a *ListingAttributes) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, a)
}

func (a ListingAttributes) Value() (driver.Value, error) {
	return json.Marshal(a)
}
