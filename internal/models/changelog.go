package models

import "time"

// ChangeLog is one accepted field mutation. Entries are append-only and
// written in the same transaction as the mutation they describe.
type ChangeLog struct {
	ID         string    `db:"id" json:"id"`
	ItemID     string    `db:"item_id" json:"itemId"`
	MaterialID string    `db:"material_id" json:"materialId"`
	Field      string    `db:"field" json:"field"`
	OldValue   *string   `db:"old_value" json:"oldValue,omitempty"`
	NewValue   *string   `db:"new_value" json:"newValue,omitempty"`
	BatchID    string    `db:"batch_id" json:"batchId"`
	UserID     string    `db:"user_id" json:"userId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
