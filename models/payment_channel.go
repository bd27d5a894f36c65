package models

import "time"

// PaymentChannel is a UPI/QR collection identity bound to one fixed amount
// tier. UsageCount is monotone within a collection day; the daily reset is an
// operator action, not something the allocator does.
type PaymentChannel struct {
	ID         int       `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	UpiID      string    `json:"upi_id" db:"upi_id"`
	Amount     int       `json:"amount" db:"amount"`
	UsageCount int       `json:"usage_count" db:"usage_count"`
	DailyLimit int       `json:"daily_limit" db:"daily_limit"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	ImageKey *string `json:"-" db:"image_key"`
	ImageURL *string `json:"image_url,omitempty" db:"-"`
}
