package models

// OrderCounter holds the per-day order number sequence. The row is upserted
// atomically inside the order-creation transaction so two concurrent
// checkouts can never mint the same number.
type OrderCounter struct {
	Day string `gorm:"column:day;primaryKey"` // YYYYMMDD
	Seq int    `gorm:"column:seq;not null;default:0"`
}
