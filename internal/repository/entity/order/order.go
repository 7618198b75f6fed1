package order

import "time"

type Order struct {
	ID        uint64
	Item      string
	ExpiredAt time.Time
	// Version grows by one with every save.
	Version uint64
}
