package models

import "time"

// User представляет покупателя
type User struct {
	ID        int64
	Username  string
	PassHash  []byte
	Banned    bool
	CreatedAt time.Time
}
