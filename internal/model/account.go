package model

import "time"

// AccountClass distinguishes publishers from players; usernames are unique per class
type AccountClass string

const (
	ClassPublisher AccountClass = "publisher"
	ClassPlayer    AccountClass = "player"
)

// Valid reports whether c is a known account class
func (c AccountClass) Valid() bool {
	return c == ClassPublisher || c == ClassPlayer
}

// Account is a registered publisher or player
type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"` // bcrypt hash
	CreatedAt    time.Time `json:"created_at"`
}

// AccountTable is the persisted accounts document, keyed by class then username
type AccountTable map[AccountClass]map[string]Account

// NewAccountTable returns an empty table with both classes present
func NewAccountTable() AccountTable {
	return AccountTable{
		ClassPublisher: make(map[string]Account),
		ClassPlayer:    make(map[string]Account),
	}
}

// Clone returns a deep copy of the table
func (t AccountTable) Clone() AccountTable {
	out := NewAccountTable()
	for class, accounts := range t {
		if out[class] == nil {
			out[class] = make(map[string]Account, len(accounts))
		}
		for name, acc := range accounts {
			out[class][name] = acc
		}
	}
	return out
}
