package store

// RecordStore persists named JSON documents. Load treats a missing or
// malformed record as absent: a corrupted payload is logged and swallowed,
// and the caller proceeds with its empty default. The two application
// records (user, history) are independent; there is no transactionality
// between them.
type RecordStore interface {
	// Save serializes value to JSON and writes it under name.
	Save(name string, value any) error
	// Load deserializes the record into out and reports whether a usable
	// record was found.
	Load(name string, out any) bool
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(name string) error
}

// SessionStore maps issued tokens to user IDs.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
