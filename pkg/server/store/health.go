package store

// HealthStore reports whether the trainer database can serve requests
type HealthStore interface {
	// Ping fails when the database is unreachable or not migrated
	Ping() error
}
