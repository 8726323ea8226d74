// Package gorm backs the store interfaces with gorm. The same code runs on
// PostgreSQL in production and on SQLite in unit tests, so queries stay
// within the SQL both dialects share.
package gorm
