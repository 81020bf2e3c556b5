// Package database provides a database wrapper built on GORM with connection
// pooling, health checks, transactions, and auto-migration. The record store
// and the event store both run on it; pass the driver as a gorm.Dialector
// (sqlite in tests and the dev profile).
package database
