// Package util provides small parsing helpers shared across the service.
package util
