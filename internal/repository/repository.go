// Package repository contains data access layer abstractions for file records.
// Implementations live in subpackages (postgres).
package repository
