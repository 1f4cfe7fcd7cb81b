// Package store houses concrete implementations of the core.RunStore. The
// interface itself lives in the core package to centralize domain contracts;
// keeping only implementations here prevents higher level packages (engine,
// strategies) from depending on concrete storage.
//
// The in-memory store in this package backs tests and demos. Durable
// backends (Badger, Postgres) live in sub-packages so only the wiring layer
// decides which implementation to instantiate.
package store
