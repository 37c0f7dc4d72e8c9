// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (events.go, relay.go, captcha.go, app.go) hold the
// shared types and cross-cutting contracts. No implementation code lives
// here; interfaces stay on the consumer side to prevent circular imports.
package domain
