package api

// Error mapping is done inline in handlers.
// Auth errors mapped in auth package middleware.
// Ingestion limit violations map to 400.
// Rule definition validation errors map to 422.
// Missing rules and groups map to 404, create collisions to 409.
// Store and dispatch failures map to 500 without leaking internals.
