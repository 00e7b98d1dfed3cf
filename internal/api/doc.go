// Package api implements the HTTP REST API and WebSocket server for automationd.
//
// This package provides:
//   - REST endpoints for module registry reads and program CRUD/lifecycle control
//   - A dynamic command surface for domain/address/command invocations
//   - WebSocket hub for real-time module state and program status broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces and the module bus + program
// manager. Module state originates on the MQTT bus and is mirrored into the
// registry; program status and faults are published by the program manager.
// Both flow back to the API and are broadcast to WebSocket clients.
//
// # Security
//
// Authentication uses a single shared JWT secret with no per-user RBAC
// (dev credentials only). WebSocket connections use single-use tickets to
// prevent token leakage in URLs.
//
// # Graceful Degradation
//
// The server operates without MQTT — reads, WebSocket connections and the
// dynamic command surface (served by the DynamicApiRegistry) work; only live
// broadcasts are affected.
package api
