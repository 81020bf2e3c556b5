// Package component defines the core interfaces for lifecycle-managed
// infrastructure services.
//
// Components represent services that require startup, shutdown, and health
// monitoring. They are registered with a Registry which starts them in
// order and stops them in reverse.
//
// # Interfaces
//
//   - Component: Core lifecycle interface (Start/Stop/Health)
//   - Describable: Startup summary descriptions
//   - RouteProvider: HTTP route exposure
package component
