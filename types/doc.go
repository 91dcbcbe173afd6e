// Package types provides core type definitions and interfaces for the baton library.
//
// This package contains shared types that are used across multiple packages in the
// baton library. By keeping these types in a separate package, we avoid import cycles
// between the main baton package and its internal implementations.
//
// Key types:
//   - State: Coordinator lifecycle state for one baton key
//   - Transport: Unreliable broadcast messaging used by the election protocol
//   - PresenceDirectory: Participant-count oracle used for quorum sizing
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
