// Package types provides shared data structures for the rapp manager.
//
// This package defines the vocabulary used across components, ensuring
// consistent wire shapes between the domain layer and the API surface.
//
// Core Types:
//   - PlatformInfo: Robot platform descriptor and compatibility matching
//   - ConnectionKind: The five interface endpoint categories
//   - Endpoints: Per-kind endpoint name lists produced by rapp start/stop
//   - RappInfo: Installed application snapshot for lists and feeds
//
// Request Types:
//   - InviteRequest: Remote control grant/cancel
//   - StartRequest: Application start with remapping overrides
package types
