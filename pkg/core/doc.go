// Package core defines the shared language of the LeapMeta system.
//
// This package contains:
//   - The read-only metadata projection (Dataset, Column, Edge, Catalog)
//   - Execution state types (ExecutionPolicy, StepStatus, SkipKind, AttemptEvent)
//   - Service interfaces (Executor)
//   - Configuration types (TargetConfig)
//   - The error taxonomy shared by planners, dialects and the orchestrator
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
