// Package domain defines the core entity types shared between the
// Orchestrator, Scrapers, Store, and AIService: Company, TeamMember,
// Prospect, CampaignProgress, ProcessingLogEntry, SystemStatus, and
// ControlCommand.
//
// Types in this package are pure value objects with no behavior beyond
// their own invariants, no database dependencies, and no HTTP concerns.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
