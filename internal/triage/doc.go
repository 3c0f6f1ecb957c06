// Package triage provides the business boundary for symptom triage.
// It defines the Service (per-request orchestration of routing,
// protocol matching, exemplar priming, and classification), the
// TriageResult domain model, and the failure taxonomy.
package triage
