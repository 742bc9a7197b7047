// Package service contains the task distribution use cases.
//
// The EligibilityResolver decides which membership a user is served under and
// how much of today's quota is left. The DistributionEngine hands tasks out,
// one short transaction per claimed task, in batch or for a single user. The
// ResetSweeper expires stale assignments and resets daily counters at the day
// boundary. The SettlementService credits rewards on completion and referral
// bonuses at signup. CatalogService and RegistrationService are the typed
// boundaries for the admin and registration collaborators.
//
// Services depend on store interfaces and a store.Transactor, never on a
// concrete database, and take an injectable clock so that day boundaries can
// be tested.
package service
