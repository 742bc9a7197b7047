// Package domain holds the entities of the daily task engine: membership
// tiers and user bindings, the task catalog, assignments, accounts and
// referral settlements. It also defines the day window every daily rule is
// measured against. Nothing in this package touches storage.
package domain
