// Package store defines the persistence contracts of the task engine:
// membership catalog and bindings, task catalog, assignment ledger,
// accounts with referral settlements, and users. Every store can be rebound
// to a transaction with WithTx, and Transactor runs a unit of work across
// several stores atomically.
package store
