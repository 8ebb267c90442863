// Package app composes the solver daemon: it builds the in-process host from
// configuration, deploys tokens, scripted delegate targets and the solver,
// and wires receipts, the event feed, metrics, scheduled jobs and the HTTP
// API around them.
//
// Business rules live in internal/solver; this package only wires.
package app
