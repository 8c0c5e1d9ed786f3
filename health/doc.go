// Package health aggregates readiness checks for the bridges and stores a
// service depends on and exposes them as /live, /ready and a detailed JSON
// report.
package health
