/*
Package control implements the load generator's control-plane HTTP API: a
chi router exposing start/stop/status/overview/reports/reduce/delete
endpoints, a metrics proxy, and the HTML status page, guarding the current
run and report history behind a single readers-writer lock.
*/
package control
