/*
Package metrics defines and registers the load generator's Prometheus metrics and
serves them for scraping.

All load generator packages (chaos, cleanup, vuser, generator, control) update the
package-level metric variables defined here; nothing else in the process touches
the Prometheus registry directly. Metric names carry the loadgen_ prefix so the
control plane's exposition-text scraper (see pkg/control) can find them
unambiguously.
*/
package metrics
