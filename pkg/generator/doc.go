/*
Package generator owns a single run: it paces virtual users onto a ramp
channel according to a parsed rate, fans them out, and waits for either full
completion or the run's context deadline before handing back a report.
*/
package generator
