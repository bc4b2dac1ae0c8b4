/*
Package chaos wraps an outbound http.RoundTripper with probabilistic delay and
error injection, so the load generator can exercise downstream services under
synthetic latency and failure conditions without changing request semantics.
*/
package chaos
