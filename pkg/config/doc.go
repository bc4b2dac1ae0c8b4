/*
Package config loads the load generator's configuration from built-in defaults,
an optional YAML file, and environment variable overrides, in that precedence
order, into a single immutable Config value.
*/
package config
