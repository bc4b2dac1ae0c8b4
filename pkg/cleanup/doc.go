/*
Package cleanup tracks synthetic usernames created by virtual users during a
run and provides sequential and bounded-concurrent teardown against the user
service, with a best-effort cascade to the chat and posts services.
*/
package cleanup
