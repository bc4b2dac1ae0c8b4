/*
Package log provides structured logging for the load generator using zerolog.

A single global Logger is configured once via Init and shared by every package;
component loggers (WithComponent, WithUserID) and the ForRun wrapper attach context
fields so a busy --web process running several test runs can still be filtered
down to one run or one virtual user.
*/
package log
