/*
Package vuser implements the virtual user: a per-run state machine that
authenticates against the user service, holds a Socket.IO-flavored WebSocket
to the chat service, and loops over a weighted set of REST/WebSocket actions
against the posts, profile, and chat services until its context is
cancelled.
*/
package vuser
