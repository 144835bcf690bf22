// Package rotation is the invite-link rotation engine.
//
// A cycle takes a settings snapshot, mints one invite link per source chat
// (Generator), renders the announcement and applies the update mode against
// the target chat (Publisher). The Scheduler owns the running/stopped state,
// the periodic trigger and the single in-flight cycle.
package rotation
