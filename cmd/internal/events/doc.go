// Package events broadcasts session lifecycle transitions to other processes.
//
// Publishing never blocks or fails the caller. Events are queued and delivered
// by background workers with bounded retry; an event that still fails is
// logged and dropped.
package events
