// Package discovery turns unrecognised hub device ids into registered host
// entities.
//
// A Coordinator tracks which devices are already represented (known),
// which are being discovered right now (pending) and which platform
// callback accepts each entity category. DiscoverDevice runs one guarded
// attempt:
//
//	unseen ──DiscoverDevice──▶ pending ──success──▶ known
//	                              │
//	                              └──any failure──▶ unseen (retry on next event)
//
// Failures never escape the coordinator: every attempt reports a plain
// bool and, when recorders are configured, an Attempt row describing what
// happened.
//
// # Thread Safety
//
// The check-and-mark that moves an id into pending is done under one
// mutex, so two concurrent attempts for the same id produce exactly one
// registration. The device fetch runs outside the lock.
package discovery
