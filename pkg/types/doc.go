/*
Package types defines the domain model shared across the monitor: nodes,
traffic events, hashstore compactions, storage snapshots, hourly roll-ups,
and dashboard view subscriptions. Every other package builds on these types
rather than redeclaring them.
*/
package types
