// Package audit implements append-only JSONL audit logging for the Device
// Services Container.
//
// Every position acquisition, watch lifecycle change, record commit and sync
// run produces one JSON line with the acting user, the subject, the outcome
// code and the latency.
package audit
