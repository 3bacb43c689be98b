// Package domain defines the fleet monitor's canonical records: sources, jobs
// and their lifecycle, job logs, and run history. Every backend payload is
// mapped into these types by package normalize before anything else reads it.
package domain
