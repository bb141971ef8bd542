// Package timeline composes declared steps into absolute start times. A Block
// collects actions and wait markers in declaration order; committing it runs a
// single forward scheduling pass over one global timeline plus one lazily
// created sub-timeline per subject, hands every action to a Backend at its
// resolved begin time, and finalizes the batch.
package timeline
