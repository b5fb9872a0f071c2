// Package bars resamples ordered trade ticks into bars.
//
// Time bars group ticks into fixed-width buckets (AggregateOHLC), optionally
// over a long range fetched in sub-ranges (FetchOHLC). Volume bars close once
// accumulated size reaches a target (BuildVolumeBars) and can resume an open
// bar across chunks through an explicit CarryOver value.
//
// Everything here is synchronous and keeps no state between calls. Work for
// different symbols may run in parallel; calls that share a carry-over chain
// must run in order.
package bars
