// Package extract parses Live set and clip documents (gzip-compressed
// XML) into a normalized entity set: tracks, clips, devices, routing
// edges and referenced asset paths.
//
// The format is undocumented and drifts between versions, so extraction
// is deliberately schema-tolerant: recognized tag and attribute names
// map to typed fields through explicit tables, everything else lands in
// an opaque metadata bucket, and unparseable input degrades to a Failed
// or Partial document instead of an error for the whole scan.
package extract
