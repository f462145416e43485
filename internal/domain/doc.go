// Package domain models the events the NIDS ingest service publishes:
// point features decoded from Level-III symbol and contour products, and
// summaries of flushed multi-tilt volumes.
//
// # Plot Space
//
// Point products place symbols in plot space: I and J in quarter-km units
// from the radar, I increasing east and J increasing south. Features are
// converted to km offsets and to a flat-earth latitude/longitude around the
// radar location carried in the product description block. Range and
// azimuth are measured from the radar, azimuth clockwise from north.
//
// # File Names
//
// Radar and product suffix are taken from the file name, which feeds use in
// forms such as:
//
//	KTLX_N0S_20240520_221430.nids
//	Level3_TLX_N0Q_20240520_2214.nids
//
// See [ParseFileName].
//
// # Severity
//
// Hail features carry the maximum expected hail size in inches and are
// classified with the same four-level scale the storm report pipeline uses:
//
//	<0.75" minor | <1.5" moderate | <2.5" severe | >=2.5" extreme
//
// Tornado vortex signatures are always extreme. Mesocyclones and storm ids
// carry no severity.
//
// # ID Generation
//
// Feature IDs are deterministic SHA-256 hashes of
// type|radar|product|time|i|j|label so replaying a file produces the same
// IDs. See [generateID].
package domain
