// Package protocol owns the halo exchange wire contract.
//
// Ownership boundary:
// - frame/header primitives (frame)
// - tlv payload primitives (tlv)
// - required-field validation (schema)
// - typed fetch/slab/error messages built on the three (this package)
package protocol
