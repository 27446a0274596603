// Package ir provides the JSON-shaped value model shared by every layer of
// stigmergy.
//
// Component instance data, schema documents, bid evaluation results and
// snapshot hashes are all expressed as IRValue. This package imports nothing
// internal, so schema, bid, store and auction can all depend on it without
// cycles.
//
// Key design constraints:
//   - IRValue is sealed: IRNull, IRBool, IRInt, IRFloat, IRString, IRArray, IRObject
//   - Integers and floats are distinct; JSON numbers without a fraction or
//     exponent decode to IRInt so integer schemas can be enforced exactly
//   - IRFloat is always finite (NaN and Inf are rejected at every boundary)
//   - Object iteration uses SortedKeys for deterministic output
package ir
