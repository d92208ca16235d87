// Package canon provides canonical JSON encoding and domain-separated hashing
// for persisted rows.
//
// Canonical rows are what makes "run the pipeline twice, get the same store"
// checkable: two stores with the same rows produce byte-identical canonical
// output regardless of insert order, driver return types or Unicode
// composition of text values.
//
// Rules:
//   - object keys sorted by UTF-16 code units (RFC 8785)
//   - strings NFC normalized, no HTML escaping
//   - NULL encodes as null (database rows carry NULLs)
//   - floats are rejected; decimals are persisted as fixed-point TEXT
package canon
