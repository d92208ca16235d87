// Package model defines the canonical entity shapes produced by the
// normalizer and persisted by the loader, plus the pipeline error taxonomy.
//
// This package imports nothing internal. Every other internal package may
// import model; model never imports them back.
//
// Key constraints:
//   - currency is whole-unit int64, never float
//   - ratios and percentages are shopspring decimals with fixed precision
//   - a Property's ID is always produced by the identity package
package model
