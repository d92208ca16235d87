// Package store provides SQLite-backed persistence for the pipeline.
//
// The store holds three groups of tables:
//   - Base tables: municipality_assessment_ratios, properties and
//     ny_property_assessments. Written only through WriteBatch.
//   - Derived tables: property_trends and property_trend_summaries.
//     Written only through ReplaceTrends and DeleteTrends.
//   - Operational tables: pipeline_runs and rejected_records.
//
// # Patterns
//
// Natural-key upserts: every base row is written with
// INSERT ... ON CONFLICT(<natural key>) DO UPDATE, so reloading the same
// snapshot rewrites identical rows and never duplicates them.
//
// Last-write-wins on properties: descriptive columns are replaced only when
// the incoming last_roll_year is not older than the stored one. Pages of
// different roll years may therefore load in any order.
//
// Deterministic reads: every multi-row query has an ORDER BY ending in the
// table's full natural key, with COLLATE BINARY on text keys.
//
// Content hash: ContentHash digests the base and derived tables in key
// order using canonical JSON rows (package canon). Two stores with equal
// hashes hold identical domain data.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
