// Package harness runs end-to-end pipeline scenarios described in YAML.
//
// A scenario is a sequence of pipeline runs against one fresh in-memory
// store. Each run is fed an ordered list of pages, and the harness checks
// the run report, then the final store state.
//
// # Scenario Format
//
//	name: out_of_order_retry
//	description: "Assessments that arrive before their ratio load on retry"
//	options:
//	  counties: [ONONDAGA]
//	  extra_passes: 1
//	runs:
//	  - pages:
//	      - feed: rolls
//	        rows:
//	          - {print_key_code: "100.-1-1", roll_year: "2024", assessment_total: "88000"}
//	      - feed: ratios
//	        rows:
//	          - {rate_year: "2024", residential_assessment_ratio: "88.00"}
//	    expect:
//	      status: succeeded
//	      deferred: 1
//	      loaded: {ratios: 1, properties: 1, assessments: 1}
//	assertions:
//	  - type: final_state
//	    table: property_trends
//	    where: {property_id: "312600|100.-1-1", roll_year: 2024}
//	    expect: {full_value: 100000}
//
// Rows are merged over a well-formed record for the page's feed (Camillus,
// Onondaga County; see package testutil) unless the page sets raw: true. A
// field value of "-" deletes the field. A page with fail: set is not served;
// the feed source returns a fetch error at that position instead.
//
// Pages are served in the listed order through a single source, so
// cross-feed arrival order is part of the scenario.
//
// # Assertion Types
//
//   - final_state: exactly one row of a table matches where; expect is a
//     subset of its columns
//   - row_count: the number of rows matching where
//   - rejected: the last run's rejected sink holds a matching row
//   - hash_unchanged: the last two runs left the same content hash
//
// # Deterministic Testing
//
// Runs use testutil.StepClock and testutil.FixedRunIDs, so reports and
// stored state are identical on every execution and can be compared
// against golden files (see RunWithGolden).
package harness
