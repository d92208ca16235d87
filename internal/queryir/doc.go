// Package queryir provides the query intermediate representation behind
// the read-only query facade.
//
// Callers describe what they want as filters over the joined
// property/assessment view; backends (package querysql) decide how to read
// it. Keeping the two apart means the facade's HTTP and CLI front ends never
// build SQL, and a backend can choose the driving index without callers
// knowing the schema's index names.
//
// The fragment is deliberately small:
//   - Select(from, filter, page) over a named view
//   - Predicates: Equals, In, And
//   - Values: String and Int only (no floats, no NULLs)
//
// Query, Predicate and Value are sealed interfaces using the marker method
// pattern, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case In:
//	    // field IN (...)
//	case Equals:
//	    // field = ?
//	case And:
//	    // conjunction
//	}
//
// Every query is ordered by (property_id, roll_year). Pagination over an
// unordered result is meaningless, so backends must not drop the ordering.
package queryir
