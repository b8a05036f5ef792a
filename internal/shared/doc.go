// Package shared holds helpers used across DataPulse packages that do not
// belong to any single domain.
//
// # Test Utilities
//
// The testutil subpackage provides:
//
//   - NewTestLogger, a *slog.Logger backed by a capturing handler so tests
//     can assert on log output
//   - NewResultsWorkbook and NewWorkbook, which render examination result
//     rows into an in-memory .xlsx the same way a real export looks
//
// Example:
//
//	func TestIngest(t *testing.T) {
//		logger, handler := testutil.NewTestLogger(t)
//		data := testutil.NewResultsWorkbook(t,
//			testutil.ResultRow(3, "R001", "MA101", "A", "CS"),
//		)
//		// ... exercise the parser with logger and data
//		assert.True(t, handler.ContainsMessage("parse complete"))
//	}
//
// Only test helpers and domain-free utilities live here. Nothing in this
// tree may import a production package that in turn imports shared.
package shared
