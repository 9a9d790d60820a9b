// Package migrations embeds the SQL schema migrations for the workflow
// core's storage tables. Schema migration tooling itself is an
// out-of-scope external collaborator by design — this package exists
// only so the integration test harness (testutil.RunWithEmbeddedDB) can
// stand up a real schema to test against.
package migrations

import "embed"

// FS is discovered by uptrace/bun/migrate and referenced from
// testutil/embedded_db.go to stand up a schema for integration tests.
//
//go:embed *.sql
var FS embed.FS
