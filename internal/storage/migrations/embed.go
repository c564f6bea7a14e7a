package migrations

import "embed"

// PostgresFS embeds the PostgreSQL schema migrations, applied in
// lexical order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the ClickHouse migrations for the spread-sample
// archive.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
