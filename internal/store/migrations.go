package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	notification_id TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	alerted_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_alerted_at ON alerts(alerted_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE alerts ADD COLUMN correlation_id TEXT NOT NULL DEFAULT '';

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
