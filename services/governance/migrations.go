package governance

import "github.com/tokenops/capguard/models"

// migrationKey identifies a single-step schema migration.
type migrationKey struct {
	from uint8
	to   uint8
}

// migrationFunc rewrites a record in place for the target version. The
// caller bumps SchemaVersion after a successful run.
type migrationFunc func(record *models.PolicyRecord) error

// migrations holds the registered version transitions. Empty while version 1
// is the only schema; future versions add their entry here together with a
// raised models.SupportedSchemaCeiling.
var migrations = map[migrationKey]migrationFunc{}
