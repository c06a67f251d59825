package drivers

import (
	// Register pgx's database/sql adapter under the "pgx" driver name so
	// the -db-type=pgx flag works without the native pgx API surface.
	_ "github.com/jackc/pgx/v5/stdlib"
)
