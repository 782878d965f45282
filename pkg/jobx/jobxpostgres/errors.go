package jobxpostgres

import "github.com/Abraxas-365/jobqueue/pkg/errx"

var pgErrors = errx.NewRegistry("JOBX_PG")

var (
	ErrQuery    = pgErrors.Register("QUERY", errx.TypeExternal, 502, "Postgres query failed")
	ErrTx       = pgErrors.Register("TRANSACTION", errx.TypeExternal, 502, "Postgres transaction failed")
	ErrMigrate  = pgErrors.Register("MIGRATE", errx.TypeExternal, 502, "Failed to create job tables")
	ErrBadState = pgErrors.Register("BAD_STATE", errx.TypeInternal, 500, "Unexpected job state in database")
)

// uniqueViolation is the Postgres error code for a duplicate primary key.
const uniqueViolation = "23505"
