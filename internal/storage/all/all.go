// Package all registers every storage backend.
package all

import (
	_ "tlcetl/internal/storage/mssql"
	_ "tlcetl/internal/storage/postgres"
	_ "tlcetl/internal/storage/sqlite"
)
