// Package all registers every storage backend with the factory.
// The pipeline config selects which one to use, but the binary builds in
// support for all of them.
package all

import (
	_ "cafeload/internal/storage/mssql"
	_ "cafeload/internal/storage/postgres"
	_ "cafeload/internal/storage/sqlite"
)
