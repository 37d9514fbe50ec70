// Package migrations carries DeskPilot's schema in the binary. A blank
// import hands the embedded files to the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/deskpilot/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS, database.MigrationsDir = files, "."
}
