package index

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func (idx *Index) migrate() error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, idx.conn, migrationsFS)
	if err != nil {
		return err
	}
	_, err = provider.Up(context.Background())
	return err
}
