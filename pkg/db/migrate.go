package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate applies the embedded schema files in lexical order. Every statement is idempotent.
func Migrate(ctx context.Context, conn *sql.DB) error {
	files, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, name := range files {
		body, err := schemaFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := conn.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		log.Printf("db: applied %s", name)
	}
	return nil
}
