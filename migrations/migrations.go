// Package migrations embeds the SQL schema of the snapshot store and applies it
// with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver registration.
)

// FS contains the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS

const dialect = "sqlite3"

// Commands lists the goose commands accepted by Command, in help order.
var Commands = []struct {
	Name  string
	Usage string
}{
	{"up", "Migrate to the latest version"},
	{"up-one", "Migrate one version up"},
	{"down", "Roll back one version"},
	{"status", "Show migration status"},
	{"version", "Show current version"},
	{"reset", "Roll back all migrations"},
}

// PrintUsage writes the accepted commands to w.
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, c := range Commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.Name, c.Usage)
	}
}

func setup() error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}

// Run applies all pending migrations to the given database.
func Run(db *sql.DB) error {
	return Command(db, "up")
}

// Command runs a single goose command against db.
func Command(db *sql.DB, cmd string) error {
	if err := setup(); err != nil {
		return err
	}

	var err error
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		return fmt.Errorf("unknown migration command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("migrations %s: %w", cmd, err)
	}
	return nil
}

// Exec opens the SQLite database at path, creating its directory if needed,
// and runs a single goose command.
func Exec(path, cmd string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	return Command(db, cmd)
}
