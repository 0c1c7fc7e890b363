// migrate applies, rolls back or reports the embedded Postgres credential store
// schema: go run ./cmd/migrate -direction up|down|version.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"bottle-monitor/backend/internal/config"
	"bottle-monitor/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "up, down or version")
	dsn := flag.String("dsn", "", "Postgres DSN (defaults to DATABASE_URL)")
	flag.Parse()

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		fail(err)
	}
	if *dsn == "" {
		cfg, err := config.Read(".env")
		if err != nil {
			fail(fmt.Errorf("config: %w", err))
		}
		*dsn = cfg.DatabaseURL
	}

	st, err := migrate.Run(*dsn, dir)
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		fmt.Printf("no change; schema at version %d of %d\n", st.Version, st.Latest)
	case err != nil:
		fail(err)
	case dir == migrate.Version:
		fmt.Printf("schema at version %d of %d (dirty=%t)\n", st.Version, st.Latest, st.Dirty)
	default:
		fmt.Printf("migrations applied (%s); schema at version %d of %d\n", dir, st.Version, st.Latest)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}
