// Package migrate applies the embedded credential store schema with golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"bottle-monitor/backend/internal/db"
)

// Direction selects what Run does.
type Direction string

const (
	Up      Direction = "up"
	Down    Direction = "down"
	Version Direction = "version"
)

var (
	// ErrNoChange is returned by Run when the schema is already at the target version.
	ErrNoChange = migrate.ErrNoChange
	// ErrNoDSN is returned when no database URL was supplied.
	ErrNoDSN = errors.New("DATABASE_URL is not set")
	// ErrDirection is returned for an unrecognised direction.
	ErrDirection = errors.New("direction must be up, down or version")
)

// ParseDirection normalises s into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Up, Down, Version:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrDirection, s)
}

// State is the schema version recorded in the database.
type State struct {
	Version uint
	Dirty   bool
	Latest  uint
}

// Run applies d against dsn and returns the resulting state. Up and Down return
// ErrNoChange (with a valid state) when there was nothing to do.
func Run(dsn string, d Direction) (State, error) {
	if strings.TrimSpace(dsn) == "" {
		return State{}, ErrNoDSN
	}
	d, err := ParseDirection(string(d))
	if err != nil {
		return State{}, err
	}
	latest, err := LatestVersion()
	if err != nil {
		return State{}, err
	}
	src, err := iofs.New(db.Migrations, db.MigrationsDir)
	if err != nil {
		return State{}, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return State{}, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	var runErr error
	switch d {
	case Up:
		runErr = m.Up()
	case Down:
		runErr = m.Down()
	}
	if runErr != nil && !errors.Is(runErr, migrate.ErrNoChange) {
		return State{}, runErr
	}
	st := State{Latest: latest}
	st.Version, st.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return State{}, fmt.Errorf("migrate version: %w", err)
	}
	return st, runErr
}

// Versions lists the embedded migration versions in ascending order. Every
// version must ship both an up and a down file.
func Versions() ([]uint, error) {
	entries, err := fs.ReadDir(db.Migrations, db.MigrationsDir)
	if err != nil {
		return nil, err
	}
	seen := map[uint]int{}
	for _, e := range entries {
		name := e.Name()
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", name)
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			seen[uint(v)] |= 1
		case strings.HasSuffix(name, ".down.sql"):
			seen[uint(v)] |= 2
		default:
			return nil, fmt.Errorf("migration %s: not an up or down file", name)
		}
	}
	out := make([]uint, 0, len(seen))
	for v, mask := range seen {
		if mask != 3 {
			return nil, fmt.Errorf("migration %06d: up and down files must both exist", v)
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// LatestVersion returns the highest embedded migration version.
func LatestVersion() (uint, error) {
	vs, err := Versions()
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, errors.New("no embedded migrations")
	}
	return vs[len(vs)-1], nil
}

// EnsureLatest migrates dsn up and treats an already current schema as success.
func EnsureLatest(dsn string) error {
	st, err := Run(dsn, Up)
	if err != nil && !errors.Is(err, ErrNoChange) {
		return err
	}
	if st.Dirty {
		return fmt.Errorf("migrate: schema version %d is dirty", st.Version)
	}
	return nil
}
