package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
	auditdomain "github.com/claimlens/claimlens/internal/audit/domain"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
	paymentdomain "github.com/claimlens/claimlens/internal/payment/domain"
	"github.com/claimlens/claimlens/internal/ratelimit"
	unlockdomain "github.com/claimlens/claimlens/internal/unlock/domain"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// RunMigrations brings the schema up to date. Postgres runs the embedded,
// versioned migrations; other dialects (sqlite in dev and tests, mysql) fall
// back to AutoMigrate since golang-migrate would need a separate driver per
// dialect for the same DDL.
func RunMigrations(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	if conn.Dialector.Name() != "postgres" {
		return autoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return runVersioned(sqlDB)
}

func runVersioned(db *sql.DB) error {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&assetdomain.Asset{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.Wallet{},
		&unlockdomain.UnlockRecord{},
		&unlockdomain.SpendJournalEntry{},
		&paymentdomain.EventRecord{},
		&ratelimit.RateLimitSample{},
		&auditdomain.AuditLog{},
	)
}
