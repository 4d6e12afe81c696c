package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	testpg "github.com/storefront-kit/storefront/internal/testutil/postgrescontainer"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	if err := testpg.Setup(); err != nil {
		fmt.Println("postgres repository tests skipped:", err)
		os.Exit(0)
	}

	db, err := Open(WithDSN(testpg.DSN()))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open test database:", err)
		os.Exit(1)
	}
	ctx := context.Background()
	if err := MigrateUsers(ctx, db); err != nil {
		fmt.Fprintln(os.Stderr, "migrate users:", err)
		os.Exit(1)
	}
	if err := MigrateProducts(ctx, db); err != nil {
		fmt.Fprintln(os.Stderr, "migrate products:", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	_ = db.Close()
	if err := testpg.Teardown(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: failed to stop postgres test container:", err)
	}
	os.Exit(code)
}
