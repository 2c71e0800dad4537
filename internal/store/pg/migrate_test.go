package pg

import (
	"strings"
	"testing"

	migrations "github.com/dropDatabas3/hellolink/migrations/postgres"
)

func TestParseMigrations_EmbeddedSchema(t *testing.T) {
	migs, err := ParseMigrations(migrations.FS)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(migs) == 0 {
		t.Fatal("no migrations embedded")
	}
	if migs[0].Version != 1 || migs[0].Name != "init" {
		t.Fatalf("first migration = %d_%s", migs[0].Version, migs[0].Name)
	}
	for i := 1; i < len(migs); i++ {
		if migs[i].Version <= migs[i-1].Version {
			t.Fatalf("migrations out of order at index %d", i)
		}
	}
	for _, table := range []string{"client", "app_user", "login_request", "auth_code", "rate_limit"} {
		if !strings.Contains(migs[0].SQL, table) {
			t.Errorf("init migration missing table %s", table)
		}
	}
}
