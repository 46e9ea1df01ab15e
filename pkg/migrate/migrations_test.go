package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/packfinderz-settlement/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_transactions": {
			"CREATE TABLE IF NOT EXISTS transactions",
			"CHECK (bonus_amount >= 0 AND bonus_amount <= amount)",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_external_ref",
			"transaction_id uuid NOT NULL UNIQUE",
			"DROP TABLE IF EXISTS transactions",
		},
		"create_inventory_items": {
			"CREATE TABLE IF NOT EXISTS inventory_items",
			"CHECK (available_qty >= 0)",
			"CHECK (reserved_qty >= 0)",
			"DROP TABLE IF EXISTS inventory_items",
		},
		"create_credit_tables": {
			"CHECK (balance >= 0)",
			"CREATE TABLE IF NOT EXISTS commission_accruals",
		},
		"create_subscriptions": {
			"CREATE TABLE IF NOT EXISTS subscriptions",
			"source_ref text NULL",
			"fk_transactions_subscription",
			"CREATE TABLE IF NOT EXISTS content_access_grants",
		},
		"subscription_renewal_keyset_index": {
			"ON subscriptions (expires_at, id)",
			"WHERE status = 'active' AND auto_renew",
		},
		"create_outbox": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
			"payload_json jsonb NOT NULL",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestEnumMigrationMatchesStates(t *testing.T) {
	content := readMigration(t, "create_enum_types")
	for _, state := range []string{"'pending'", "'completed'", "'failed'", "'cancelled'", "'refunded'", "'partially_refunded'"} {
		if !strings.Contains(content, state) {
			t.Errorf("transaction_state enum missing %s", state)
		}
	}
}
