package security

import "testing"

func TestAllowsTableEmptyList(t *testing.T) {
	a := Allowlist{}
	if !a.AllowsTable("products") {
		t.Fatalf("empty allowlist should admit user tables")
	}
	if a.AllowsTable("information_schema.tables") {
		t.Fatalf("system tables must always be refused")
	}
}

func TestAllowsTableExplicitList(t *testing.T) {
	a := Allowlist{Tables: []string{"products", "categories"}}
	if !a.AllowsTable("products") {
		t.Fatalf("listed table should be allowed")
	}
	if a.AllowsTable("users") {
		t.Fatalf("unlisted table should be refused")
	}
}

func TestIsSystemTable(t *testing.T) {
	for _, name := range []string{"system.tables", "pg_catalog.pg_class", "pg_stat_activity", "sys.objects", "mysql.user"} {
		if !IsSystemTable(name) {
			t.Fatalf("expected %q to be a system table", name)
		}
	}
	if IsSystemTable("products") {
		t.Fatalf("products is not a system table")
	}
}

func TestIsSafeIdentifier(t *testing.T) {
	if !IsSafeIdentifier("stock_quantity") {
		t.Fatalf("expected valid identifier")
	}
	for _, bad := range []string{"", "1abc", "a-b", "a b", "a;b"} {
		if IsSafeIdentifier(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
