package db

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestLoadMigrations(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"010_records.sql":      "SELECT 10;",
		"002_appointments.sql": "SELECT 2;",
		"001_directory.sql":    "CREATE TABLE doctor_profile (id UUID PRIMARY KEY);",
		"005_reminders.sql":    "SELECT 5;",
	})

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(migrations))
	}

	expectedVersions := []int{1, 2, 5, 10}
	for i, expected := range expectedVersions {
		if migrations[i].Version != expected {
			t.Errorf("migration[%d]: expected version %d, got %d", i, expected, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_directory.sql" {
		t.Errorf("expected name 001_directory.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE doctor_profile (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsUnversioned(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"001_valid.sql":      "SELECT 1;",
		"readme.sql":         "-- no version prefix",
		"notes.txt":          "not sql",
		"abc_invalid.sql":    "-- non-numeric prefix",
		"002_also_valid.sql": "SELECT 2;",
	})

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"001_a.sql": "SELECT 1;",
		"01_b.sql":  "SELECT 1;",
	})
	if _, err := NewMigrator(nil, fsys).LoadMigrations(); err == nil {
		t.Error("expected error for duplicate version")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestMigratorUp_AppliesPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	fsys := migrationFS(map[string]string{
		"001_directory.sql":    "CREATE TABLE a (id INT);",
		"002_appointments.sql": "CREATE TABLE b (id INT);",
	})
	m := NewMigrator(mock, fsys)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenant_demo._migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version, applied_at FROM tenant_demo._migrations").
		WillReturnRows(pgxmock.NewRows([]string{"version", "applied_at"}).AddRow(1, time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path TO tenant_demo, public").WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO _migrations").WithArgs(2, "002_appointments.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := m.Up(context.Background(), "tenant_demo")
	if err != nil {
		t.Fatalf("Up() error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 migration applied, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigratorStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	fsys := migrationFS(map[string]string{
		"001_directory.sql":    "SELECT 1;",
		"002_appointments.sql": "SELECT 2;",
	})
	appliedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version, applied_at").
		WillReturnRows(pgxmock.NewRows([]string{"version", "applied_at"}).AddRow(1, appliedAt))

	statuses, err := NewMigrator(mock, fsys).Status(context.Background(), "tenant_demo")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(appliedAt) {
		t.Errorf("expected 001 applied at %v, got %+v", appliedAt, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Errorf("expected 002 pending, got %+v", statuses[1])
	}
}

func TestListTenants(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("FROM information_schema.schemata").
		WillReturnRows(pgxmock.NewRows([]string{"substr"}).AddRow("acme").AddRow("default"))

	ids, err := ListTenants(context.Background(), mock)
	if err != nil {
		t.Fatalf("ListTenants() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "acme" || ids[1] != "default" {
		t.Errorf("unexpected tenants: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
