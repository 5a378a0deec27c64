package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_create_rooms.up.sql":   {Data: []byte("CREATE TABLE rooms (id TEXT PRIMARY KEY);")},
		"20260101_000000_create_rooms.down.sql": {Data: []byte("DROP TABLE rooms;")},
		"20260102_000000_add_lamps.up.sql":      {Data: []byte("CREATE TABLE lamps (id TEXT PRIMARY KEY, room TEXT);")},
		"20260102_000000_add_lamps.down.sql":    {Data: []byte("DROP TABLE lamps;")},
		"README.md":                             {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"rooms", "lamps"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || applied[0].Version != "20260101_000000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("applied = %+v", applied)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %+v, want none", pending)
	}

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureKeepsEarlierMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := testMigrations()
	fsys["20260102_000000_add_lamps.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE lamps (")}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() with broken SQL should fail")
	}
	if !tableExists(t, db, "rooms") {
		t.Error("earlier migration was rolled back")
	}

	_, pending, err := db.MigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "add_lamps" {
		t.Errorf("pending = %+v, want add_lamps", pending)
	}

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() after fix error = %v", err)
	}
	if !tableExists(t, db, "lamps") {
		t.Error("fixed migration not applied")
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Fatalf("MigrateDown() on empty database error = %v", err)
	}
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "lamps") {
		t.Error("latest migration not rolled back")
	}
	if !tableExists(t, db, "rooms") {
		t.Error("older migration rolled back too")
	}

	applied, _, err := db.MigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("applied = %d after rollback, want 1", len(applied))
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260101_000000_one_way.up.sql": {Data: []byte("CREATE TABLE one_way (id INTEGER);")},
	}
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); !errors.Is(err, ErrNoDownMigration) {
		t.Errorf("MigrateDown() error = %v, want ErrNoDownMigration", err)
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
	if err := db.Migrate(context.Background(), fstest.MapFS{}); err != nil {
		t.Errorf("Migrate(empty) error = %v", err)
	}
}

func TestLoadMigrations_OrphanDown(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101_000000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	}
	if _, err := LoadMigrations(fsys); err == nil {
		t.Error("LoadMigrations() with a down-only migration should fail")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260118_120000_create_users.up.sql", "20260118_120000", "create_users", true, true},
		{"20260118_120000_add_email_to_users.down.sql", "20260118_120000", "add_email_to_users", false, true},
		{"20260118_120000.up.sql", "20260118_120000", "", true, true},
		{"readme.txt", "", "", false, false},
		{"20260118_120000_create_users.sql", "", "", false, false},
		{"invalid.up.sql", "", "", false, false},
		{"2026_12_x.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)", version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
