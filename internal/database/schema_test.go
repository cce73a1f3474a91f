package database

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationFilesExist(t *testing.T) {
	expectedMigrations := []string{
		"00001_create_client_state_table.sql",
		"00002_add_client_state_prefix_index.sql",
	}

	for _, migration := range expectedMigrations {
		if _, err := fs.Stat(migrationsFS, MigrationsDir+"/"+migration); err != nil {
			t.Errorf("Migration file %s does not exist: %v", migration, err)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	files, err := fs.ReadDir(migrationsFS, MigrationsDir)
	if err != nil {
		t.Fatalf("Failed to read migrations directory: %v", err)
	}

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		content, err := fs.ReadFile(migrationsFS, MigrationsDir+"/"+file.Name())
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", file.Name(), err)
			continue
		}

		contentStr := string(content)
		for _, directive := range []string{
			"-- +goose Up",
			"-- +goose Down",
			"-- +goose StatementBegin",
			"-- +goose StatementEnd",
		} {
			if !strings.Contains(contentStr, directive) {
				t.Errorf("Migration file %s missing '%s' directive", file.Name(), directive)
			}
		}
	}

	if sqlFileCount == 0 {
		t.Error("No SQL migration files found")
	}
}

func TestClientStateTableHasRequiredColumns(t *testing.T) {
	content, err := fs.ReadFile(migrationsFS, MigrationsDir+"/00001_create_client_state_table.sql")
	if err != nil {
		t.Fatalf("Failed to read client_state migration: %v", err)
	}

	contentStr := string(content)
	for _, column := range []string{
		"CREATE TABLE IF NOT EXISTS client_state",
		"namespace VARCHAR",
		"key VARCHAR",
		"value TEXT",
		"updated_at TIMESTAMP",
		"PRIMARY KEY (namespace, key)",
		"DROP TABLE IF EXISTS client_state",
	} {
		if !strings.Contains(contentStr, column) {
			t.Errorf("client_state migration missing: %s", column)
		}
	}
}
