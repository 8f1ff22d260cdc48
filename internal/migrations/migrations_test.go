package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverPostgres} {
		t.Run(driver, func(t *testing.T) {
			ms, err := Load(driver)
			require.NoError(t, err)
			require.NotEmpty(t, ms)
			assert.Equal(t, "001_initial_schema.sql", ms[0].Name)
			assert.Contains(t, ms[0].SQL, "message_external_ids")
			assert.Contains(t, ms[0].SQL, "UNIQUE (message_id, external_id)")
		})
	}
}

func TestLoad_DialectSpecificTypes(t *testing.T) {
	sqlite, err := GetInitialSchema(DriverSQLite)
	require.NoError(t, err)
	assert.Contains(t, sqlite, "AUTOINCREMENT")

	pg, err := GetInitialSchema("postgresql")
	require.NoError(t, err)
	assert.Contains(t, pg, "BIGSERIAL")
	assert.NotContains(t, pg, "AUTOINCREMENT")
}

func TestLoad_UnknownDriver(t *testing.T) {
	_, err := Load("mysql")
	assert.Error(t, err)
}

func TestLoad_DirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sqlite"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sqlite", "002_extra.sql"), []byte("SELECT 2;"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sqlite", "001_base.sql"), []byte("SELECT 1;"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sqlite", "notes.txt"), []byte("ignored"), 0o600))

	old := MigrationsDir
	MigrationsDir = dir
	defer func() { MigrationsDir = old }()

	ms, err := Load(DriverSQLite)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "001_base.sql", ms[0].Name)
	assert.Equal(t, "SELECT 2;", ms[1].SQL)

	pg, err := Load(DriverPostgres)
	require.NoError(t, err)
	assert.Equal(t, "001_initial_schema.sql", pg[0].Name, "drivers without an override use the embedded schema")
}
