package db

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

func loggedDB(t *testing.T, slow time.Duration, level gormlogger.LogLevel) (*gorm.DB, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: zerolog.DebugLevel, Format: "json", Output: buf})
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 newQueryLogger(logg, slow).LogMode(level),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	buf.Reset()
	return conn, buf
}

func TestQueryLoggerReportsFailures(t *testing.T) {
	conn, buf := loggedDB(t, time.Hour, gormlogger.Warn)

	require.NoError(t, conn.Create(&testModel{Code: "secret-code"}).Error)
	assert.Empty(t, buf.String(), "fast successful statements stay quiet")

	require.Error(t, conn.Create(&testModel{Code: "secret-code"}).Error)
	out := buf.String()
	assert.Contains(t, out, "query failed")
	assert.Contains(t, out, "INSERT INTO")
	assert.NotContains(t, out, "secret-code")
}

func TestQueryLoggerSkipsRecordNotFound(t *testing.T) {
	conn, buf := loggedDB(t, time.Hour, gormlogger.Warn)
	var row testModel
	require.ErrorIs(t, conn.First(&row, "code = ?", "missing").Error, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())
}

func TestQueryLoggerFlagsSlowStatements(t *testing.T) {
	conn, buf := loggedDB(t, time.Nanosecond, gormlogger.Warn)
	var rows []testModel
	require.NoError(t, conn.Find(&rows, "code = ?", "hidden").Error)
	assert.Contains(t, buf.String(), "slow query")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestQueryLoggerSilent(t *testing.T) {
	conn, buf := loggedDB(t, time.Nanosecond, gormlogger.Silent)
	var rows []testModel
	require.NoError(t, conn.Find(&rows).Error)
	assert.Empty(t, buf.String())
}

func TestQueryLoggerInfoLogsEveryStatement(t *testing.T) {
	conn, buf := loggedDB(t, time.Hour, gormlogger.Info)
	var rows []testModel
	require.NoError(t, conn.Find(&rows).Error)
	assert.Contains(t, buf.String(), `"message":"query"`)
}

var _ gormlogger.Interface = (*queryLogger)(nil)
