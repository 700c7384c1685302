package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "public.family",
		Columns:      []string{"id", "latin_name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "public.family",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "public.family",
		Columns: []string{"id", "latin_name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_public_family"}, []string{"id", "latin_name"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "public"."family"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "public.family",
		Columns:      []string{"id", "latin_name"},
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "Turdidae"}, {2, "Paridae"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_public_family"}, []string{"id", "latin_name"}).WillReturnError(errors.New("copy broke"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "public.family",
		Columns:      []string{"id", "latin_name"},
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "Turdidae"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
}

func TestUpsertStatement(t *testing.T) {
	sql := upsertStatement(UpsertConfig{
		Table:        "public.species",
		Columns:      []string{"speciesid", "latinname"},
		ConflictKeys: []string{"speciesid"},
	}, "_tmp")
	assert.Equal(t,
		`INSERT INTO "public"."species" ("speciesid", "latinname") SELECT "speciesid", "latinname" FROM "_tmp" ON CONFLICT ("speciesid") DO UPDATE SET "latinname" = EXCLUDED."latinname"`,
		sql)
}

func TestUpsertStatement_NothingToUpdate(t *testing.T) {
	sql := upsertStatement(UpsertConfig{
		Table:        "family",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, "_tmp")
	assert.Contains(t, sql, "ON CONFLICT (\"id\") DO NOTHING")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.observations", `"public"."observations"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"date", "speciesid", "geom"`, quoteAndJoin([]string{"date", "speciesid", "geom"}))
}
