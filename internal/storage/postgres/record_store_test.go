package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/thesis-crawler/internal/crawler"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func strPtr(s string) *string { return &s }

func newMockStore(t *testing.T, table string) (*RecordStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewRecordStoreWithPool(mock, table, "run-1", &seqIDs{}, fixedClock{now: now})
	require.NoError(t, err)
	return store, mock, now
}

func TestSaveInsertsRowsInTransaction(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "")
	records := []crawler.Record{
		{
			URL:      "https://www.teses.usp.br/teses/1",
			Query:    "redes",
			Keywords: []string{"sistemas distribuídos", "redes"},
			Title:    strPtr("Redes de sensores"),
			DOI:      strPtr("10.11606/x"),
		},
		{URL: "https://www.teses.usp.br/teses/2", Query: "redes"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO theses").
		WithArgs("id-1", "run-1", now, records[0].URL, "redes", records[0].Keywords,
			"Redes de sensores", nil, nil, nil, nil, nil, "10.11606/x").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO theses").
		WithArgs("id-2", "run-1", now, records[1].URL, "redes", []string{},
			nil, nil, nil, nil, nil, nil, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), records))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t, "theses_2024")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO theses_2024").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), []crawler.Record{{URL: "u"}})
	require.ErrorContains(t, err, "insert record u")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEmptyIsNoop(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t, "")
	require.NoError(t, store.Save(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t, "")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS theses").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(nil, "", "run", &seqIDs{}, fixedClock{})
	require.Error(t, err)
	_, err = NewRecordStoreWithPool(mock, "bad-name;", "run", &seqIDs{}, fixedClock{})
	require.ErrorContains(t, err, "invalid table name")
	_, err = NewRecordStoreWithPool(mock, "", "run", nil, fixedClock{})
	require.Error(t, err)
}

func TestNewRecordStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStore(context.Background(), RecordStoreConfig{}, "run", &seqIDs{}, fixedClock{})
	require.ErrorContains(t, err, "db.dsn is required")
}
