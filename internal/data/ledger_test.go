package data

import (
	"context"
	"testing"
	"time"

	"gamification/internal/biz"
	"gamification/internal/pkg/snowflake"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kratos/kratos/v2/log"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIDs(t *testing.T) *snowflake.Generator {
	ids, err := snowflake.NewGenerator(1, log.DefaultLogger)
	require.NoError(t, err)
	return ids
}

// TestXPLedgerRepository_Append 测试经验流水写入
func TestXPLedgerRepository_Append(t *testing.T) {
	tests := []struct {
		name    string
		mockFn  func(sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "成功写入",
			mockFn: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `xp_ledger`").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "同一来源重复写入",
			mockFn: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `xp_ledger`").
					WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
				mock.ExpectRollback()
			},
			wantErr: biz.ErrDuplicateAward,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupTestDB(t)
			repo := NewXPLedgerRepository(newTestData(db, 0), newTestIDs(t), log.DefaultLogger)
			tt.mockFn(mock)

			entry := biz.NewXPLedgerEntry(1, biz.XPSourceCVUpload, 25, "cv-1", "uploaded a cv", time.Now())
			err := repo.Append(context.Background(), entry)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NotZero(t, entry.ID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestXPLedgerRepository_ExistsSince(t *testing.T) {
	tests := []struct {
		name   string
		since  time.Time
		query  string
		count  int
		wantOK bool
	}{
		{
			name:   "不限时间",
			query:  "SELECT count\\(\\*\\) FROM `xp_ledger` WHERE user_id = \\? AND source = \\? AND source_id = \\?$",
			count:  1,
			wantOK: true,
		},
		{
			name:   "限定时间之后",
			since:  time.Now().Add(-24 * time.Hour),
			query:  "SELECT count\\(\\*\\) FROM `xp_ledger` WHERE .*created_at >= \\?",
			count:  0,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupTestDB(t)
			repo := NewXPLedgerRepository(newTestData(db, 0), newTestIDs(t), log.DefaultLogger)
			mock.ExpectQuery(tt.query).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))

			ok, err := repo.ExistsSince(context.Background(), 1, biz.XPSourceStreakBonus, "streak-7", tt.since)

			assert.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestXPLedgerRepository_ListByUser(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewXPLedgerRepository(newTestData(db, 0), newTestIDs(t), log.DefaultLogger)

	now := time.Now()
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `xp_ledger` WHERE user_id = \\?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT \\* FROM `xp_ledger` WHERE user_id = \\? ORDER BY created_at DESC.*id DESC LIMIT \\? OFFSET \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "source", "source_id", "created_at"}).
			AddRow(11, 1, 25, "CV_UPLOAD", "cv-3", now))

	entries, total, err := repo.ListByUser(context.Background(), 1, 2, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, entries, 1)
	assert.Equal(t, biz.XPSourceCVUpload, entries[0].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPointsLedgerRepository_Dedupe sqlite 上按去重键拒绝第二次写入
func TestPointsLedgerRepository_Dedupe(t *testing.T) {
	d := setupSQLiteData(t)
	repo := NewPointsLedgerRepository(d, newTestIDs(t), log.DefaultLogger)
	ctx := context.Background()

	key := "STREAK_BONUS:streak-7"
	first := &biz.PointsLedgerEntry{UserID: 1, Amount: 10, Source: biz.PointsSourceStreakBonus, SourceID: "streak-7", DedupeKey: &key, CreatedAt: time.Now().UTC()}
	second := &biz.PointsLedgerEntry{UserID: 1, Amount: 10, Source: biz.PointsSourceStreakBonus, SourceID: "streak-7", DedupeKey: &key, CreatedAt: time.Now().UTC()}

	require.NoError(t, repo.Append(ctx, first))
	assert.ErrorIs(t, repo.Append(ctx, second), biz.ErrDuplicateAward)

	// 不带去重键的流水可以重复
	for i := 0; i < 2; i++ {
		err := repo.Append(ctx, &biz.PointsLedgerEntry{UserID: 1, Amount: -5, Source: biz.PointsSourceSpend, SourceID: "PREMIUM_TEMPLATE", CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
	}

	ok, err := repo.Exists(ctx, 1, biz.PointsSourceStreakBonus, "streak-7")
	require.NoError(t, err)
	assert.True(t, ok)

	entries, total, err := repo.ListByUser(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 3)
}
