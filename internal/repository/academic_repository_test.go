package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestClassRepositoryFindDetail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"id", "level_id", "academic_year_id", "name", "capacity", "homeroom_teacher", "level_name", "academic_year_label"}).
		AddRow("class-1", "lvl-6", "ay-1", "6e A", 40, nil, "6e", "2024-2025")
	mock.ExpectQuery(regexp.QuoteMeta("JOIN levels l ON l.id = c.level_id")).WithArgs("class-1").WillReturnRows(rows)

	class, err := repo.FindDetail(context.Background(), "class-1")
	require.NoError(t, err)
	require.Equal(t, "lvl-6", class.LevelID)
	require.Equal(t, "6e", class.LevelName)
	require.Nil(t, class.HomeroomTeacher)
}

func TestSessionRepositoryFindDetailNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions s")).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err := repo.FindDetail(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAcademicYearRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "start_date", "end_date", "is_active"}).
			AddRow("ay-1", "2024-2025", start, start.AddDate(1, 0, 0), true))

	year, err := repo.FindActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ay-1", year.ID)
	require.True(t, year.IsActive)
}

func TestSubjectRepositoryLevelExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM levels WHERE id = $1)")).
		WithArgs("lvl-6").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.LevelExists(context.Background(), "lvl-6")
	require.NoError(t, err)
	require.True(t, ok)
}
