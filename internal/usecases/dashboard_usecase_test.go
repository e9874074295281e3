package usecases

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remnabot/internal/entities"
)

func TestListUsersClampsPage(t *testing.T) {
	store, mock := newMockStore(t)
	dash := NewDashboardUsecase(store)

	expectScopedBegin(mock)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE bot_id").
		WithArgs(testBotID, maxPageSize, 0).
		WillReturnRows(userRow(11, 1001, 0, nil))
	mock.ExpectRollback()

	users, err := dash.ListUsers(botCtx(), 10_000, -5)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlanValidation(t *testing.T) {
	store, _ := newMockStore(t)
	dash := NewDashboardUsecase(store)

	for _, p := range []entities.Plan{
		{Title: "", DurationDays: 30, Price: 100},
		{Title: "Month", DurationDays: 0, Price: 100},
		{Title: "Month", DurationDays: 30, Price: -1},
	} {
		p := p
		assert.ErrorIs(t, dash.CreatePlan(botCtx(), &p), entities.ErrInvalidInput)
	}
}

func TestDeletePlanDeactivates(t *testing.T) {
	store, mock := newMockStore(t)
	dash := NewDashboardUsecase(store)

	expectScopedBegin(mock)
	mock.ExpectExec("UPDATE plans SET is_active = FALSE").
		WithArgs(testBotID, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, dash.DeletePlan(botCtx(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSettingRejectsUnknownKeys(t *testing.T) {
	store, _ := newMockStore(t)
	dash := NewDashboardUsecase(store)

	assert.ErrorIs(t, dash.SetSetting(botCtx(), "theme", "dark"), entities.ErrInvalidInput)
}
