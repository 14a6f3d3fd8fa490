package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tradecore/internal/models"
)

var notificationColumns = []string{"id", "type", "severity", "symbol", "message", "meta", "timestamp"}

func TestNotificationRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewNotificationRepository(db)
	now := time.Now()

	n := &models.Notification{
		Type:      models.NotificationTypeEmergency,
		Severity:  models.SeverityError,
		Symbol:    "BTCUSD",
		Message:   "drawdown limit breached",
		Meta:      map[string]interface{}{"drawdown": 0.21},
		Timestamp: now,
	}

	mock.ExpectQuery("INSERT INTO notifications").
		WithArgs(models.NotificationTypeEmergency, models.SeverityError, "BTCUSD", "drawdown limit breached", sqlmock.AnyArg(), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.ID != 7 {
		t.Errorf("ID = %d, want 7", n.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNotificationRepositoryCreateDefaultsTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewNotificationRepository(db)

	// Без Meta в insert уходит NULL
	n := &models.Notification{
		Type:     models.NotificationTypeOpen,
		Severity: models.SeverityInfo,
		Symbol:   "ETHUSD",
		Message:  "opened LONG ETHUSD",
	}

	mock.ExpectQuery("INSERT INTO notifications").
		WithArgs(models.NotificationTypeOpen, models.SeverityInfo, "ETHUSD", "opened LONG ETHUSD", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Timestamp.IsZero() {
		t.Error("Timestamp not defaulted")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNotificationRepositoryListRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewNotificationRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(notificationColumns).
		AddRow(2, models.NotificationTypeClose, models.SeverityInfo, "BTCUSD", "closed", []byte(`{"pnl":12.5}`), now).
		AddRow(1, models.NotificationTypeOpen, models.SeverityInfo, "BTCUSD", "opened", nil, now.Add(-time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM notifications").
		WithArgs(50).
		WillReturnRows(rows)

	notifications, err := repo.ListRecent(context.Background(), 50, nil)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("got %d notifications, want 2", len(notifications))
	}
	if notifications[0].Meta["pnl"] != 12.5 {
		t.Errorf("meta not decoded: %+v", notifications[0].Meta)
	}
	if notifications[1].Meta != nil {
		t.Errorf("nil meta column should stay nil, got %+v", notifications[1].Meta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNotificationRepositoryListRecentByTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewNotificationRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM notifications WHERE type = ANY").
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(notificationColumns).
			AddRow(3, models.NotificationTypeEmergency, models.SeverityError, "", "stopped", nil, time.Now()))

	notifications, err := repo.ListRecent(context.Background(), 10, []string{models.NotificationTypeEmergency, models.NotificationTypeRestart})
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Type != models.NotificationTypeEmergency {
		t.Errorf("notifications = %+v", notifications)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNotificationRepositoryDeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewNotificationRepository(db)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectExec("DELETE FROM notifications").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 42 {
		t.Errorf("deleted = %d, want 42", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
