package db

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestAttemptRecorder_RecordAttempt(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer sqlDB.Close()

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to create gorm DB: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `attempts`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	recorder := &AttemptRecorder{db: gormDB}

	err = recorder.RecordAttempt(AttemptInput{
		Timestamp: time.Now(),
		ChainID:   42161,
		Borrower:  "0x000000000000000000000000000000000000b0b",
		Protocol:  "aavev3",
		Status:    StatusSent,
		Reason:    "",
		TxHash:    "0xabc",
		Candidate: map[string]string{"debt": "USDC"},
		Plan:      map[string]string{"mode": "flash"},
	})
	if err != nil {
		t.Errorf("RecordAttempt failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAttemptRecord_TableName(t *testing.T) {
	record := AttemptRecord{}
	expected := "attempts"
	if record.TableName() != expected {
		t.Errorf("TableName() = %v, want %v", record.TableName(), expected)
	}
}

func TestAttemptInputWithoutSnapshotsOmitsJSON(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer sqlDB.Close()

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to create gorm DB: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `attempts`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	recorder := &AttemptRecorder{db: gormDB}
	err = recorder.RecordAttempt(AttemptInput{
		Timestamp: time.Now(),
		ChainID:   8453,
		Borrower:  "0x1",
		Protocol:  "morphoblue",
		Status:    StatusPolicySkip,
		Reason:    "hf-recovered",
	})
	if err != nil {
		t.Errorf("RecordAttempt failed: %v", err)
	}
}
