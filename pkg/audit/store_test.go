package audit

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func expectInsert(mock sqlmock.Sqlmock, facility int, sev Severity, msgID string) *sqlmock.ExpectedExec {
	return mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(
			facility,         // facility
			int(sev),         // severity
			sqlmock.AnyArg(), // timestamp
			sqlmock.AnyArg(), // hostname
			"medcattrainer",  // appname
			sqlmock.AnyArg(), // procid
			msgID,            // msgid
			sqlmock.AnyArg(), // sdata (JSON)
			sqlmock.AnyArg(), // message
		)
}

func TestStoreSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStoreWithDB(db)

	event := SubmitDocumentEvent{
		Username:   "annotator",
		ClientIP:   "10.0.0.1",
		ProjectID:  1,
		DocumentID: 7,
		Success:    true,
	}

	expectInsert(mock, FacilityAuth, SeverityInfo, "submit").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Save(event); err != nil {
		t.Errorf("Save() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStoreSaveAuthenticateEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStoreWithDB(db)

	event := AuthenticateEvent{
		Username:          "admin",
		ClientIP:          "192.168.1.1",
		AuthenticatorName: "authn",
		Success:           true,
	}

	expectInsert(mock, FacilityAuthPriv, SeverityInfo, "authn").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Save(event); err != nil {
		t.Errorf("Save() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStoreSaveFailedEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStoreWithDB(db)

	event := ImportEvent{
		Username:     "admin",
		ClientIP:     "10.0.0.1",
		Kind:         KindDeployment,
		ErrorMessage: "archive entry escapes media root",
	}

	// Failed events have warning severity
	expectInsert(mock, FacilityAuthPriv, SeverityWarning, "import").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Save(event); err != nil {
		t.Errorf("Save() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStoreSaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStoreWithDB(db)

	expectInsert(mock, FacilityAuth, SeverityInfo, "save-model").
		WillReturnError(errors.New("relation \"messages\" does not exist"))

	if err := store.Save(SaveModelEvent{Username: "admin", ProjectID: 1, Success: true}); err == nil {
		t.Error("Save() expected error")
	}
}

func TestStoreNilDB(t *testing.T) {
	store := &Store{db: nil}

	event := ExportEvent{
		Username:   "admin",
		Kind:       KindAnnotations,
		ProjectIDs: []uint{1},
		Success:    true,
	}

	// Should not error when db is nil
	if err := store.Save(event); err != nil {
		t.Errorf("Save() with nil db should not error, got: %v", err)
	}
}

func TestNewStoreWithoutURL(t *testing.T) {
	t.Setenv("AUDIT_DATABASE_URL", "")

	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store != nil {
		t.Error("Expected nil store without AUDIT_DATABASE_URL")
	}
}

func TestStoreClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	store := NewStoreWithDB(db)

	mock.ExpectClose()

	if err := store.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStoreCloseNilDB(t *testing.T) {
	store := &Store{db: nil}

	if err := store.Close(); err != nil {
		t.Errorf("Close() with nil db should not error, got: %v", err)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(SaveModelEvent{Username: "admin", ProjectID: 3, Success: true})

	if msg.Facility != FacilityAuth {
		t.Errorf("Message.Facility = %v, want %v", msg.Facility, FacilityAuth)
	}
	if msg.Msgid != "save-model" {
		t.Errorf("Message.Msgid = %v, want 'save-model'", msg.Msgid)
	}
	if msg.Appname != "medcattrainer" {
		t.Errorf("Message.Appname = %v, want 'medcattrainer'", msg.Appname)
	}
	if _, ok := msg.Sdata[SDIDSubject]; !ok {
		t.Error("Expected subject structured data")
	}
}
