package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/storage"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

func TestConfirmCreatesIncomeEntry(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	a := seedAppointment(t, db, "evt-1")

	entryID, err := svc.Confirm(ctx, ConfirmInput{
		AppointmentID:   a.ID,
		Amount:          "69.00",
		PaymentMethod:   models.PaymentMethodCash,
		TreatmentTypeID: ptr("tt-lash-lift"),
	})
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	got, _ := svc.Get(ctx, a.ID)
	if got.Status != models.StatusConfirmed || got.ConfirmedAt == nil {
		t.Errorf("appointment after confirm: %+v", got)
	}

	entry, err := storage.NewIncomeRepository(db).GetByID(ctx, entryID)
	if err != nil || entry == nil {
		t.Fatalf("income entry %s: %v, %v", entryID, entry, err)
	}
	if entry.AmountString() != "69.00" {
		t.Errorf("amount = %s, want 69.00", entry.AmountString())
	}
	if !entry.IncomeDate.Equal(a.StartTime) {
		t.Errorf("income date = %v, want %v", entry.IncomeDate, a.StartTime)
	}
	if entry.AppointmentID == nil || *entry.AppointmentID != a.ID {
		t.Errorf("appointment link = %v", entry.AppointmentID)
	}
}

func TestConfirmTwiceUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	a := seedAppointment(t, db, "evt-1")

	first, err := svc.Confirm(ctx, ConfirmInput{AppointmentID: a.ID, Amount: "69.00", PaymentMethod: "cash"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Confirm(ctx, ConfirmInput{
		AppointmentID:   a.ID,
		Amount:          "59",
		PaymentMethod:   "card",
		TreatmentTypeID: ptr("tt-brow-lift"),
	})
	if err != nil {
		t.Fatalf("second Confirm() error = %v", err)
	}
	if first != second {
		t.Errorf("second confirm returned entry %s, want %s", second, first)
	}

	entries, _ := svc.ListIncome(ctx, nil, nil)
	if len(entries) != 1 {
		t.Fatalf("got %d income entries, want 1", len(entries))
	}
	e := entries[0]
	if e.AmountString() != "59.00" || e.PaymentMethod != "card" || e.TreatmentTypeID == nil || *e.TreatmentTypeID != "tt-brow-lift" {
		t.Errorf("entry not updated: %+v", e)
	}

	history, _ := svc.History(ctx, a.ID)
	if len(history) != 2 || history[1].Action != string(ActionConfirmUpdate) {
		t.Fatalf("history = %+v", history)
	}
}

func TestConfirmAfterRevertReusesEntry(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	a := seedAppointment(t, db, "evt-1")

	first, err := svc.Confirm(ctx, ConfirmInput{AppointmentID: a.ID, Amount: "69.00", PaymentMethod: "cash"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Revert(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	entries, _ := svc.ListIncome(ctx, nil, nil)
	if len(entries) != 1 {
		t.Fatalf("revert touched the income entry: %d entries", len(entries))
	}

	second, err := svc.Confirm(ctx, ConfirmInput{AppointmentID: a.ID, Amount: "75.00", PaymentMethod: "cash"})
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("reconfirm created entry %s, want reuse of %s", second, first)
	}
	got, _ := svc.Get(ctx, a.ID)
	if got.Status != models.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
}

func TestConfirmRecreatesDeletedEntry(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	a := seedAppointment(t, db, "evt-1")

	first, err := svc.Confirm(ctx, ConfirmInput{AppointmentID: a.ID, Amount: "69.00", PaymentMethod: "cash"})
	if err != nil {
		t.Fatal(err)
	}
	confirmed, _ := svc.Get(ctx, a.ID)
	if err := svc.DeleteIncome(ctx, first); err != nil {
		t.Fatal(err)
	}

	second, err := svc.Confirm(ctx, ConfirmInput{AppointmentID: a.ID, Amount: "80.00", PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("Confirm() without live entry error = %v", err)
	}
	if second == first {
		t.Fatal("confirm reused the deleted entry")
	}

	got, _ := svc.Get(ctx, a.ID)
	if got.Status != models.StatusConfirmed || got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(*confirmed.ConfirmedAt) {
		t.Errorf("appointment changed by repair: %+v", got)
	}

	entries, _ := svc.ListIncome(ctx, nil, nil)
	if len(entries) != 1 || entries[0].ID != second || entries[0].AmountString() != "80.00" {
		t.Errorf("income entries = %+v", entries)
	}

	history, _ := svc.History(ctx, a.ID)
	last := history[len(history)-1]
	if last.Action != string(ActionConfirm) {
		t.Errorf("last action = %s, want %s", last.Action, ActionConfirm)
	}
	for _, c := range last.Changes {
		if c.Field == models.FieldStatus {
			t.Errorf("repair recorded a status change: %+v", c)
		}
	}
}

func TestConfirmRollsBackOnIncomeFailure(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	a := seedAppointment(t, db, "evt-1")

	_, err := svc.Confirm(ctx, ConfirmInput{
		AppointmentID: a.ID,
		Amount:        "69.00",
		PaymentMethod: "cash",
		CustomerID:    ptr("no-such-customer"),
	})
	wantCode(t, err, apperror.CodeValidation)

	got, _ := svc.Get(ctx, a.ID)
	if got.Status != models.StatusPending || got.ConfirmedAt != nil {
		t.Errorf("appointment left in %s after failed confirm", got.Status)
	}

	linked, err := storage.NewIncomeRepository(db).GetByAppointmentID(ctx, a.ID)
	if err != nil || linked != nil {
		t.Errorf("income entry after rollback = %v, %v", linked, err)
	}
	history, _ := svc.History(ctx, a.ID)
	if len(history) != 0 {
		t.Errorf("audit entries after rollback: %+v", history)
	}
}

func TestConfirmWithCustomer(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	a := seedAppointment(t, db, "evt-1")

	c := &models.Customer{Name: "Anna"}
	if err := storage.NewCatalogRepository(db).CreateCustomer(ctx, c); err != nil {
		t.Fatal(err)
	}

	override := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	entryID, err := svc.Confirm(ctx, ConfirmInput{
		AppointmentID: a.ID,
		Amount:        "69.00",
		PaymentMethod: "card",
		CustomerID:    &c.ID,
		IncomeDate:    &override,
	})
	if err != nil {
		t.Fatal(err)
	}
	entry, _ := storage.NewIncomeRepository(db).GetByID(ctx, entryID)
	if entry.CustomerID == nil || *entry.CustomerID != c.ID || !entry.IncomeDate.Equal(override) {
		t.Errorf("entry = %+v", entry)
	}
}

func TestConfirmRejectsDismissed(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	a := seedAppointment(t, db, "evt-1")

	if _, err := svc.Dismiss(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Confirm(ctx, ConfirmInput{AppointmentID: a.ID, Amount: "69.00", PaymentMethod: "cash"})
	wantCode(t, err, apperror.CodeValidation)
}

func TestConfirmValidation(t *testing.T) {
	svc, db := newTestService(t)
	a := seedAppointment(t, db, "evt-1")

	tests := []struct {
		name string
		in   ConfirmInput
		code apperror.Code
		msg  string
	}{
		{"missing amount", ConfirmInput{AppointmentID: a.ID, PaymentMethod: "cash"}, apperror.CodeValidation, "Betrag fehlt"},
		{"negative amount", ConfirmInput{AppointmentID: a.ID, Amount: "-5", PaymentMethod: "cash"}, apperror.CodeValidation, ""},
		{"three decimals", ConfirmInput{AppointmentID: a.ID, Amount: "69.001", PaymentMethod: "cash"}, apperror.CodeValidation, ""},
		{"not a number", ConfirmInput{AppointmentID: a.ID, Amount: "abc", PaymentMethod: "cash"}, apperror.CodeValidation, ""},
		{"bad payment method", ConfirmInput{AppointmentID: a.ID, Amount: "69", PaymentMethod: "paypal"}, apperror.CodeValidation, "Zahlungsart muss einer der Werte cash, card sein"},
		{"unknown appointment", ConfirmInput{AppointmentID: "missing", Amount: "69", PaymentMethod: "cash"}, apperror.CodeNotFound, "Termin nicht gefunden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Confirm(context.Background(), tt.in)
			wantCode(t, err, tt.code)
			if tt.msg != "" && apperror.MessageOf(err) != tt.msg {
				t.Errorf("message = %q, want %q", apperror.MessageOf(err), tt.msg)
			}
		})
	}
}
