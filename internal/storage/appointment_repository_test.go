package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lash-studio/backoffice/internal/storage"
	"github.com/lash-studio/backoffice/internal/storage/models"
	"github.com/lash-studio/backoffice/internal/storage/storagetest"
)

func lashLift() models.CalendarEvent {
	return models.CalendarEvent{
		ID:        "evt-1",
		ChangeKey: "k1",
		Subject:   "Lash Lift",
		Start:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		End:       time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Location:  "Studio",
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := storagetest.NewDB(t)

	n, err := storage.RunMigrations(context.Background(), db)
	if err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second run applied %d migrations, want 0", n)
	}
}

func TestInsertFromEventIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewAppointmentRepository(storagetest.NewDB(t))

	a, created, err := repo.InsertFromEvent(ctx, lashLift())
	if err != nil || !created {
		t.Fatalf("first insert = (%v, %v), want created", created, err)
	}

	_, created, err = repo.InsertFromEvent(ctx, lashLift())
	if err != nil {
		t.Fatalf("second insert error = %v", err)
	}
	if created {
		t.Error("second insert created a row for the same external id")
	}

	got, err := repo.GetByExternalID(ctx, "evt-1")
	if err != nil || got == nil {
		t.Fatalf("GetByExternalID() = %v, %v", got, err)
	}
	if got.ID != a.ID || got.Status != models.StatusPending || got.Cancelled {
		t.Errorf("unexpected row: %+v", got)
	}
	if !got.StartTime.Equal(lashLift().Start) {
		t.Errorf("start = %v, want %v", got.StartTime, lashLift().Start)
	}
	if got.Location == nil || *got.Location != "Studio" {
		t.Errorf("location = %v", got.Location)
	}
}

func TestConditionalUpdatesRespectStatus(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewAppointmentRepository(storagetest.NewDB(t))

	a, _, err := repo.InsertFromEvent(ctx, lashLift())
	if err != nil {
		t.Fatal(err)
	}

	ok, err := repo.UpdateStatus(ctx, a.ID, []models.AppointmentStatus{models.StatusPending}, models.StatusConfirmed)
	if err != nil || !ok {
		t.Fatalf("confirm = (%v, %v)", ok, err)
	}

	changed := lashLift()
	changed.ChangeKey = "k2"
	changed.Subject = "Brow Lift"
	ok, err = repo.UpdateFromEvent(ctx, a.ID, changed)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("UpdateFromEvent changed a confirmed appointment")
	}

	ok, err = repo.DismissIfPending(ctx, a.ID)
	if err != nil || ok {
		t.Errorf("DismissIfPending on confirmed = (%v, %v), want false", ok, err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if got.Subject != "Lash Lift" || got.Status != models.StatusConfirmed || got.ConfirmedAt == nil {
		t.Errorf("unexpected row after guarded writes: %+v", got)
	}

	ok, err = repo.UpdateStatus(ctx, a.ID, []models.AppointmentStatus{models.StatusConfirmed, models.StatusDismissed}, models.StatusPending)
	if err != nil || !ok {
		t.Fatalf("revert = (%v, %v)", ok, err)
	}
	got, _ = repo.GetByID(ctx, a.ID)
	if got.ConfirmedAt != nil {
		t.Errorf("confirmed_at = %v after revert, want nil", got.ConfirmedAt)
	}
}

func TestSetCancelledToggles(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewAppointmentRepository(storagetest.NewDB(t))
	a, _, _ := repo.InsertFromEvent(ctx, lashLift())

	reason := "Abgesagt durch Kundin"
	if ok, err := repo.SetCancelled(ctx, a.ID, true, &reason); err != nil || !ok {
		t.Fatalf("cancel = (%v, %v)", ok, err)
	}
	reason = "Krankheit"
	if ok, err := repo.SetCancelled(ctx, a.ID, true, &reason); err != nil || !ok {
		t.Fatalf("second cancel = (%v, %v)", ok, err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if !got.Cancelled || got.CancelledReason == nil || *got.CancelledReason != reason || got.CancelledAt == nil {
		t.Errorf("unexpected cancelled row: %+v", got)
	}

	if ok, err := repo.SetCancelled(ctx, a.ID, false, &reason); err != nil || !ok {
		t.Fatalf("uncancel = (%v, %v)", ok, err)
	}
	got, _ = repo.GetByID(ctx, a.ID)
	if got.Cancelled || got.CancelledReason != nil || got.CancelledAt != nil {
		t.Errorf("uncancel left cancellation fields: %+v", got)
	}
}

func TestDeleteByIDsKeepsIncome(t *testing.T) {
	ctx := context.Background()
	db := storagetest.NewDB(t)
	appointments := storage.NewAppointmentRepository(db)
	income := storage.NewIncomeRepository(db)

	a, _, _ := appointments.InsertFromEvent(ctx, lashLift())
	entry := &models.IncomeEntry{
		Amount:        decimal.RequireFromString("69"),
		PaymentMethod: models.PaymentMethodCash,
		IncomeDate:    a.StartTime,
		AppointmentID: &a.ID,
	}
	if err := income.Create(ctx, entry); err != nil {
		t.Fatal(err)
	}

	deleted, err := appointments.DeleteByIDs(ctx, []string{a.ID, "missing"})
	if err != nil || len(deleted) != 1 || deleted[0] != a.ID {
		t.Fatalf("DeleteByIDs() = %v, %v", deleted, err)
	}

	got, err := income.GetByID(ctx, entry.ID)
	if err != nil || got == nil {
		t.Fatalf("income entry lost: %v", err)
	}
	if got.AppointmentID != nil {
		t.Errorf("appointment link = %v, want NULL", *got.AppointmentID)
	}
	if got.AmountString() != "69.00" {
		t.Errorf("amount = %s", got.AmountString())
	}
}

func TestIncomeSoftDelete(t *testing.T) {
	ctx := context.Background()
	db := storagetest.NewDB(t)
	appointments := storage.NewAppointmentRepository(db)
	income := storage.NewIncomeRepository(db)

	a, _, _ := appointments.InsertFromEvent(ctx, lashLift())
	entry := &models.IncomeEntry{
		Amount:        decimal.RequireFromString("69.00"),
		PaymentMethod: models.PaymentMethodCard,
		IncomeDate:    a.StartTime,
		AppointmentID: &a.ID,
	}
	if err := income.Create(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if err := income.SoftDelete(ctx, entry.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if err := income.SoftDelete(ctx, entry.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second SoftDelete() = %v, want ErrNotFound", err)
	}

	linked, err := income.GetByAppointmentID(ctx, a.ID)
	if err != nil || linked != nil {
		t.Errorf("GetByAppointmentID() = %v, %v; want nil for deleted entry", linked, err)
	}
	all, _ := income.List(ctx, nil, nil)
	if len(all) != 0 {
		t.Errorf("List() returned %d deleted entries", len(all))
	}

	kept, _ := income.GetByID(ctx, entry.ID)
	if kept == nil || kept.DeletedAt == nil {
		t.Error("soft-deleted entry must remain readable by id")
	}
}

func TestSyncLogLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewSyncLogRepository(storagetest.NewDB(t))

	entry, err := repo.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	msg := "Abruf fehlgeschlagen"
	entry.Status = models.SyncStatusError
	entry.Message = &msg
	entry.ErrorDetails = &models.SyncErrorDetails{Stage: models.SyncStageFetch, Cause: "timeout"}
	if err := repo.Finish(ctx, entry); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	latest, err := repo.Latest(ctx)
	if err != nil || latest == nil {
		t.Fatalf("Latest() = %v, %v", latest, err)
	}
	if latest.Status != models.SyncStatusError || latest.FinishedAt == nil {
		t.Errorf("unexpected log: %+v", latest)
	}
	if latest.ErrorDetails == nil || latest.ErrorDetails.Stage != models.SyncStageFetch {
		t.Errorf("error details = %+v", latest.ErrorDetails)
	}
}

func TestAuditRejectsUnknownField(t *testing.T) {
	ctx := context.Background()
	db := storagetest.NewDB(t)
	a, _, _ := storage.NewAppointmentRepository(db).InsertFromEvent(ctx, lashLift())
	audit := storage.NewAuditRepository(db)

	err := audit.Record(ctx, a.ID, "dismiss", []models.FieldChange{{Field: "colour"}})
	if err == nil {
		t.Fatal("Record() accepted an unknown field")
	}

	to := string(models.StatusDismissed)
	if err := audit.Record(ctx, a.ID, "dismiss", []models.FieldChange{{Field: models.FieldStatus, To: &to}}); err != nil {
		t.Fatal(err)
	}
	entries, err := audit.ListByAppointment(ctx, a.ID)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListByAppointment() = %v, %v", entries, err)
	}
	if c := entries[0].Changes; len(c) != 1 || c[0].Field != models.FieldStatus || *c[0].To != to {
		t.Errorf("changes = %+v", c)
	}
}
