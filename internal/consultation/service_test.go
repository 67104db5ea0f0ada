package consultation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"medconsult/internal/db"
	"medconsult/internal/domain"
	"medconsult/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	patientID  int64 = 5001
	doctorTgID int64 = 6001
	otherTgID  int64 = 6002
	strangerID int64 = 7001
)

type recordingNotifier struct {
	mu        sync.Mutex
	requested []uint
	decided   []string
}

func (n *recordingNotifier) ConsultationRequested(_ context.Context, _ int64, c *domain.Consultation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, c.ID)
	return nil
}

func (n *recordingNotifier) ConsultationDecided(_ context.Context, _ int64, c *domain.Consultation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decided = append(n.decided, c.Status)
	return errors.New("telegram is down") // Failures must not leak into the transition
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	notifier *recordingNotifier
	doctor   *domain.Doctor
	other    *domain.Doctor
}

func (f *fixture) patient() policy.Viewer  { return policy.Viewer{UserID: patientID} }
func (f *fixture) assigned() policy.Viewer { return policy.Viewer{UserID: doctorTgID, Doctor: f.doctor} }
func (f *fixture) foreign() policy.Viewer  { return policy.Viewer{UserID: otherTgID, Doctor: f.other} }
func (f *fixture) stranger() policy.Viewer { return policy.Viewer{UserID: strangerID} }

func setup(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:testdb_consultation_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.OpenSQLite(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	doctor := &domain.Doctor{TelegramID: doctorTgID, FullName: "Dr. House", Status: domain.DoctorApproved, Specialties: []string{"therapy"}, Wallet: &domain.Wallet{}}
	other := &domain.Doctor{TelegramID: otherTgID, FullName: "Dr. Other", Status: domain.DoctorApproved, Specialties: []string{"therapy"}, Wallet: &domain.Wallet{}}
	require.NoError(t, gdb.Create(doctor).Error)
	require.NoError(t, gdb.Create(other).Error)

	n := &recordingNotifier{}
	return &fixture{db: gdb, svc: NewService(gdb, n), notifier: n, doctor: doctor, other: other}
}

func (f *fixture) create(t *testing.T, price int64) *domain.Consultation {
	t.Helper()
	c, err := f.svc.Create(context.Background(), CreateInput{
		PatientID:   patientID,
		DoctorID:    f.doctor.ID,
		PriceRub:    price,
		ProblemText: "Headache for three days",
		Photos:      []string{"photos/1.jpg"},
	})
	require.NoError(t, err)
	return c
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(domain.ConsultationDraft, domain.ConsultationPending))
	assert.True(t, CanTransition(domain.ConsultationPending, domain.ConsultationAccepted))
	assert.True(t, CanTransition(domain.ConsultationPending, domain.ConsultationDeclined))
	assert.True(t, CanTransition(domain.ConsultationAccepted, domain.ConsultationClosed))

	assert.False(t, CanTransition(domain.ConsultationPending, domain.ConsultationClosed))
	assert.False(t, CanTransition(domain.ConsultationDeclined, domain.ConsultationAccepted))
	assert.False(t, CanTransition(domain.ConsultationClosed, domain.ConsultationAccepted))
	assert.False(t, CanTransition(domain.ConsultationAccepted, domain.ConsultationDeclined))
}

func TestCreate(t *testing.T) {
	f := setup(t)
	c := f.create(t, 1500)

	assert.Equal(t, domain.ConsultationPending, c.Status)
	assert.Nil(t, c.PaidAt)
	assert.Equal(t, []uint{c.ID}, f.notifier.requested)

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"photos/1.jpg"}, stored.Photos)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{PatientID: patientID, DoctorID: f.doctor.ID, ProblemText: "  "})
	assert.Error(t, err)

	_, err = f.svc.Create(ctx, CreateInput{PatientID: patientID, DoctorID: f.doctor.ID, ProblemText: "x", PriceRub: -1})
	assert.Error(t, err)

	_, err = f.svc.Create(ctx, CreateInput{PatientID: doctorTgID, DoctorID: f.doctor.ID, ProblemText: "x"})
	assert.Error(t, err)

	_, err = f.svc.Create(ctx, CreateInput{PatientID: patientID, DoctorID: 999, ProblemText: "x"})
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindNotFound, e.Kind)

	require.NoError(t, f.db.Model(f.other).Update("status", domain.DoctorPending).Error)
	_, err = f.svc.Create(ctx, CreateInput{PatientID: patientID, DoctorID: f.other.ID, ProblemText: "x"})
	assert.ErrorIs(t, err, domain.ErrRoleDenied)
}

func TestDraftSubmit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, CreateInput{PatientID: patientID, DoctorID: f.doctor.ID, ProblemText: "x", Draft: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationDraft, c.Status)
	assert.Empty(t, f.notifier.requested)

	_, err = f.svc.Accept(ctx, c.ID, f.assigned())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Submit(ctx, c.ID, f.assigned())
	assert.ErrorIs(t, err, domain.ErrRoleDenied)

	c, err = f.svc.Submit(ctx, c.ID, f.patient())
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationPending, c.Status)
	assert.Equal(t, []uint{c.ID}, f.notifier.requested)
}

func TestChatGatedByAcceptanceAndPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, 1000)

	_, err := f.svc.PostMessage(ctx, c.ID, f.patient(), "hello?")
	assert.ErrorIs(t, err, domain.ErrChatLocked)

	c, err = f.svc.Accept(ctx, c.ID, f.assigned())
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationAccepted, c.Status)
	assert.NotNil(t, c.AcceptedAt)

	_, err = f.svc.PostMessage(ctx, c.ID, f.patient(), "hello?")
	assert.ErrorIs(t, err, domain.ErrChatLocked)

	c, err = f.svc.MarkPaid(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, c.PaidAt)
	assert.Equal(t, domain.ConsultationAccepted, c.Status)

	m1, err := f.svc.PostMessage(ctx, c.ID, f.patient(), "hello?")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, m1.AuthorRole)

	m2, err := f.svc.PostMessage(ctx, c.ID, f.assigned(), "Hi, tell me more")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDoctor, m2.AuthorRole)

	_, err = f.svc.PostMessage(ctx, c.ID, f.stranger(), "let me in")
	assert.ErrorIs(t, err, domain.ErrRoleDenied)
	_, err = f.svc.PostMessage(ctx, c.ID, f.foreign(), "second opinion")
	assert.ErrorIs(t, err, domain.ErrRoleDenied)

	msgs, err := f.svc.Messages(ctx, c.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1.ID, msgs[0].ID)
	assert.Equal(t, m2.ID, msgs[1].ID)
}

func TestPostMessageValidation(t *testing.T) {
	f := setup(t)
	_, err := f.svc.PostMessage(context.Background(), 1, f.patient(), "   ")
	assert.Error(t, err)

	_, err = f.svc.PostMessage(context.Background(), 404, f.patient(), "hi")
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindNotFound, e.Kind)
}

func TestAcceptRequiresPendingAndTargetDoctor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, 0)

	_, err := f.svc.Accept(ctx, c.ID, f.foreign())
	assert.ErrorIs(t, err, domain.ErrRoleDenied)
	_, err = f.svc.Accept(ctx, c.ID, f.patient())
	assert.ErrorIs(t, err, domain.ErrRoleDenied)

	_, err = f.svc.Accept(ctx, c.ID, f.assigned())
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, c.ID, f.assigned())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Decline(ctx, c.ID, f.assigned())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Close(ctx, c.ID, f.patient())
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, c.ID, f.assigned())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRejectedDoctorCannotAccept(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, 1200)

	require.NoError(t, f.db.Model(&domain.Doctor{}).Where("id = ?", f.doctor.ID).Update("status", domain.DoctorRejected).Error)
	f.doctor.Status = domain.DoctorRejected
	rejected := f.assigned()

	_, err := f.svc.Accept(ctx, c.ID, rejected)
	assert.ErrorIs(t, err, domain.ErrRoleDenied)

	c, err = f.svc.Decline(ctx, c.ID, rejected)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationDeclined, c.Status)
}

func TestDeclineIsTerminal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, 0)

	c, err := f.svc.Decline(ctx, c.ID, f.assigned())
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationDeclined, c.Status)
	assert.Contains(t, f.notifier.decided, domain.ConsultationDeclined)

	_, err = f.svc.Accept(ctx, c.ID, f.assigned())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Close(ctx, c.ID, f.patient())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.MarkPaid(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMarkPaidOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, 700)

	_, err := f.svc.MarkPaid(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Accept(ctx, c.ID, f.assigned())
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestClosePaidConsultationCreditsDoctor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, 1200)
	_, err := f.svc.Accept(ctx, c.ID, f.assigned())
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.svc.Close(ctx, c.ID, f.stranger())
	assert.ErrorIs(t, err, domain.ErrRoleDenied)

	c, err = f.svc.Close(ctx, c.ID, f.assigned())
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationClosed, c.Status)
	assert.NotNil(t, c.ClosedAt)

	var w domain.Wallet
	require.NoError(t, f.db.Where("doctor_id = ?", f.doctor.ID).First(&w).Error)
	assert.Equal(t, int64(1200), w.BalanceRub)

	_, err = f.svc.PostMessage(ctx, c.ID, f.patient(), "one more thing")
	assert.ErrorIs(t, err, domain.ErrChatLocked)
	_, err = f.svc.Close(ctx, c.ID, f.patient())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, f.db.Where("doctor_id = ?", f.doctor.ID).First(&w).Error)
	assert.Equal(t, int64(1200), w.BalanceRub)
}

func TestCloseUnpaidDoesNotCredit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, 900)
	_, err := f.svc.Accept(ctx, c.ID, f.assigned())
	require.NoError(t, err)

	_, err = f.svc.Close(ctx, c.ID, f.patient())
	require.NoError(t, err)

	var w domain.Wallet
	require.NoError(t, f.db.Where("doctor_id = ?", f.doctor.ID).First(&w).Error)
	assert.Equal(t, int64(0), w.BalanceRub)
}

func TestConcurrentAcceptDeclineOnlyOneWins(t *testing.T) {
	f := setup(t)
	c := f.create(t, 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = f.svc.Accept(context.Background(), c.ID, f.assigned())
	}()
	go func() {
		defer wg.Done()
		_, results[1] = f.svc.Decline(context.Background(), c.ID, f.assigned())
	}()
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
	assert.Equal(t, 1, successes)
}

func TestListForViewer(t *testing.T) {
	f := setup(t)
	f.create(t, 0)
	f.create(t, 100)

	mine, err := f.svc.ListForViewer(context.Background(), f.patient(), 0, 20)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.svc.ListForViewer(context.Background(), f.assigned(), 0, 20)
	require.NoError(t, err)
	assert.Len(t, theirs, 2)

	none, err := f.svc.ListForViewer(context.Background(), f.foreign(), 0, 20)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.ListForViewer(context.Background(), policy.Viewer{}, 0, 20)
	assert.ErrorIs(t, err, domain.ErrRoleDenied)
}
