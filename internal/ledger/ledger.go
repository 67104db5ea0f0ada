// Package ledger keeps doctor wallets: available balance, funds reserved for
// pending payouts, and the append-only transaction trail behind both.
//
// Every mutation runs in one database transaction that first locks the wallet
// row (SELECT ... FOR UPDATE), re-reads it, and only then checks and writes.
// Balance updates are additionally guarded in their WHERE clause, so a write
// that would drive a column negative affects no rows and aborts.
package ledger

import (
	"context"
	"errors"
	"math"
	"time"

	"medconsult/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxAmountRub bounds a single credit or payout
const MaxAmountRub int64 = 100_000_000

// Ledger performs wallet mutations
type Ledger struct {
	db *gorm.DB
}

// New creates a Ledger on top of db
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// FloorAmount converts client input into whole roubles, flooring fractions
func FloorAmount(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, domain.Invalid("amount_rub must be a number")
	}
	floored := math.Floor(amount)
	if floored < 1 {
		return 0, domain.ErrNonPositive
	}
	if floored > float64(MaxAmountRub) {
		return 0, domain.Invalid("amount_rub is too large")
	}
	return int64(floored), nil
}

func checkAmount(amountRub int64) error {
	if amountRub <= 0 {
		return domain.ErrNonPositive
	}
	if amountRub > MaxAmountRub {
		return domain.Invalid("amount_rub is too large")
	}
	return nil
}

// Wallet returns the current wallet of a doctor
func (l *Ledger) Wallet(ctx context.Context, doctorID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := l.db.WithContext(ctx).Where("doctor_id = ?", doctorID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("wallet")
		}
		return nil, err
	}
	return &w, nil
}

// lockWallet re-reads the wallet row under an exclusive row lock
func lockWallet(tx *gorm.DB, doctorID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("doctor_id = ?", doctorID).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("wallet")
		}
		return nil, err
	}
	return &w, nil
}

// Credit adds funds to the doctor's available balance
func (l *Ledger) Credit(ctx context.Context, doctorID uint, amountRub int64, note string) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := CreditTx(tx, doctorID, amountRub, nil, note)
		wallet = w
		return err
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"doctor_id":  doctorID,
		"amount_rub": amountRub,
		"type":       domain.TxIn,
	}).Info("Wallet credited")
	return wallet, nil
}

// CreditTx credits inside a caller-owned transaction, so billable events and
// the credit they produce commit together
func CreditTx(tx *gorm.DB, doctorID uint, amountRub int64, consultationID *uint, note string) (*domain.Wallet, error) {
	if err := checkAmount(amountRub); err != nil {
		return nil, err
	}
	w, err := lockWallet(tx, doctorID)
	if err != nil {
		return nil, err
	}
	// Increment wallet balance
	if err := tx.Model(&domain.Wallet{}).Where("id = ?", w.ID).
		Update("balance_rub", gorm.Expr("balance_rub + ?", amountRub)).Error; err != nil {
		return nil, err
	}
	entry := domain.Transaction{
		WalletID:       w.ID,
		DoctorID:       doctorID,
		Type:           domain.TxIn,
		AmountRub:      amountRub,
		Status:         domain.TxSuccess,
		ConsultationID: consultationID,
		Note:           note,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	w.BalanceRub += amountRub
	return w, nil
}

// RequestPayout reserves amountRub of the available balance for withdrawal.
// The payout request, its ledger entry, the balance decrement and the pending
// increment commit together or not at all.
func (l *Ledger) RequestPayout(ctx context.Context, doctorID uint, amountRub int64, destination string) (*domain.PayoutRequest, *domain.Wallet, error) {
	if err := checkAmount(amountRub); err != nil {
		return nil, nil, err
	}
	var (
		payout domain.PayoutRequest
		wallet *domain.Wallet
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := lockWallet(tx, doctorID)
		if err != nil {
			return err
		}
		if amountRub > w.BalanceRub {
			return domain.ErrInsufficientFunds
		}
		res := tx.Model(&domain.Wallet{}).
			Where("id = ? AND balance_rub >= ?", w.ID, amountRub).
			Updates(map[string]any{
				"balance_rub": gorm.Expr("balance_rub - ?", amountRub),
				"pending_rub": gorm.Expr("pending_rub + ?", amountRub),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInsufficientFunds // Balance moved under us
		}
		payout = domain.PayoutRequest{
			Reference:   uuid.NewString(),
			DoctorID:    doctorID,
			AmountRub:   amountRub,
			Destination: destination,
			Status:      domain.PayoutPending,
		}
		if err := tx.Create(&payout).Error; err != nil {
			return err
		}
		entry := domain.Transaction{
			WalletID:        w.ID,
			DoctorID:        doctorID,
			Type:            domain.TxOut,
			AmountRub:       amountRub,
			Status:          domain.TxPending,
			PayoutRequestID: &payout.ID,
			Note:            "payout request",
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		w.BalanceRub -= amountRub
		w.PendingRub += amountRub
		wallet = w
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"doctor_id":  doctorID,
		"payout_id":  payout.ID,
		"reference":  payout.Reference,
		"amount_rub": amountRub,
	}).Info("Payout requested")
	return &payout, wallet, nil
}

// SettlePayout finalises a pending payout exactly once. Success releases the
// reservation; failure or cancellation returns the funds to the balance.
func (l *Ledger) SettlePayout(ctx context.Context, payoutID uint, outcome string) (*domain.PayoutRequest, *domain.Wallet, error) {
	return l.settle(ctx, func(tx *gorm.DB) *gorm.DB { return tx.Where("id = ?", payoutID) }, outcome)
}

// SettlePayoutByReference settles using the public reference given to the payment provider
func (l *Ledger) SettlePayoutByReference(ctx context.Context, reference, outcome string) (*domain.PayoutRequest, *domain.Wallet, error) {
	if _, err := uuid.Parse(reference); err != nil {
		return nil, nil, domain.NotFound("payout")
	}
	return l.settle(ctx, func(tx *gorm.DB) *gorm.DB { return tx.Where("reference = ?", reference) }, outcome)
}

func validOutcome(outcome string) bool {
	switch outcome {
	case domain.PayoutSuccess, domain.PayoutFailed, domain.PayoutCanceled:
		return true
	}
	return false
}

func (l *Ledger) settle(ctx context.Context, find func(*gorm.DB) *gorm.DB, outcome string) (*domain.PayoutRequest, *domain.Wallet, error) {
	if !validOutcome(outcome) {
		return nil, nil, domain.Invalid("outcome must be success, failed or canceled")
	}
	var (
		payout domain.PayoutRequest
		wallet *domain.Wallet
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := find(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&payout).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFound("payout")
			}
			return err
		}
		if payout.IsSettled() {
			return domain.ErrAlreadySettled
		}
		w, err := lockWallet(tx, payout.DoctorID)
		if err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&domain.PayoutRequest{}).
			Where("id = ? AND status = ?", payout.ID, domain.PayoutPending).
			Updates(map[string]any{"status": outcome, "settled_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrAlreadySettled
		}

		walletUpdates := map[string]any{"pending_rub": gorm.Expr("pending_rub - ?", payout.AmountRub)}
		if outcome != domain.PayoutSuccess {
			walletUpdates["balance_rub"] = gorm.Expr("balance_rub + ?", payout.AmountRub)
		}
		res = tx.Model(&domain.Wallet{}).
			Where("id = ? AND pending_rub >= ?", w.ID, payout.AmountRub).
			Updates(walletUpdates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("wallet reservation is smaller than the payout")
		}

		if err := tx.Model(&domain.Transaction{}).
			Where("payout_request_id = ? AND type = ?", payout.ID, domain.TxOut).
			Update("status", outcome).Error; err != nil {
			return err
		}
		if outcome != domain.PayoutSuccess {
			refund := domain.Transaction{
				WalletID:        w.ID,
				DoctorID:        payout.DoctorID,
				Type:            domain.TxIn,
				AmountRub:       payout.AmountRub,
				Status:          domain.TxSuccess,
				PayoutRequestID: &payout.ID,
				Note:            "payout " + outcome + ", funds returned",
			}
			if err := tx.Create(&refund).Error; err != nil {
				return err
			}
			w.BalanceRub += payout.AmountRub
		}
		w.PendingRub -= payout.AmountRub
		payout.Status = outcome
		payout.SettledAt = &now
		wallet = w
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"doctor_id":  payout.DoctorID,
		"payout_id":  payout.ID,
		"amount_rub": payout.AmountRub,
		"status":     outcome,
	}).Info("Payout settled")
	return &payout, wallet, nil
}

// Transactions returns a page of the doctor's ledger entries, newest first
func (l *Ledger) Transactions(ctx context.Context, doctorID uint, offset, limit int) ([]domain.Transaction, int64, error) {
	var total int64
	query := l.db.WithContext(ctx).Model(&domain.Transaction{}).Where("doctor_id = ?", doctorID).Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []domain.Transaction
	if err := query.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// PayoutFilter narrows payout listings; zero values match everything
type PayoutFilter struct {
	DoctorID uint
	Status   string
}

// Payouts returns a page of payout requests, newest first
func (l *Ledger) Payouts(ctx context.Context, filter PayoutFilter, offset, limit int) ([]domain.PayoutRequest, int64, error) {
	query := l.db.WithContext(ctx).Model(&domain.PayoutRequest{})
	if filter.DoctorID != 0 {
		query = query.Where("doctor_id = ?", filter.DoctorID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = query.Session(&gorm.Session{}) // Reusable for count and page
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var payouts []domain.PayoutRequest
	if err := query.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&payouts).Error; err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}

// TransactionFilter narrows the admin ledger listing
type TransactionFilter struct {
	DoctorID uint
	Type     string
	From     string
	To       string
}

// AllTransactions lists ledger entries across wallets for admins
func (l *Ledger) AllTransactions(ctx context.Context, filter TransactionFilter, offset, limit int) ([]domain.Transaction, int64, error) {
	query := l.db.WithContext(ctx).Model(&domain.Transaction{})
	if filter.DoctorID != 0 {
		query = query.Where("doctor_id = ?", filter.DoctorID) // Filter by doctor
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type) // Filter by transaction type
	}
	if filter.From != "" {
		query = query.Where("created_at >= ?", filter.From) // Filter by start date
	}
	if filter.To != "" {
		query = query.Where("created_at <= ?", filter.To) // Filter by end date
	}
	query = query.Session(&gorm.Session{}) // Reusable for count and page
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []domain.Transaction
	if err := query.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}
