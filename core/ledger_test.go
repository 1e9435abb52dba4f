package core

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"nftlend/core/events"
	"nftlend/native/assets"
	"nftlend/native/loans"
	"nftlend/native/moneymarket"
	"nftlend/storage"
)

var (
	borrower = [20]byte{0x10, 19: 0x01}
	lender   = [20]byte{0x10, 19: 0x02}
	weth     = [20]byte{0x20, 19: 0x01}
	nft      = [20]byte{0x30, 19: 0x01}
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type recorder struct{ types []string }

func (r *recorder) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

func newTestLedger(t *testing.T) (*Ledger, *ManualClock, *recorder) {
	t.Helper()
	clock := NewManualClock(1_700_000_000)
	rec := &recorder{}
	ledger := NewLedger(storage.NewMemDB(), Options{
		Market:  moneymarket.Params{Assets: [][20]byte{weth}},
		Clock:   clock,
		Emitter: rec,
	})
	t.Cleanup(ledger.Close)
	return ledger, clock, rec
}

func mustExecute(t *testing.T, l *Ledger, fn func(*Tx) error) {
	t.Helper()
	if err := l.Execute(fn); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestModuleAddressesAreDistinct(t *testing.T) {
	l, _, _ := newTestLedger(t)
	seen := map[[20]byte]bool{l.Pool(): true}
	for _, v := range loans.Variants {
		addr := l.ModuleAccount(v)
		if addr == ([20]byte{}) || seen[addr] {
			t.Fatalf("module account for %s not unique", v)
		}
		seen[addr] = true
	}
}

func TestFixedScenarioAcrossTransactions(t *testing.T) {
	l, clock, rec := newTestLedger(t)
	module := l.ModuleAccount(loans.VariantFixed)
	term := new(big.Int).Add(ether(1), new(big.Int).Quo(ether(1), big.NewInt(10)))

	mustExecute(t, l, func(tx *Tx) error {
		if err := tx.Collectibles().Mint(nft, borrower, big.NewInt(0)); err != nil {
			return err
		}
		if err := tx.Tokens().Mint(weth, lender, ether(1)); err != nil {
			return err
		}
		return tx.Tokens().Mint(weth, borrower, new(big.Int).Quo(ether(1), big.NewInt(10)))
	})

	var id uint64
	mustExecute(t, l, func(tx *Tx) error {
		if err := tx.Collectibles().Approve(nft, borrower, module, big.NewInt(0)); err != nil {
			return err
		}
		var err error
		id, err = tx.Loans(loans.VariantFixed).CreateBorrowRequest(borrower, loans.CreateParams{
			LoanAsset:          weth,
			CollateralContract: nft,
			CollateralID:       big.NewInt(0),
			Principal:          ether(1),
			RepaymentTerm:      term,
			LiqThreshold:       big.NewInt(0),
			Duration:           uint64(24 * time.Hour / time.Second),
			Expiry:             uint64(time.Hour / time.Second),
		})
		return err
	})
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}

	clock.Advance(10 * time.Minute)
	mustExecute(t, l, func(tx *Tx) error {
		if err := tx.Tokens().Approve(weth, lender, module, ether(1)); err != nil {
			return err
		}
		return tx.Loans(loans.VariantFixed).FulfillRequest(lender, id, moneymarket.RateModeNone)
	})

	err := l.Execute(func(tx *Tx) error {
		return tx.Loans(loans.VariantFixed).FulfillRequest(lender, id, moneymarket.RateModeNone)
	})
	if err == nil || err.Error() != "LoanManager: Fulfilled" {
		t.Fatalf("expected LoanManager: Fulfilled, got %v", err)
	}

	mustExecute(t, l, func(tx *Tx) error {
		if err := tx.Tokens().Approve(weth, borrower, module, assets.MaxUint256); err != nil {
			return err
		}
		_, err := tx.Loans(loans.VariantFixed).Repay(borrower, id, assets.MaxUint256)
		return err
	})

	err = l.View(func(tx *Tx) error {
		owner, err := tx.Collectibles().OwnerOf(nft, big.NewInt(0))
		if err != nil {
			return err
		}
		if owner != borrower {
			t.Errorf("collateral not returned")
		}
		bal, err := tx.Tokens().BalanceOf(weth, lender)
		if err != nil {
			return err
		}
		if bal.Cmp(term) != 0 {
			t.Errorf("lender balance %s, want %s", bal, term)
		}
		req, err := tx.Loans(loans.VariantFixed).BorrowRequestByID(id)
		if err != nil {
			return err
		}
		if !req.IsZero() {
			t.Errorf("expected zeroed record")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	last := rec.types[len(rec.types)-1]
	if last != loans.EventTypeRequestSettled {
		t.Fatalf("expected settled event last, got %s", last)
	}
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	l, _, rec := newTestLedger(t)
	module := l.ModuleAccount(loans.VariantFixed)
	mustExecute(t, l, func(tx *Tx) error {
		return tx.Collectibles().Mint(nft, borrower, big.NewInt(0))
	})
	before := len(rec.types)

	// Custody pull fails because the module was never approved; the request
	// record, count and duplicate key written before it must be discarded.
	err := l.Execute(func(tx *Tx) error {
		_, err := tx.Loans(loans.VariantFixed).CreateBorrowRequest(borrower, loans.CreateParams{
			LoanAsset:          weth,
			CollateralContract: nft,
			CollateralID:       big.NewInt(0),
			Principal:          ether(1),
			RepaymentTerm:      ether(1),
			LiqThreshold:       big.NewInt(0),
			Duration:           3600,
			Expiry:             3600,
		})
		return err
	})
	if !errors.Is(err, assets.ErrNotOwnerNorApproved) {
		t.Fatalf("expected approval failure, got %v", err)
	}
	if len(rec.types) != before {
		t.Fatalf("events of a failed transaction escaped")
	}

	mustExecute(t, l, func(tx *Tx) error {
		count, err := tx.Loans(loans.VariantFixed).TotalRequestCount()
		if err != nil {
			return err
		}
		if count != 0 {
			t.Errorf("count leaked: %d", count)
		}
		if err := tx.Collectibles().Approve(nft, borrower, module, big.NewInt(0)); err != nil {
			return err
		}
		_, err = tx.Loans(loans.VariantFixed).CreateBorrowRequest(borrower, loans.CreateParams{
			LoanAsset:          weth,
			CollateralContract: nft,
			CollateralID:       big.NewInt(0),
			Principal:          ether(1),
			RepaymentTerm:      ether(1),
			LiqThreshold:       big.NewInt(0),
			Duration:           3600,
			Expiry:             3600,
		})
		return err
	})
}

func TestViewDiscardsWrites(t *testing.T) {
	l, _, rec := newTestLedger(t)
	if err := l.View(func(tx *Tx) error {
		return tx.Tokens().Mint(weth, lender, ether(1))
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(rec.types) != 0 {
		t.Fatalf("view leaked events")
	}
	_ = l.View(func(tx *Tx) error {
		bal, err := tx.Tokens().BalanceOf(weth, lender)
		if err != nil {
			return err
		}
		if bal.Sign() != 0 {
			t.Errorf("view write persisted")
		}
		return nil
	})
}

func TestPausedLoansModule(t *testing.T) {
	l, _, _ := newTestLedger(t)
	if err := l.SetPaused("loans", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	err := l.Execute(func(tx *Tx) error {
		_, err := tx.Loans(loans.VariantStable).CreateBorrowRequest(borrower, loans.CreateParams{})
		return err
	})
	if loans.KindOf(err) != loans.KindValidation {
		t.Fatalf("expected validation failure while paused, got %v", err)
	}
}

func TestDelegatedLoanAccruesWithLedgerClock(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	module := l.ModuleAccount(loans.VariantVariable)
	pool := l.Pool()

	mustExecute(t, l, func(tx *Tx) error {
		if err := tx.Tokens().Mint(weth, lender, ether(50)); err != nil {
			return err
		}
		if err := tx.Tokens().Approve(weth, lender, pool, ether(50)); err != nil {
			return err
		}
		if err := tx.MoneyMarket().Deposit(weth, ether(50), lender, lender); err != nil {
			return err
		}
		if err := tx.MoneyMarket().ApproveDelegation(weth, moneymarket.RateModeVariable, lender, module, ether(5)); err != nil {
			return err
		}
		return tx.Collectibles().Mint(nft, borrower, big.NewInt(0))
	})

	var id uint64
	mustExecute(t, l, func(tx *Tx) error {
		if err := tx.Collectibles().Approve(nft, borrower, module, big.NewInt(0)); err != nil {
			return err
		}
		var err error
		id, err = tx.Loans(loans.VariantVariable).CreateBorrowRequest(borrower, loans.CreateParams{
			LoanAsset:          weth,
			CollateralContract: nft,
			CollateralID:       big.NewInt(0),
			Principal:          ether(1),
			RepaymentTerm:      big.NewInt(0),
			LiqThreshold:       ether(2),
			Duration:           uint64(365 * 24 * time.Hour / time.Second),
			Expiry:             3600,
		})
		if err != nil {
			return err
		}
		return tx.Loans(loans.VariantVariable).FulfillRequest(lender, id, moneymarket.RateModeNone)
	})

	debtAt := func() *big.Int {
		var out *big.Int
		if err := l.View(func(tx *Tx) error {
			var err error
			out, err = tx.Loans(loans.VariantVariable).RequestDebtBalance(id)
			return err
		}); err != nil {
			t.Fatalf("debt: %v", err)
		}
		return out
	}
	first := debtAt()
	clock.Advance(30 * 24 * time.Hour)
	second := debtAt()
	if second.Cmp(first) <= 0 {
		t.Fatalf("debt did not accrue: %s -> %s", first, second)
	}

	err := l.View(func(tx *Tx) error {
		left, err := tx.MoneyMarket().BorrowAllowance(weth, moneymarket.RateModeVariable, lender, module)
		if err != nil {
			return err
		}
		if left.Cmp(ether(4)) != 0 {
			t.Errorf("expected 4 ether delegation left, got %s", left)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	err = l.Execute(func(tx *Tx) error {
		return tx.MoneyMarket().Borrow(weth, ether(1), moneymarket.RateModeVariable, lender, lender, lender)
	})
	if !errors.Is(err, moneymarket.ErrDebtLocked) {
		t.Fatalf("expected lender self-borrow to be locked, got %v", err)
	}
}
