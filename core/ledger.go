package core

import (
	"errors"
	"log/slog"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftlend/core/events"
	"nftlend/core/state"
	nativecommon "nftlend/native/common"
	"nftlend/native/loans"
	"nftlend/native/moneymarket"
	"nftlend/storage"
)

var errNilTxFunc = errors.New("ledger: transaction callback required")

// ModuleAddress derives the deterministic account that a named module uses to
// hold funds and collateral.
func ModuleAddress(name string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("nftlend/module/" + name))
	var out [20]byte
	copy(out[:], hash[12:])
	return out
}

// Options configures a Ledger. Zero values select defaults.
type Options struct {
	Market moneymarket.Params
	// Pool is the money market custody account.
	Pool [20]byte
	// Modules overrides the custody account of individual loan deployments.
	Modules map[loans.Variant][20]byte
	Quota   nativecommon.Quota
	Clock   Clock
	// Emitter receives the events of committed transactions in order.
	Emitter events.Emitter
	Logger  *slog.Logger
}

// Ledger serialises transactions over a storage backend. Each transaction
// either commits every write and publishes its events, or leaves no trace.
type Ledger struct {
	mu      sync.RWMutex
	db      storage.Database
	market  moneymarket.Params
	pool    [20]byte
	modules map[loans.Variant][20]byte
	quota   nativecommon.Quota
	clock   Clock
	emitter events.Emitter
	logger  *slog.Logger
}

// NewLedger wraps db. The ledger takes ownership of db and closes it on Close.
func NewLedger(db storage.Database, opts Options) *Ledger {
	l := &Ledger{
		db:      db,
		market:  opts.Market,
		pool:    opts.Pool,
		modules: make(map[loans.Variant][20]byte, len(loans.Variants)),
		quota:   opts.Quota,
		clock:   opts.Clock,
		emitter: opts.Emitter,
		logger:  opts.Logger,
	}
	if l.pool == ([20]byte{}) {
		l.pool = ModuleAddress("moneymarket/pool")
	}
	for _, v := range loans.Variants {
		addr, ok := opts.Modules[v]
		if !ok || addr == ([20]byte{}) {
			addr = ModuleAddress("loans/" + string(v))
		}
		l.modules[v] = addr
	}
	if l.clock == nil {
		l.clock = WallClock{}
	}
	if l.emitter == nil {
		l.emitter = events.NoopEmitter{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Clock returns the ledger time source.
func (l *Ledger) Clock() Clock { return l.clock }

// Pool returns the money market custody account.
func (l *Ledger) Pool() [20]byte { return l.pool }

// ModuleAccount returns the custody account of a loan deployment.
func (l *Ledger) ModuleAccount(v loans.Variant) [20]byte { return l.modules[v] }

// Execute runs fn as one atomic transaction. Any error returned by fn, or by
// the commit itself, discards every write and every event of the transaction.
func (l *Ledger) Execute(fn func(*Tx) error) error {
	if fn == nil {
		return errNilTxFunc
	}
	buffer, err := l.execute(fn)
	if err != nil {
		return err
	}
	buffer.Flush(l.emitter)
	return nil
}

func (l *Ledger) execute(fn func(*Tx) error) (*events.Buffer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	overlay := storage.NewOverlay(l.db)
	buffer := &events.Buffer{}
	tx := l.newTx(overlay, buffer)
	if err := fn(tx); err != nil {
		overlay.Discard()
		l.logger.Debug("ledger transaction rolled back", "error", err)
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		l.logger.Error("ledger commit failed", "error", err)
		return nil, err
	}
	return buffer, nil
}

// View runs fn against a snapshot that is always discarded. Events emitted by
// fn are dropped.
func (l *Ledger) View(fn func(*Tx) error) error {
	if fn == nil {
		return errNilTxFunc
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	overlay := storage.NewOverlay(l.db)
	defer overlay.Discard()
	return fn(l.newTx(overlay, &events.Buffer{}))
}

// SetPaused toggles the pause flag of a module in its own transaction.
func (l *Ledger) SetPaused(module string, paused bool) error {
	return l.Execute(func(tx *Tx) error {
		return tx.State().SetPaused(module, paused)
	})
}

// Close releases the storage backend.
func (l *Ledger) Close() {
	if l == nil || l.db == nil {
		return
	}
	l.db.Close()
}

func (l *Ledger) newTx(db storage.Database, buffer *events.Buffer) *Tx {
	return &Tx{
		ledger:  l,
		state:   state.NewManager(db),
		events:  buffer,
		now:     l.clock.Now(),
		engines: make(map[loans.Variant]*loans.Engine, len(loans.Variants)),
	}
}
