package core

import (
	"nftlend/core/events"
	"nftlend/core/state"
	"nftlend/native/assets"
	"nftlend/native/loans"
	"nftlend/native/moneymarket"
)

// Tx is the view of one ledger transaction. Every module handed out by a Tx
// shares its write overlay, its event buffer and the timestamp observed when
// the transaction started.
type Tx struct {
	ledger *Ledger
	state  *state.Manager
	events *events.Buffer
	now    int64

	tokens       *assets.Tokens
	collectibles *assets.Collectibles
	market       *moneymarket.Market
	engines      map[loans.Variant]*loans.Engine
}

// Now returns the transaction timestamp in unix seconds.
func (tx *Tx) Now() int64 { return tx.now }

// State exposes the raw state manager.
func (tx *Tx) State() *state.Manager { return tx.state }

// Emit appends a custom event to the transaction buffer.
func (tx *Tx) Emit(evt events.Event) { tx.events.Emit(evt) }

func (tx *Tx) Tokens() *assets.Tokens {
	if tx.tokens == nil {
		tx.tokens = assets.NewTokens()
		tx.tokens.SetState(tx.state)
		tx.tokens.SetEmitter(tx.events)
	}
	return tx.tokens
}

func (tx *Tx) Collectibles() *assets.Collectibles {
	if tx.collectibles == nil {
		tx.collectibles = assets.NewCollectibles()
		tx.collectibles.SetState(tx.state)
		tx.collectibles.SetEmitter(tx.events)
	}
	return tx.collectibles
}

// MoneyMarket returns the reference debt ledger bound to this transaction.
func (tx *Tx) MoneyMarket() *moneymarket.Market {
	if tx.market == nil {
		tx.market = moneymarket.NewMarket(tx.ledger.pool, tx.ledger.market)
		tx.market.SetState(tx.state)
		tx.market.SetTokens(tx.Tokens())
		tx.market.SetPauses(tx.state)
		tx.market.SetEmitter(tx.events)
		tx.market.SetNowFunc(tx.Now)
		tx.market.SetDebtLocks(tx.state, tx.ledger.modules[loans.VariantVariable], tx.ledger.modules[loans.VariantStable])
	}
	return tx.market
}

// Loans returns the engine of the named deployment.
func (tx *Tx) Loans(v loans.Variant) *loans.Engine {
	if engine, ok := tx.engines[v]; ok {
		return engine
	}
	engine := loans.NewVariantEngine(v, tx.ledger.modules[v])
	engine.SetState(tx.state)
	engine.SetAssets(tx.Tokens(), tx.Collectibles())
	engine.SetDebtLedger(tx.MoneyMarket())
	engine.SetPauses(tx.state)
	engine.SetQuota(tx.ledger.quota)
	engine.SetEmitter(tx.events)
	engine.SetNowFunc(tx.Now)
	engine.SetLogger(tx.ledger.logger)
	tx.engines[v] = engine
	return engine
}
