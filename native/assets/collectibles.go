package assets

import (
	"errors"
	"math/big"

	"nftlend/core/events"
)

var (
	ErrNonexistentToken    = errors.New("nft: owner query for nonexistent token")
	ErrNotOwnerNorApproved = errors.New("nft: transfer caller is not owner nor approved")
	ErrIncorrectOwner      = errors.New("nft: transfer from incorrect owner")
	ErrAlreadyMinted       = errors.New("nft: token already minted")
	ErrApproveCaller       = errors.New("nft: approve caller is not owner nor approved for all")
	ErrApproveToOwner      = errors.New("nft: approval to current owner")
	ErrTransferToZero      = errors.New("nft: transfer to the zero address")
	ErrInvalidTokenID      = errors.New("nft: invalid token id")

	errNilCollectibleState = errors.New("collectible registry: state not configured")
)

type collectibleState interface {
	NFTOwner(contract [20]byte, id *big.Int) ([20]byte, bool, error)
	SetNFTOwner(contract [20]byte, id *big.Int, owner [20]byte) error
	NFTApproval(contract [20]byte, id *big.Int) ([20]byte, error)
	SetNFTApproval(contract [20]byte, id *big.Int, approved [20]byte) error
	NFTOperator(contract, owner, operator [20]byte) (bool, error)
	SetNFTOperator(contract, owner, operator [20]byte, approved bool) error
}

// Collectibles implements non-fungible token ownership with ERC-721 semantics
// for every registered collection identifier.
type Collectibles struct {
	state   collectibleState
	emitter events.Emitter
}

// NewCollectibles creates a registry with a no-op emitter.
func NewCollectibles() *Collectibles {
	return &Collectibles{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the registry.
func (c *Collectibles) SetState(state collectibleState) { c.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Collectibles) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// Mint assigns a fresh token id to the recipient.
func (c *Collectibles) Mint(contract, to [20]byte, id *big.Int) error {
	if c == nil || c.state == nil {
		return errNilCollectibleState
	}
	if err := validTokenID(id); err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrTransferToZero
	}
	if _, exists, err := c.state.NFTOwner(contract, id); err != nil {
		return err
	} else if exists {
		return ErrAlreadyMinted
	}
	if err := c.state.SetNFTOwner(contract, id, to); err != nil {
		return err
	}
	c.emit(newNFTTransferEvent(contract, [20]byte{}, to, id))
	return nil
}

// OwnerOf returns the current owner of the token.
func (c *Collectibles) OwnerOf(contract [20]byte, id *big.Int) ([20]byte, error) {
	if c == nil || c.state == nil {
		return [20]byte{}, errNilCollectibleState
	}
	if err := validTokenID(id); err != nil {
		return [20]byte{}, err
	}
	owner, exists, err := c.state.NFTOwner(contract, id)
	if err != nil {
		return [20]byte{}, err
	}
	if !exists {
		return [20]byte{}, ErrNonexistentToken
	}
	return owner, nil
}

// Approve grants `to` the right to transfer a single token. The caller must be
// the owner or an operator approved for all of the owner's tokens.
func (c *Collectibles) Approve(contract, caller, to [20]byte, id *big.Int) error {
	owner, err := c.OwnerOf(contract, id)
	if err != nil {
		return err
	}
	if to == owner {
		return ErrApproveToOwner
	}
	if caller != owner {
		operator, err := c.state.NFTOperator(contract, owner, caller)
		if err != nil {
			return err
		}
		if !operator {
			return ErrApproveCaller
		}
	}
	if err := c.state.SetNFTApproval(contract, id, to); err != nil {
		return err
	}
	c.emit(newNFTApprovalEvent(contract, owner, to, id))
	return nil
}

// GetApproved returns the single-token approval, zero when none is set.
func (c *Collectibles) GetApproved(contract [20]byte, id *big.Int) ([20]byte, error) {
	if _, err := c.OwnerOf(contract, id); err != nil {
		return [20]byte{}, err
	}
	return c.state.NFTApproval(contract, id)
}

// SetApprovalForAll toggles operator rights over all of owner's tokens.
func (c *Collectibles) SetApprovalForAll(contract, owner, operator [20]byte, approved bool) error {
	if c == nil || c.state == nil {
		return errNilCollectibleState
	}
	if owner == operator {
		return ErrApproveToOwner
	}
	return c.state.SetNFTOperator(contract, owner, operator, approved)
}

// IsApprovedForAll reports whether operator manages all of owner's tokens.
func (c *Collectibles) IsApprovedForAll(contract, owner, operator [20]byte) (bool, error) {
	if c == nil || c.state == nil {
		return false, errNilCollectibleState
	}
	return c.state.NFTOperator(contract, owner, operator)
}

// TransferFrom moves the token from `from` to `to`. The caller must be the
// owner, the approved address or an approved operator. Any single-token
// approval is cleared.
func (c *Collectibles) TransferFrom(contract, caller, from, to [20]byte, id *big.Int) error {
	owner, err := c.OwnerOf(contract, id)
	if err != nil {
		return err
	}
	authorised, err := c.isApprovedOrOwner(contract, caller, owner, id)
	if err != nil {
		return err
	}
	if !authorised {
		return ErrNotOwnerNorApproved
	}
	if owner != from {
		return ErrIncorrectOwner
	}
	if to == ([20]byte{}) {
		return ErrTransferToZero
	}
	if err := c.state.SetNFTApproval(contract, id, [20]byte{}); err != nil {
		return err
	}
	if err := c.state.SetNFTOwner(contract, id, to); err != nil {
		return err
	}
	c.emit(newNFTTransferEvent(contract, from, to, id))
	return nil
}

func (c *Collectibles) isApprovedOrOwner(contract, caller, owner [20]byte, id *big.Int) (bool, error) {
	if caller == owner {
		return true, nil
	}
	approved, err := c.state.NFTApproval(contract, id)
	if err != nil {
		return false, err
	}
	if approved != ([20]byte{}) && approved == caller {
		return true, nil
	}
	return c.state.NFTOperator(contract, owner, caller)
}

func (c *Collectibles) emit(evt events.Event) {
	if c == nil || c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}

func validTokenID(id *big.Int) error {
	if id == nil || id.Sign() < 0 || id.BitLen() > 256 {
		return ErrInvalidTokenID
	}
	return nil
}
