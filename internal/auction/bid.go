// Package auction manages the seeker's single bid on the auction network:
// placing it, rebuilding its status from auction house logs and cancelling
// leftovers.
package auction

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// BidID is keccak256(bidder ‖ topic ‖ keccak256(details)), the identifier
// the auction house indexes bids by
func BidID(bidder common.Address, topic common.Hash, details []byte) common.Hash {
	return crypto.Keccak256Hash(bidder.Bytes(), topic.Bytes(), crypto.Keccak256(details))
}

// DetailsHash is the hash the auction house expects in expedite and
// fulfillment calls
func DetailsHash(details []byte) common.Hash {
	return crypto.Keccak256Hash(details)
}

// NewNonce returns 32 random bytes so equal bids get distinct IDs
func NewNonce() (common.Hash, error) {
	var nonce common.Hash
	if _, err := rand.Read(nonce[:]); err != nil {
		return common.Hash{}, fmt.Errorf("bid nonce: %w", err)
	}
	return nonce, nil
}
