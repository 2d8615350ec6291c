package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// signedTx is the wire encoding of a signed transaction and its hash.
type signedTx struct {
	Raw  []byte
	Hash string
}

// RawHex renders the raw transaction for eth_sendRawTransaction.
func (s signedTx) RawHex() string {
	return hexutil.Encode(s.Raw)
}

// signTx signs an EIP-155 legacy transaction for chainID. The signature
// comes from the wallet signer, which returns r||s||recID as the EIP-155
// signer expects.
func signTx(tx *types.LegacyTx, chainID uint64, signer *wallet.Signer) (signedTx, error) {
	if signer == nil {
		return signedTx{}, ErrReadOnly
	}
	eip155 := types.NewEIP155Signer(new(big.Int).SetUint64(chainID))
	unsigned := types.NewTx(tx)

	sig, err := signer.SignHash(eip155.Hash(unsigned).Bytes())
	if err != nil {
		return signedTx{}, fmt.Errorf("ledger: sign transaction: %w", err)
	}
	signed, err := unsigned.WithSignature(eip155, sig)
	if err != nil {
		return signedTx{}, fmt.Errorf("ledger: sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return signedTx{}, fmt.Errorf("ledger: encode transaction: %w", err)
	}
	return signedTx{Raw: raw, Hash: signed.Hash().Hex()}, nil
}
