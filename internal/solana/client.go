package solana

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
)

const lamportsPerSOL = 1_000_000_000

// Client talks to a Solana RPC node and owns the at-rest encryption of
// user wallet keys.
type Client struct {
	rpc    *client.Client
	cipher *keyCipher
}

// NewClient creates a client against the given RPC endpoint. encryptionKey
// is a 64-char hex string (32 bytes) protecting stored private keys.
func NewClient(rpcURL, encryptionKey string) (*Client, error) {
	cipher, err := newKeyCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet encryption key: %v", err)
	}

	return &Client{
		rpc:    client.NewClient(rpcURL),
		cipher: cipher,
	}, nil
}

// CreateWallet generates a fresh keypair and returns the deposit address
// together with the encrypted private key for storage.
func (c *Client) CreateWallet() (address, encryptedKey string, err error) {
	account := types.NewAccount()

	encryptedKey, err = c.cipher.encrypt(base58.Encode(account.PrivateKey))
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt wallet key: %v", err)
	}

	return account.PublicKey.ToBase58(), encryptedKey, nil
}

// GetBalance returns the on-chain balance of the address in SOL.
func (c *Client) GetBalance(ctx context.Context, address string) (float64, error) {
	lamports, err := c.rpc.GetBalance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", address, err)
	}
	return fromLamports(lamports), nil
}

// Transfer sends SOL from the wallet behind encryptedKey to the given
// address and returns the transaction signature.
func (c *Client) Transfer(ctx context.Context, encryptedKey, toAddress string, amountSOL float64) (string, error) {
	account, err := c.account(encryptedKey)
	if err != nil {
		return "", err
	}

	blockhash, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        account.PublicKey,
			RecentBlockhash: blockhash.Blockhash,
			Instructions: []types.Instruction{
				system.Transfer(system.TransferParam{
					From:   account.PublicKey,
					To:     common.PublicKeyFromString(toAddress),
					Amount: toLamports(amountSOL),
				}),
			},
		}),
		Signers: []types.Account{account},
	})
	if err != nil {
		return "", fmt.Errorf("failed to build transfer: %v", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("failed to send transfer: %w", err)
	}
	return sig, nil
}

func (c *Client) account(encryptedKey string) (types.Account, error) {
	key, err := c.cipher.decrypt(encryptedKey)
	if err != nil {
		return types.Account{}, fmt.Errorf("failed to decrypt wallet key: %v", err)
	}

	account, err := types.AccountFromBase58(key)
	if err != nil {
		return types.Account{}, fmt.Errorf("invalid wallet key: %v", err)
	}
	return account, nil
}

func toLamports(sol float64) uint64 {
	return uint64(sol * lamportsPerSOL)
}

func fromLamports(lamports uint64) float64 {
	return float64(lamports) / lamportsPerSOL
}

// IsTransient reports whether the error is worth retrying on the next
// monitor tick (network trouble) rather than a permanent failure such as
// an invalid address.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
