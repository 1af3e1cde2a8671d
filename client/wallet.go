package client

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/types"
	"github.com/vitwit/x402-chat/utils"
)

// Wallet settles a payment requirement and returns the transaction hash to
// attach as proof. Implementations return ErrPaymentDeclined (possibly
// wrapped) when the holder refuses to pay.
type Wallet interface {
	Pay(ctx context.Context, req types.PaymentRequirements) (string, error)
}

const (
	// nativeTransferGas is the fixed gas cost of a plain value transfer.
	nativeTransferGas = 21000

	defaultPollInterval = 2 * time.Second
)

// KeyWalletConfig configures a KeyWallet.
type KeyWalletConfig struct {
	// RPCURL is the JSON-RPC endpoint of the chain to pay on.
	RPCURL string

	// PrivateKey is the hex-encoded signing key, with or without 0x prefix.
	PrivateKey string

	// PollInterval is the receipt polling cadence. Defaults to 2s.
	PollInterval time.Duration
}

// KeyWallet pays requirements by sending native transfers signed with a
// local private key, then waits for the transaction to be mined so the
// returned hash is already resolvable by the payee.
type KeyWallet struct {
	key          *ecdsa.PrivateKey
	address      common.Address
	client       *ethclient.Client
	chainID      *big.Int
	pollInterval time.Duration
	log          logger.Logger
}

// NewKeyWallet dials the RPC endpoint and pins the wallet to the chain it
// reports.
func NewKeyWallet(ctx context.Context, cfg KeyWalletConfig, log logger.Logger) (*KeyWallet, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if cfg.RPCURL == "" {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: "rpc url is required"}
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: fmt.Sprintf("invalid private key: %v", err)}
	}

	ethClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrNetworkError, Message: fmt.Sprintf("dial %s: %v", cfg.RPCURL, err)}
	}

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		ethClient.Close()
		return nil, &types.X402Error{Code: types.ErrNetworkError, Message: fmt.Sprintf("query chain id: %v", err)}
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &KeyWallet{
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		client:       ethClient,
		chainID:      chainID,
		pollInterval: pollInterval,
		log:          log,
	}, nil
}

// Address returns the paying account.
func (w *KeyWallet) Address() common.Address {
	return w.address
}

// Close releases the RPC connection.
func (w *KeyWallet) Close() {
	w.client.Close()
}

// Pay sends the required amount to the payee and blocks until the transfer
// is mined. The requirement must be a native-asset exact payment on the
// chain this wallet is connected to.
func (w *KeyWallet) Pay(ctx context.Context, req types.PaymentRequirements) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Scheme != string(types.SchemeExact) {
		return "", fmt.Errorf("unsupported payment scheme %q", req.Scheme)
	}
	if req.Asset != types.AssetNative {
		return "", fmt.Errorf("unsupported asset %q, only native transfers", req.Asset)
	}

	wantChainID, err := types.Network(req.Network).ChainID()
	if err != nil {
		return "", err
	}
	if wantChainID.Cmp(w.chainID) != 0 {
		return "", &types.X402Error{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("requirement targets chain %s, wallet is on %s", wantChainID, w.chainID),
		}
	}

	amount, err := utils.ValidateBigInt(req.MaxAmountRequired)
	if err != nil {
		return "", err
	}
	if !common.IsHexAddress(req.PayTo) {
		return "", fmt.Errorf("invalid payTo address %q", req.PayTo)
	}
	to := common.HexToAddress(req.PayTo)

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      nativeTransferGas,
		GasPrice: gasPrice,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}

	txHash := signed.Hash()
	w.log.Info("payment broadcast", map[string]any{
		"txHash": txHash.Hex(),
		"to":     req.PayTo,
		"amount": amount.String(),
	})

	receipt, err := w.waitForReceipt(ctx, txHash)
	if err != nil {
		return "", fmt.Errorf("await confirmation of %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return "", fmt.Errorf("payment transaction %s reverted", txHash.Hex())
	}
	return txHash.Hex(), nil
}

// waitForReceipt polls until the transaction is mined or ctx expires.
func (w *KeyWallet) waitForReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
