package solana

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"rwaledger/internal/adapters/config"
	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/crypto"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// rpcClient is the subset of *rpc.Client the adapter calls
type rpcClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// Adapter settles ledger movements as SPL token transfers.
//
// Holder ids are wallet addresses. Tokens and payout currency sit in the
// holders' associated token accounts; the treasury key pays fees, holds
// unissued supply, and acts as the approved delegate on holder accounts.
type Adapter struct {
	rpc              rpcClient
	treasury         solana.PrivateKey
	currencyMint     solana.PublicKey
	currencyDecimals uint8
	tokenDecimals    uint8
	limiter          *rate.Limiter
	log              *logger.Logger
}

// New creates a Solana settlement adapter from config
func New(cfg config.SolanaConfig) (*Adapter, error) {
	key := cfg.TreasuryKey
	if cfg.KeyEncryptionKey != "" {
		sealer, err := crypto.NewSealer(cfg.KeyEncryptionKey)
		if err != nil {
			return nil, err
		}
		if key, err = sealer.Open(key); err != nil {
			return nil, errors.Wrap(err, "unseal SOLANA_TREASURY_PRIVATE_KEY")
		}
	}

	treasury, err := solana.PrivateKeyFromBase58(key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "invalid SOLANA_TREASURY_PRIVATE_KEY")
	}

	var currencyMint solana.PublicKey
	if cfg.CurrencyMint != "" {
		currencyMint, err = solana.PublicKeyFromBase58(cfg.CurrencyMint)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "invalid SOLANA_CURRENCY_MINT %q", cfg.CurrencyMint)
		}
	}

	return newAdapter(rpc.New(cfg.RPCURL), treasury, currencyMint, cfg), nil
}

func newAdapter(client rpcClient, treasury solana.PrivateKey, currencyMint solana.PublicKey, cfg config.SolanaConfig) *Adapter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 600
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}

	return &Adapter{
		rpc:              client,
		treasury:         treasury,
		currencyMint:     currencyMint,
		currencyDecimals: cfg.CurrencyDecimals,
		tokenDecimals:    cfg.TokenDecimals,
		limiter:          rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		log:              logger.Get().Component("solana_settlement"),
	}
}

// SubmitTokenTransfer implements settlement.Adapter. An empty from sends from the treasury.
func (a *Adapter) SubmitTokenTransfer(ctx context.Context, tokenRef, from, to string, amount decimal.Decimal) (string, error) {
	const op = "token_transfer"

	mint, err := solana.PublicKeyFromBase58(tokenRef)
	if err != nil {
		return "", settlement.NewFailure(op, "invalid token reference", err)
	}

	source := a.treasury.PublicKey()
	if from != "" {
		if source, err = solana.PublicKeyFromBase58(from); err != nil {
			return "", settlement.NewFailure(op, "invalid sender address", err)
		}
	}

	dest, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", settlement.NewFailure(op, "invalid receiver address", err)
	}

	units, err := toUnits(amount, a.tokenDecimals)
	if err != nil {
		return "", settlement.NewFailure(op, "amount out of range", err)
	}

	sig, err := a.transfer(ctx, mint, source, dest, units)
	if err != nil {
		return "", settlement.NewFailure(op, "send transaction", err)
	}
	return sig, nil
}

// SubmitCurrencyTransfer implements settlement.Adapter
func (a *Adapter) SubmitCurrencyTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	const op = "currency_transfer"

	if a.currencyMint.IsZero() {
		return "", settlement.NewFailure(op, "payout currency mint not configured", nil)
	}

	dest, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", settlement.NewFailure(op, "invalid receiver address", err)
	}

	units, err := toUnits(amount, a.currencyDecimals)
	if err != nil {
		return "", settlement.NewFailure(op, "amount out of range", err)
	}

	sig, err := a.transfer(ctx, a.currencyMint, a.treasury.PublicKey(), dest, units)
	if err != nil {
		return "", settlement.NewFailure(op, "send transaction", err)
	}
	return sig, nil
}

// BindNewToken implements settlement.Adapter: it creates a mint with the
// treasury as authority and mints the full supply into the treasury account.
func (a *Adapter) BindNewToken(ctx context.Context, params settlement.TokenParams) (string, error) {
	const op = "bind_token"

	supply, err := toUnits(params.Supply, a.tokenDecimals)
	if err != nil {
		return "", settlement.NewFailure(op, "supply out of range", err)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", settlement.NewFailure(op, "rate limit", err)
	}
	rent, err := a.rpc.GetMinimumBalanceForRentExemption(ctx, token.MINT_SIZE, rpc.CommitmentFinalized)
	if err != nil {
		return "", settlement.NewFailure(op, "rent exemption", err)
	}

	mint := solana.NewWallet()
	payer := a.treasury.PublicKey()
	treasuryATA, _, err := solana.FindAssociatedTokenAddress(payer, mint.PublicKey())
	if err != nil {
		return "", settlement.NewFailure(op, "derive treasury account", err)
	}

	ixs := []solana.Instruction{
		system.NewCreateAccountInstruction(rent, token.MINT_SIZE, solana.TokenProgramID, payer, mint.PublicKey()).Build(),
		token.NewInitializeMintInstruction(a.tokenDecimals, payer, payer, mint.PublicKey(), solana.SysVarRentPubkey).Build(),
		associatedtokenaccount.NewCreateInstruction(payer, payer, mint.PublicKey()).Build(),
		token.NewMintToInstruction(supply, mint.PublicKey(), treasuryATA, payer, nil).Build(),
	}

	sig, err := a.send(ctx, ixs, mint.PrivateKey)
	if err != nil {
		return "", settlement.NewFailure(op, "send transaction", err)
	}

	a.log.Infow("token bound",
		"pool_id", params.PoolID,
		"symbol", params.Symbol,
		"mint", mint.PublicKey().String(),
		"signature", sig,
	)
	return mint.PublicKey().String(), nil
}

func (a *Adapter) transfer(ctx context.Context, mint, from, to solana.PublicKey, units uint64) (string, error) {
	src, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return "", errors.Wrap(err, "derive source account")
	}
	dst, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return "", errors.Wrap(err, "derive destination account")
	}

	payer := a.treasury.PublicKey()
	ixs := make([]solana.Instruction, 0, 2)

	exists, err := a.accountExists(ctx, dst)
	if err != nil {
		return "", err
	}
	if !exists {
		ixs = append(ixs, associatedtokenaccount.NewCreateInstruction(payer, to, mint).Build())
	}
	ixs = append(ixs, token.NewTransferInstruction(units, src, dst, payer, nil).Build())

	return a.send(ctx, ixs)
}

func (a *Adapter) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return false, errors.Wrap(err, "rate limit")
	}
	_, err := a.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "get account info")
	}
	return true, nil
}

func (a *Adapter) send(ctx context.Context, ixs []solana.Instruction, extraSigners ...solana.PrivateKey) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "rate limit")
	}
	recent, err := a.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", errors.Wrap(err, "get latest blockhash")
	}

	tx, err := solana.NewTransaction(ixs, recent.Value.Blockhash, solana.TransactionPayer(a.treasury.PublicKey()))
	if err != nil {
		return "", errors.Wrap(err, "build transaction")
	}

	signers := append([]solana.PrivateKey{a.treasury}, extraSigners...)
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	}); err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "rate limit")
	}
	start := time.Now()
	sig, err := a.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", err
	}

	a.log.Debugw("transaction sent", "signature", sig.String(), "duration_ms", time.Since(start).Milliseconds())
	return sig.String(), nil
}

// toUnits converts a decimal amount to base units with the given decimals
func toUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if !amount.IsPositive() {
		return 0, errors.Newf("amount %s must be positive", amount)
	}
	units := amount.Shift(int32(decimals)).Truncate(0).BigInt()
	if !units.IsUint64() {
		return 0, errors.Newf("amount %s overflows u64", amount)
	}
	if units.Uint64() == 0 {
		return 0, errors.Newf("amount %s is below one base unit", amount)
	}
	return units.Uint64(), nil
}

var _ settlement.Adapter = (*Adapter)(nil)
