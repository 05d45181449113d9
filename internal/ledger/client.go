package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// Config holds the connection and contract parameters for the ledger client.
type Config struct {
	// HTTPURL is the JSON-RPC endpoint used for all request/response calls.
	HTTPURL string
	// WSURL is the websocket endpoint used for log subscriptions. Optional;
	// without it SubscribeEvent is unavailable and the listener mode cannot
	// run.
	WSURL string
	// ChainID is the expected chain id (42161 for Arbitrum One). Checked
	// against the node at startup when non-zero.
	ChainID int64
	// PrivateKeyHex is the operator's custodial signing key.
	PrivateKeyHex string

	MintContract    common.Address
	NFTContract     common.Address
	PaymentContract common.Address

	MintGasLimit     uint64
	TransferGasLimit uint64
}

// TxInfo is the ledger-observed truth about a transaction, used to verify
// claimed payments independently of anything the client declared.
type TxInfo struct {
	Hash    common.Hash
	From    common.Address
	To      *common.Address
	Value   *big.Int
	Pending bool
}

// Client talks to one ledger node on behalf of the operator's custodial
// address. All submissions go through a single nonce-serialized path so
// concurrent application requests cannot produce out-of-order nonces.
type Client struct {
	ec     *ethclient.Client
	wsec   *ethclient.Client // nil when no websocket endpoint is configured
	logger *slog.Logger

	chainID  *big.Int
	signer   types.Signer
	key      *ecdsa.PrivateKey
	operator common.Address

	nonces *nonceManager

	mintContract    common.Address
	nftContract     common.Address
	paymentContract common.Address

	mintGasLimit     uint64
	transferGasLimit uint64
}

// New dials the configured endpoints, loads the operator key, and verifies
// the node's chain id.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.HTTPURL == "" {
		return nil, fmt.Errorf("ledger: rpc http url is required")
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: invalid operator private key: %w", err)
	}

	ec, err := ethclient.DialContext(ctx, cfg.HTTPURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.HTTPURL, err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("ledger: fetch chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		ec.Close()
		return nil, fmt.Errorf("ledger: node chain id %s does not match configured %d", chainID, cfg.ChainID)
	}

	var wsec *ethclient.Client
	if cfg.WSURL != "" {
		wsec, err = ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			ec.Close()
			return nil, fmt.Errorf("ledger: dial ws %s: %w", cfg.WSURL, err)
		}
	}

	operator := ethcrypto.PubkeyToAddress(key.PublicKey)

	c := &Client{
		ec:               ec,
		wsec:             wsec,
		logger:           logger.With(slog.String("component", "ledger")),
		chainID:          chainID,
		signer:           types.LatestSignerForChainID(chainID),
		key:              key,
		operator:         operator,
		nonces:           newNonceManager(),
		mintContract:     cfg.MintContract,
		nftContract:      cfg.NFTContract,
		paymentContract:  cfg.PaymentContract,
		mintGasLimit:     cfg.MintGasLimit,
		transferGasLimit: cfg.TransferGasLimit,
	}

	c.logger.InfoContext(ctx, "ledger client connected",
		slog.String("chain_id", chainID.String()),
		slog.String("operator", operator.Hex()),
		slog.Bool("subscriptions", wsec != nil),
	)
	return c, nil
}

// Close releases the underlying RPC connections.
func (c *Client) Close() {
	c.ec.Close()
	if c.wsec != nil {
		c.wsec.Close()
	}
}

// OperatorAddress returns the custodial address transactions are signed with.
func (c *Client) OperatorAddress() common.Address {
	return c.operator
}

// PaymentContract returns the address users pay into.
func (c *Client) PaymentContract() common.Address {
	return c.paymentContract
}

// SupportsSubscriptions reports whether a websocket endpoint was configured.
func (c *Client) SupportsSubscriptions() bool {
	return c.wsec != nil
}

// Receipt looks up the receipt for a transaction. found is false while the
// transaction is not yet included; that is a normal, retryable state, not an
// error.
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, bool, error) {
	receipt, err := c.ec.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ledger: receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, true, nil
}

// Transaction looks up a transaction and recovers its sender so claimed
// amounts can be checked against ledger-observed truth. found is false when
// the node does not know the hash.
func (c *Client) Transaction(ctx context.Context, txHash common.Hash) (*TxInfo, bool, error) {
	tx, pending, err := c.ec.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ledger: transaction %s: %w", txHash.Hex(), err)
	}

	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return nil, false, fmt.Errorf("ledger: recover sender of %s: %w", txHash.Hex(), err)
	}

	return &TxInfo{
		Hash:    tx.Hash(),
		From:    from,
		To:      tx.To(),
		Value:   tx.Value(),
		Pending: pending,
	}, true, nil
}

// SubmitMint submits the privileged mintPlayer call with the eligibility
// proof, attaching value as the mint price. It returns the transaction hash;
// inclusion is not guaranteed and must be confirmed via Receipt.
func (c *Client) SubmitMint(ctx context.Context, clubID *big.Int, playerID string, proof domain.EligibilityProof, value *big.Int) (common.Hash, error) {
	data, err := MintABI.Pack("mintPlayer", clubID, playerID, [][32]byte(proof))
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: pack mintPlayer: %w", err)
	}
	return c.submit(ctx, c.mintContract, data, value, c.mintGasLimit)
}

// SubmitTransfer submits a transferFrom moving tokenID from the operator's
// custodial address to the recipient.
func (c *Client) SubmitTransfer(ctx context.Context, to common.Address, tokenID *big.Int) (common.Hash, error) {
	data, err := NFTABI.Pack("transferFrom", c.operator, to, tokenID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: pack transferFrom: %w", err)
	}
	return c.submit(ctx, c.nftContract, data, new(big.Int), c.transferGasLimit)
}

// OwnerOf returns the current owner of the given token id on the NFT
// contract.
func (c *Client) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	data, err := NFTABI.Pack("ownerOf", tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("ledger: pack ownerOf: %w", err)
	}

	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{
		To:   &c.nftContract,
		Data: data,
	}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("ledger: call ownerOf(%s): %w", tokenID, err)
	}

	vals, err := NFTABI.Unpack("ownerOf", out)
	if err != nil || len(vals) != 1 {
		return common.Address{}, fmt.Errorf("ledger: unpack ownerOf(%s): %w", tokenID, err)
	}
	owner, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ledger: ownerOf(%s) returned unexpected type %T", tokenID, vals[0])
	}
	return owner, nil
}

// submit signs and sends a transaction from the operator address. The nonce
// manager serializes the reserve-and-send section so application-level
// concurrency never produces out-of-order nonces.
func (c *Client) submit(ctx context.Context, to common.Address, data []byte, value *big.Int, gasLimit uint64) (common.Hash, error) {
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: %w: suggest gas price: %v", domain.ErrSubmissionError, err)
	}

	c.nonces.mu.Lock()
	defer c.nonces.mu.Unlock()

	nonce, err := c.nonces.reserveLocked(ctx, c.ec, c.operator)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: %w: fetch nonce: %v", domain.ErrSubmissionError, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		c.nonces.resetLocked()
		return common.Hash{}, fmt.Errorf("ledger: %w: sign: %v", domain.ErrSubmissionError, err)
	}

	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		// Resync the nonce on the next submission; the node may or may not
		// have seen this one.
		c.nonces.resetLocked()
		return common.Hash{}, fmt.Errorf("ledger: %w: send: %v", domain.ErrSubmissionError, err)
	}

	c.logger.InfoContext(ctx, "transaction submitted",
		slog.String("tx", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce),
		slog.String("value_wei", value.String()),
	)
	return signed.Hash(), nil
}

// FilterEvents returns decoded occurrences of the named event on contract
// between fromBlock and toBlock inclusive. Logs that do not decode against
// the signature are skipped, not treated as fatal.
func (c *Client) FilterEvents(ctx context.Context, contract common.Address, contractABI *abi.ABI, event string, fromBlock, toBlock uint64) ([]domain.LedgerEvent, error) {
	ev, ok := contractABI.Events[event]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown event %q", event)
	}

	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{ev.ID}},
	}
	if toBlock > 0 {
		q.ToBlock = new(big.Int).SetUint64(toBlock)
	}

	logs, err := c.ec.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ledger: filter %s logs: %w", event, err)
	}

	events := make([]domain.LedgerEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		decoded, ok := DecodeLog(lg, contractABI, event)
		if !ok {
			continue
		}
		events = append(events, *decoded)
	}
	return events, nil
}

// SubscribeEvent subscribes to the named event on contract, delivering
// decoded events to ch as logs are observed. Delivery is at-least-once
// across reconnects; consumers must dedupe on (block, log index). Requires a
// websocket endpoint.
func (c *Client) SubscribeEvent(ctx context.Context, contract common.Address, contractABI *abi.ABI, event string, ch chan<- domain.LedgerEvent) (ethereum.Subscription, error) {
	if c.wsec == nil {
		return nil, fmt.Errorf("ledger: no websocket endpoint configured for subscriptions")
	}
	ev, ok := contractABI.Events[event]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown event %q", event)
	}

	rawCh := make(chan types.Log, 64)
	sub, err := c.wsec.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{ev.ID}},
	}, rawCh)
	if err != nil {
		return nil, fmt.Errorf("ledger: subscribe %s: %w", event, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case lg, open := <-rawCh:
				if !open {
					return
				}
				if lg.Removed {
					continue
				}
				decoded, ok := DecodeLog(lg, contractABI, event)
				if !ok {
					continue
				}
				select {
				case ch <- *decoded:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}

// LatestBlock returns the current head block number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: block number: %w", err)
	}
	return n, nil
}
