package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mintgate/observability"
)

// JSON-RPC error codes emitted by the node.
const (
	nodeCodeInvalidRequest = -32600
	nodeCodeInvalidParams  = -32602
	nodeCodeUnauthorized   = -32001
	nodeCodeDuplicateMint  = -32010
	nodeCodeRateLimited    = -32020
	nodeCodeModulePaused   = -32030
)

// NodeClient is the JSON-RPC surface of the mint node the gateway depends on.
type NodeClient interface {
	MintPublic(ctx context.Context, req MintPublicRequest) (*MintReceipt, error)
	MintSigned(ctx context.Context, req MintSignedRequest) (*MintReceipt, error)
	CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)
	PublicDrop(ctx context.Context, collection string) (*PublicDropView, error)
	DropURI(ctx context.Context, collection string) (string, error)
	CreatorPayout(ctx context.Context, collection string) (string, error)
	WalletMinted(ctx context.Context, collection, wallet string) (uint64, error)
	ChainInfo(ctx context.Context) (*ChainInfo, error)
	UpdateDropURI(ctx context.Context, caller, collection, dropURI string) error
	UpdateCreatorPayout(ctx context.Context, caller, collection, payout string) error
	UpdatePublicDrop(ctx context.Context, caller, collection string, stage PublicDropParams) error
	UpdateAllowedFeeRecipient(ctx context.Context, caller, collection, feeRecipient string, allowed bool) error
	UpdatePayer(ctx context.Context, caller, collection, payer string, allowed bool) error
}

// NodeError is a JSON-RPC error returned by the node. The node pairs each
// error code with an HTTP status, and both are preserved so handlers can
// translate node verdicts into REST statuses.
type NodeError struct {
	Code       int
	Message    string
	HTTPStatus int
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// RPCNodeClient implements NodeClient against the mintgate JSON-RPC server.
type RPCNodeClient struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

func NewRPCNodeClient(baseURL, authToken string) *RPCNodeClient {
	return &RPCNodeClient{
		baseURL:   baseURL,
		authToken: authToken,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error"`
}

type jsonRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// MintParams mirrors the signed-stage envelope accepted by the node.
type MintParams struct {
	Price                    string `json:"price"`
	MaxTotalMintableByWallet uint64 `json:"maxTotalMintableByWallet"`
	StartTime                uint64 `json:"startTime"`
	EndTime                  uint64 `json:"endTime"`
	DropStageIndex           uint32 `json:"dropStageIndex"`
	MaxTokenSupplyForStage   uint64 `json:"maxTokenSupplyForStage"`
	FeeBps                   uint16 `json:"feeBps"`
	RestrictFeeRecipients    bool   `json:"restrictFeeRecipients"`
}

// PublicDropParams mirrors the public-stage configuration on the node.
type PublicDropParams struct {
	Price                    string `json:"price"`
	StartTime                uint64 `json:"startTime"`
	EndTime                  uint64 `json:"endTime"`
	MaxTotalMintableByWallet uint64 `json:"maxTotalMintableByWallet"`
	FeeBps                   uint16 `json:"feeBps"`
	RestrictFeeRecipients    bool   `json:"restrictFeeRecipients"`
}

// MintPublicRequest is forwarded to drop_mintPublic.
type MintPublicRequest struct {
	Payer        string `json:"caller"`
	Collection   string `json:"collection"`
	FeeRecipient string `json:"feeRecipient"`
	Minter       string `json:"minter,omitempty"`
	Quantity     uint64 `json:"quantity"`
	Payment      string `json:"payment"`
}

// MintSignedRequest is forwarded to drop_mintSigned.
type MintSignedRequest struct {
	Payer        string      `json:"caller"`
	Collection   string      `json:"collection"`
	FeeRecipient string      `json:"feeRecipient"`
	Minter       string      `json:"minter,omitempty"`
	Quantity     uint64      `json:"quantity"`
	MintParams   *MintParams `json:"mintParams"`
	Salt         string      `json:"salt,omitempty"`
	Signature    string      `json:"signature"`
	Payment      string      `json:"payment"`
}

// MintReceipt mirrors the node's mint result.
type MintReceipt struct {
	Collection  string `json:"collection"`
	Stage       string `json:"stage"`
	Minter      string `json:"minter"`
	Quantity    uint64 `json:"quantity"`
	TotalSupply uint64 `json:"totalSupply"`
	Digest      string `json:"digest,omitempty"`
}

// CollectionInfo mirrors token_getInfo.
type CollectionInfo struct {
	Collection        string   `json:"collection"`
	Name              string   `json:"name"`
	Owner             string   `json:"owner"`
	Administrator     string   `json:"administrator,omitempty"`
	Variant           string   `json:"variant"`
	MaxSupply         uint64   `json:"maxSupply"`
	TotalSupply       uint64   `json:"totalSupply"`
	AllowedRegistries []string `json:"allowedRegistries"`
}

// PublicDropView mirrors drop_getPublicDrop.
type PublicDropView struct {
	Collection string            `json:"collection"`
	Configured bool              `json:"configured"`
	PublicDrop *PublicDropParams `json:"publicDrop,omitempty"`
}

// ChainInfo mirrors mint_getChainInfo.
type ChainInfo struct {
	ChainID         uint64 `json:"chainId"`
	NetworkName     string `json:"networkName"`
	RegistryAddress string `json:"registryAddress"`
	DomainSeparator string `json:"domainSeparator"`
	EventSequence   uint64 `json:"eventSequence"`
}

func (c *RPCNodeClient) MintPublic(ctx context.Context, req MintPublicRequest) (*MintReceipt, error) {
	var receipt MintReceipt
	if err := c.call(ctx, "drop_mintPublic", req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *RPCNodeClient) MintSigned(ctx context.Context, req MintSignedRequest) (*MintReceipt, error) {
	var receipt MintReceipt
	if err := c.call(ctx, "drop_mintSigned", req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *RPCNodeClient) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	var info CollectionInfo
	if err := c.call(ctx, "token_getInfo", map[string]string{"collection": collection}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *RPCNodeClient) PublicDrop(ctx context.Context, collection string) (*PublicDropView, error) {
	var view PublicDropView
	if err := c.call(ctx, "drop_getPublicDrop", map[string]string{"collection": collection}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *RPCNodeClient) DropURI(ctx context.Context, collection string) (string, error) {
	var result struct {
		DropURI string `json:"dropURI"`
	}
	if err := c.call(ctx, "drop_getDropURI", map[string]string{"collection": collection}, &result); err != nil {
		return "", err
	}
	return result.DropURI, nil
}

func (c *RPCNodeClient) CreatorPayout(ctx context.Context, collection string) (string, error) {
	var result struct {
		CreatorPayoutAddress string `json:"creatorPayoutAddress"`
	}
	if err := c.call(ctx, "drop_getCreatorPayoutAddress", map[string]string{"collection": collection}, &result); err != nil {
		return "", err
	}
	return result.CreatorPayoutAddress, nil
}

func (c *RPCNodeClient) WalletMinted(ctx context.Context, collection, wallet string) (uint64, error) {
	var result struct {
		Minted uint64 `json:"minted"`
	}
	params := map[string]string{"collection": collection, "wallet": wallet}
	if err := c.call(ctx, "token_getWalletMinted", params, &result); err != nil {
		return 0, err
	}
	return result.Minted, nil
}

func (c *RPCNodeClient) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	var info ChainInfo
	if err := c.call(ctx, "mint_getChainInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *RPCNodeClient) UpdateDropURI(ctx context.Context, caller, collection, dropURI string) error {
	params := map[string]string{"caller": caller, "collection": collection, "dropURI": dropURI}
	return c.call(ctx, "token_updateDropURI", params, nil)
}

func (c *RPCNodeClient) UpdateCreatorPayout(ctx context.Context, caller, collection, payout string) error {
	params := map[string]string{"caller": caller, "collection": collection, "payoutAddress": payout}
	return c.call(ctx, "token_updateCreatorPayoutAddress", params, nil)
}

func (c *RPCNodeClient) UpdatePublicDrop(ctx context.Context, caller, collection string, stage PublicDropParams) error {
	params := map[string]interface{}{
		"caller":     caller,
		"collection": collection,
		"publicDrop": stage,
	}
	return c.call(ctx, "token_updatePublicDrop", params, nil)
}

func (c *RPCNodeClient) UpdateAllowedFeeRecipient(ctx context.Context, caller, collection, feeRecipient string, allowed bool) error {
	params := map[string]interface{}{
		"caller":       caller,
		"collection":   collection,
		"feeRecipient": feeRecipient,
		"allowed":      allowed,
	}
	return c.call(ctx, "token_updateAllowedFeeRecipient", params, nil)
}

func (c *RPCNodeClient) UpdatePayer(ctx context.Context, caller, collection, payer string, allowed bool) error {
	params := map[string]interface{}{
		"caller":     caller,
		"collection": collection,
		"payer":      payer,
		"allowed":    allowed,
	}
	return c.call(ctx, "token_updatePayer", params, nil)
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	start := time.Now()
	defer func() {
		observability.Gateway().ObserveUpstream(method, time.Since(start))
	}()

	wireParams := []interface{}{}
	if params != nil {
		wireParams = append(wireParams, params)
	}
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  wireParams,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The node pairs JSON-RPC error objects with HTTP statuses, so decode the
	// envelope before judging the status line.
	var rpcResp jsonRPCResponse
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rpcResp); decodeErr != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("node rpc %s failed: status=%d", method, resp.StatusCode)
		}
		return decodeErr
	}
	if rpcResp.Error != nil {
		return &NodeError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message, HTTPStatus: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rpc %s failed: status=%d", method, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("node rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
