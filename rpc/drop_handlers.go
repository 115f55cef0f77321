package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"mintgate/native/drop"
	"mintgate/observability"
)

type mintSignedParams struct {
	Caller       string             `json:"caller"`
	Collection   string             `json:"collection"`
	FeeRecipient string             `json:"feeRecipient"`
	Minter       string             `json:"minter,omitempty"`
	Quantity     uint64             `json:"quantity"`
	MintParams   *mintParamsPayload `json:"mintParams"`
	Salt         string             `json:"salt,omitempty"`
	Signature    string             `json:"signature"`
	Payment      string             `json:"payment"`
}

type mintPublicParams struct {
	Caller       string `json:"caller"`
	Collection   string `json:"collection"`
	FeeRecipient string `json:"feeRecipient"`
	Minter       string `json:"minter,omitempty"`
	Quantity     uint64 `json:"quantity"`
	Payment      string `json:"payment"`
}

type mintReceipt struct {
	Collection  string `json:"collection"`
	Stage       string `json:"stage"`
	Minter      string `json:"minter"`
	Quantity    uint64 `json:"quantity"`
	TotalSupply uint64 `json:"totalSupply"`
	Digest      string `json:"digest,omitempty"`
}

func (s *Server) handleMintSigned(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params mintSignedParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	feeRecipient, err := parseAddress("feeRecipient", params.FeeRecipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minter, err := parseOptionalAddress("minter", params.Minter)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	mintParams, err := params.MintParams.toMintParams()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	salt, err := parseOptionalAmount("salt", params.Salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	signature, err := parseSignature(params.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payment, err := parseAmount("payment", params.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	source := clientSource(r)
	if !s.allowSource(source, time.Now()) {
		observability.ModuleMetrics().RecordThrottle("drop", "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "mint rate limit exceeded", source)
		return
	}

	request := &drop.SignedMintRequest{
		Collection:     collection,
		FeeRecipient:   feeRecipient,
		MinterOverride: minter,
		Quantity:       params.Quantity,
		MintParams:     mintParams,
		Salt:           salt,
		Signature:      signature,
		Payment:        payment,
	}
	if err := s.node.MintSigned(caller, request); err != nil {
		writeDropError(w, req.ID, err)
		return
	}

	effective := minter
	if effective == ([20]byte{}) {
		effective = caller
	}
	receipt := mintReceipt{
		Collection: params.Collection,
		Stage:      "signed",
		Minter:     formatAddress(effective),
		Quantity:   params.Quantity,
	}
	if info, infoErr := s.node.CollectionInfo(collection); infoErr == nil && info != nil {
		receipt.TotalSupply = info.TotalSupply
	}
	if digest, digestErr := s.node.MintDigest(collection, effective, feeRecipient, mintParams, salt); digestErr == nil {
		receipt.Digest = formatHash(digest)
	}
	writeResult(w, req.ID, receipt)
}

func (s *Server) handleMintPublic(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params mintPublicParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	feeRecipient, err := parseAddress("feeRecipient", params.FeeRecipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minter, err := parseOptionalAddress("minter", params.Minter)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payment, err := parseAmount("payment", params.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	source := clientSource(r)
	if !s.allowSource(source, time.Now()) {
		observability.ModuleMetrics().RecordThrottle("drop", "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "mint rate limit exceeded", source)
		return
	}

	request := &drop.PublicMintRequest{
		Collection:     collection,
		FeeRecipient:   feeRecipient,
		MinterOverride: minter,
		Quantity:       params.Quantity,
		Payment:        payment,
	}
	if err := s.node.MintPublic(caller, request); err != nil {
		writeDropError(w, req.ID, err)
		return
	}

	effective := minter
	if effective == ([20]byte{}) {
		effective = caller
	}
	receipt := mintReceipt{
		Collection: params.Collection,
		Stage:      "public",
		Minter:     formatAddress(effective),
		Quantity:   params.Quantity,
	}
	if info, infoErr := s.node.CollectionInfo(collection); infoErr == nil && info != nil {
		receipt.TotalSupply = info.TotalSupply
	}
	writeResult(w, req.ID, receipt)
}

type mintDigestParams struct {
	Collection   string             `json:"collection"`
	Minter       string             `json:"minter"`
	FeeRecipient string             `json:"feeRecipient"`
	MintParams   *mintParamsPayload `json:"mintParams"`
	Salt         string             `json:"salt,omitempty"`
}

type mintDigestResult struct {
	Digest string `json:"digest"`
}

func (s *Server) handleGetMintDigest(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params mintDigestParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minter, err := parseAddress("minter", params.Minter)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	feeRecipient, err := parseAddress("feeRecipient", params.FeeRecipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	mintParams, err := params.MintParams.toMintParams()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	salt, err := parseOptionalAmount("salt", params.Salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	digest, err := s.node.MintDigest(collection, minter, feeRecipient, mintParams, salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, mintDigestResult{Digest: formatHash(digest)})
}

type digestUsedParams struct {
	Digest string `json:"digest"`
}

type digestUsedResult struct {
	Digest string `json:"digest"`
	Used   bool   `json:"used"`
}

func (s *Server) handleIsDigestUsed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params digestUsedParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	digest, err := parseHash32("digest", params.Digest)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	used, err := s.node.DigestUsed(digest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load digest ledger", err.Error())
		return
	}
	writeResult(w, req.ID, digestUsedResult{Digest: params.Digest, Used: used})
}

type collectionParams struct {
	Collection string `json:"collection"`
}

// decodeCollection parses the shared {collection} parameter object used by
// the per-collection read methods.
func decodeCollection(w http.ResponseWriter, req *RPCRequest) ([20]byte, string, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return [20]byte{}, "", false
	}
	var params collectionParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return [20]byte{}, "", false
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return [20]byte{}, "", false
	}
	return collection, params.Collection, true
}

type creatorPayoutResult struct {
	Collection           string `json:"collection"`
	CreatorPayoutAddress string `json:"creatorPayoutAddress"`
}

func (s *Server) handleGetCreatorPayoutAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	payout, err := s.node.CreatorPayoutAddress(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	result := creatorPayoutResult{Collection: label}
	if payout != ([20]byte{}) {
		result.CreatorPayoutAddress = formatAddress(payout)
	}
	writeResult(w, req.ID, result)
}

type addressListResult struct {
	Collection string   `json:"collection"`
	Addresses  []string `json:"addresses"`
}

func (s *Server) handleGetAllowedFeeRecipients(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	recipients, err := s.node.AllowedFeeRecipients(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, addressListResult{Collection: label, Addresses: formatAddresses(recipients)})
}

func (s *Server) handleGetPayers(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	payers, err := s.node.Payers(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, addressListResult{Collection: label, Addresses: formatAddresses(payers)})
}

func (s *Server) handleGetSigners(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	signers, err := s.node.Signers(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, addressListResult{Collection: label, Addresses: formatAddresses(signers)})
}

func (s *Server) handleGetTokenGatedTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	tokens, err := s.node.TokenGatedTokens(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, addressListResult{Collection: label, Addresses: formatAddresses(tokens)})
}

type membershipParams struct {
	Collection string `json:"collection"`
	Address    string `json:"address"`
}

type membershipResult struct {
	Collection string `json:"collection"`
	Address    string `json:"address"`
	Allowed    bool   `json:"allowed"`
}

func decodeMembership(w http.ResponseWriter, req *RPCRequest) (collection, member [20]byte, params membershipParams, ok bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	var err error
	collection, err = parseAddress("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	member, err = parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	ok = true
	return
}

func (s *Server) handleIsFeeRecipientAllowed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, member, params, ok := decodeMembership(w, req)
	if !ok {
		return
	}
	allowed, err := s.node.FeeRecipientAllowed(collection, member)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, membershipResult{Collection: params.Collection, Address: params.Address, Allowed: allowed})
}

func (s *Server) handleIsPayerAllowed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, member, params, ok := decodeMembership(w, req)
	if !ok {
		return
	}
	allowed, err := s.node.PayerAllowed(collection, member)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, membershipResult{Collection: params.Collection, Address: params.Address, Allowed: allowed})
}

type signerParamsResult struct {
	Collection string               `json:"collection"`
	Signer     string               `json:"signer"`
	Registered bool                 `json:"registered"`
	Params     *signerParamsPayload `json:"params,omitempty"`
}

func (s *Server) handleGetSignerValidationParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		Collection string `json:"collection"`
		Signer     string `json:"signer"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	signer, err := parseAddress("signer", params.Signer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	validation, registered, err := s.node.SignerValidationParams(collection, signer)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	result := signerParamsResult{
		Collection: params.Collection,
		Signer:     params.Signer,
		Registered: registered,
	}
	if registered {
		result.Params = signerParamsPayloadFrom(validation)
	}
	writeResult(w, req.ID, result)
}

type dropURIResult struct {
	Collection string `json:"collection"`
	DropURI    string `json:"dropURI"`
}

func (s *Server) handleGetDropURI(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	uri, err := s.node.DropURI(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, dropURIResult{Collection: label, DropURI: uri})
}

type publicDropResult struct {
	Collection string             `json:"collection"`
	Configured bool               `json:"configured"`
	PublicDrop *publicDropPayload `json:"publicDrop,omitempty"`
}

func (s *Server) handleGetPublicDrop(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	publicDrop, configured, err := s.node.PublicDrop(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	result := publicDropResult{Collection: label, Configured: configured}
	if configured {
		result.PublicDrop = publicDropPayloadFrom(publicDrop)
	}
	writeResult(w, req.ID, result)
}

type allowListResult struct {
	Collection string            `json:"collection"`
	Configured bool              `json:"configured"`
	AllowList  *allowListPayload `json:"allowList,omitempty"`
}

func (s *Server) handleGetAllowList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	data, configured, err := s.node.AllowList(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	result := allowListResult{Collection: label, Configured: configured}
	if configured {
		result.AllowList = allowListPayloadFrom(data)
	}
	writeResult(w, req.ID, result)
}

type tokenGatedDropResult struct {
	Collection   string                  `json:"collection"`
	AllowedToken string                  `json:"allowedToken"`
	Configured   bool                    `json:"configured"`
	Stage        *tokenGatedStagePayload `json:"stage,omitempty"`
}

func (s *Server) handleGetTokenGatedDrop(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		Collection   string `json:"collection"`
		AllowedToken string `json:"allowedToken"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	allowedToken, err := parseAddress("allowedToken", params.AllowedToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	stage, configured, err := s.node.TokenGatedDrop(collection, allowedToken)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	result := tokenGatedDropResult{
		Collection:   params.Collection,
		AllowedToken: params.AllowedToken,
		Configured:   configured,
	}
	if configured {
		result.Stage = tokenGatedStagePayloadFrom(stage)
	}
	writeResult(w, req.ID, result)
}

type gatedRedeemedResult struct {
	Collection   string `json:"collection"`
	AllowedToken string `json:"allowedToken"`
	TokenID      string `json:"tokenId"`
	Redeemed     bool   `json:"redeemed"`
}

func (s *Server) handleIsTokenGatedRedeemed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		Collection   string `json:"collection"`
		AllowedToken string `json:"allowedToken"`
		TokenID      string `json:"tokenId"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	allowedToken, err := parseAddress("allowedToken", params.AllowedToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokenID, err := parseAmount("tokenId", params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	redeemed, err := s.node.TokenGatedRedeemed(collection, allowedToken, tokenID)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, gatedRedeemedResult{
		Collection:   params.Collection,
		AllowedToken: params.AllowedToken,
		TokenID:      params.TokenID,
		Redeemed:     redeemed,
	})
}
