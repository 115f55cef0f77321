package rpc

import (
	"encoding/json"
	"net/http"

	"mintgate/native/droptoken"
)

type createCollectionParams struct {
	Owner             string   `json:"owner"`
	Name              string   `json:"name"`
	Administrator     string   `json:"administrator,omitempty"`
	Variant           string   `json:"variant,omitempty"`
	MaxSupply         uint64   `json:"maxSupply"`
	AllowedRegistries []string `json:"allowedRegistries,omitempty"`
}

type createCollectionResult struct {
	Collection string `json:"collection"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params createCollectionParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	administrator, err := parseOptionalAddress("administrator", params.Administrator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	variant, err := parseRoleVariant(params.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	registries := make([][20]byte, 0, len(params.AllowedRegistries))
	for _, raw := range params.AllowedRegistries {
		registry, regErr := parseAddress("allowedRegistries", raw)
		if regErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, regErr.Error(), nil)
			return
		}
		registries = append(registries, registry)
	}

	cfg := droptoken.Config{
		Name:              params.Name,
		Administrator:     administrator,
		Variant:           variant,
		MaxSupply:         params.MaxSupply,
		AllowedRegistries: registries,
	}
	collection, err := s.node.CreateCollection(owner, cfg)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, createCollectionResult{Collection: formatAddress(collection)})
}

type collectionInfoResult struct {
	Collection        string   `json:"collection"`
	Name              string   `json:"name"`
	Owner             string   `json:"owner"`
	Administrator     string   `json:"administrator,omitempty"`
	Variant           string   `json:"variant"`
	MaxSupply         uint64   `json:"maxSupply"`
	TotalSupply       uint64   `json:"totalSupply"`
	AllowedRegistries []string `json:"allowedRegistries"`
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collection, label, ok := decodeCollection(w, req)
	if !ok {
		return
	}
	info, err := s.node.CollectionInfo(collection)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	result := collectionInfoResult{
		Collection:        label,
		Name:              info.Name,
		Owner:             formatAddress(info.Owner),
		Variant:           formatRoleVariant(info.Variant),
		MaxSupply:         info.MaxSupply,
		TotalSupply:       info.TotalSupply,
		AllowedRegistries: formatAddresses(info.AllowedRegistries),
	}
	if info.Administrator != ([20]byte{}) {
		result.Administrator = formatAddress(info.Administrator)
	}
	writeResult(w, req.ID, result)
}

type walletMintedResult struct {
	Collection string `json:"collection"`
	Wallet     string `json:"wallet"`
	Minted     uint64 `json:"minted"`
}

func (s *Server) handleWalletMinted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		Collection string `json:"collection"`
		Wallet     string `json:"wallet"`
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
	wallet, err := parseAddress("wallet", params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minted, err := s.node.WalletMinted(collection, wallet)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, walletMintedResult{
		Collection: params.Collection,
		Wallet:     params.Wallet,
		Minted:     minted,
	})
}

// callerCollectionParams is the shared prefix of every delegated update
// request.
type callerCollectionParams struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
}

func (p callerCollectionParams) resolve() (caller, collection [20]byte, err error) {
	caller, err = parseAddress("caller", p.Caller)
	if err != nil {
		return
	}
	collection, err = parseAddress("collection", p.Collection)
	return
}

func (s *Server) handleUpdateDropURI(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		DropURI string `json:"dropURI"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdateDropURI(caller, collection, params.DropURI); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleUpdateCreatorPayoutAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		PayoutAddress string `json:"payoutAddress"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payout, err := parseAddress("payoutAddress", params.PayoutAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdateCreatorPayoutAddress(caller, collection, payout); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleUpdateAllowedFeeRecipient(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		FeeRecipient string `json:"feeRecipient"`
		Allowed      bool   `json:"allowed"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	feeRecipient, err := parseAddress("feeRecipient", params.FeeRecipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdateAllowedFeeRecipient(caller, collection, feeRecipient, params.Allowed); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleUpdatePayer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		Payer   string `json:"payer"`
		Allowed bool   `json:"allowed"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payer, err := parseAddress("payer", params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdatePayer(caller, collection, payer, params.Allowed); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleUpdateSignedMintValidationParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		Signer string               `json:"signer"`
		Params *signerParamsPayload `json:"params,omitempty"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	signer, err := parseAddress("signer", params.Signer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	// A missing params object unregisters the signer.
	validation, err := params.Params.toSignerParams()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdateSignedMintValidationParams(caller, collection, signer, validation); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleUpdatePublicDrop(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		PublicDrop *publicDropPayload `json:"publicDrop"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	publicDrop, err := params.PublicDrop.toPublicDrop()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdatePublicDrop(caller, collection, publicDrop); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleUpdateAllowList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		AllowList *allowListPayload `json:"allowList"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	data, err := params.AllowList.toAllowListData()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdateAllowList(caller, collection, data); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleUpdateTokenGatedDrop(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		AllowedToken string                  `json:"allowedToken"`
		Stage        *tokenGatedStagePayload `json:"stage,omitempty"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	allowedToken, err := parseAddress("allowedToken", params.AllowedToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	// A missing stage object removes the gated stage.
	stage, err := params.Stage.toStage()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdateTokenGatedDrop(caller, collection, allowedToken, stage); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleUpdateAllowedRegistry(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		callerCollectionParams
		Registry string `json:"registry"`
		Allowed  bool   `json:"allowed"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, collection, err := params.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	registry, err := parseAddress("registry", params.Registry)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TokenUpdateAllowedRegistry(caller, collection, registry, params.Allowed); err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}
