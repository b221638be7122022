package recoverd

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/assets"
	"github.com/custodyhq/recoverd/backup"
	"github.com/custodyhq/recoverd/build"
	"github.com/custodyhq/recoverd/derive"
	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/healthcheck"
)

const stageRequest = "request"

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code    string `json:"code"`
	Class   string `json:"class"`
	Message string `json:"message"`
}

// derivedKeyResponse is one derived key. PrivateKey is omitted for public
// derivation.
type derivedKeyResponse struct {
	Path       string `json:"path"`
	PrivateKey string `json:"private_key,omitempty"`
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
}

type deriveKeysResponse struct {
	Asset string               `json:"asset"`
	Keys  []derivedKeyResponse `json:"keys"`
}

// masterKeysResponse carries extended keys. The private halves are only
// set when explicitly requested.
type masterKeysResponse struct {
	XPUB string `json:"xpub,omitempty"`
	FPUB string `json:"fpub,omitempty"`
	XPRV string `json:"xprv,omitempty"`
	FPRV string `json:"fprv,omitempty"`
}

func newMasterKeysResponse(keys *keychain.MasterKeys,
	withPrivate bool) *masterKeysResponse {

	resp := &masterKeysResponse{
		XPUB: keys.XPUB,
		FPUB: keys.FPUB,
	}
	if withPrivate {
		resp.XPRV = keys.XPRV
		resp.FPRV = keys.FPRV
	}

	return resp
}

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	KeysLoaded bool   `json:"keys_loaded"`

	// DiskFree is the ratio of free disk space in the data directory.
	DiskFree float64 `json:"disk_free,omitempty"`
}

// deriveKeysRequest holds the parsed query of a derive-keys request. Path
// levels are range checked by the engine so they fail as invalid paths.
type deriveKeysRequest struct {
	Asset       string `validate:"required,max=32,printascii"`
	Account     int64
	Change      int64
	IndexStart  int64
	IndexEnd    int64
	PublicOnly  bool
	Legacy      bool
	Checksum    bool
	Testnet     bool
	ExtendedKey string `validate:"omitempty,max=256,alphanum"`
}

// recoverKeysRequest is the body of a recover-keys request. All fields are
// base64 encoded.
type recoverKeysRequest struct {
	Zip              string `json:"zip" validate:"required,base64"`
	Passphrase       string `json:"passphrase" validate:"required,base64"`
	RSAKey           string `json:"rsa-key" validate:"required,base64"`
	RSAKeyPassphrase string `json:"rsa-key-passphrase" validate:"omitempty,base64"`
}

func invalidArgument(format string, args ...any) error {
	return errorcodes.New(
		errorcodes.ErrCodeInvalidArgument, stageRequest, format, args...,
	)
}

// httpStatus maps an error to the status code of its class.
func httpStatus(err error) int {
	switch errorcodes.CodeOf(err).Class() {
	case errorcodes.ClassValidation:
		return http.StatusBadRequest

	case errorcodes.ClassAuthentication:
		return http.StatusUnprocessableEntity

	case errorcodes.ClassState:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srvrLog.Warnf("Unable to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errorcodes.CodeOf(err)
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		srvrLog.Errorf("Request failed: %v", err)
	}

	writeJSON(w, status, &errorResponse{
		Code:    string(code),
		Class:   code.Class().String(),
		Message: err.Error(),
	})
}

func queryInt(q url.Values, name string, dflt int64) (int64, error) {
	raw := q.Get(name)
	if raw == "" {
		return dflt, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalidArgument("%s must be an integer", name)
	}

	return v, nil
}

func queryBool(q url.Values, name string) (bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return false, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidArgument("%s must be a boolean", name)
	}

	return v, nil
}

func parseDeriveKeysRequest(q url.Values) (*deriveKeysRequest, error) {
	req := &deriveKeysRequest{
		Asset:       q.Get("asset"),
		ExtendedKey: q.Get("key"),
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"account", &req.Account},
		{"change", &req.Change},
		{"index_start", &req.IndexStart},
	}
	for _, f := range ints {
		v, err := queryInt(q, f.name, 0)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	// A missing end derives a single index.
	end, err := queryInt(q, "index_end", req.IndexStart)
	if err != nil {
		return nil, err
	}
	req.IndexEnd = end

	bools := []struct {
		name string
		dst  *bool
	}{
		{"xpub", &req.PublicOnly},
		{"legacy", &req.Legacy},
		{"checksum", &req.Checksum},
		{"testnet", &req.Testnet},
	}
	for _, f := range bools {
		v, err := queryBool(q, f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	return req, nil
}

// deriveKeys handles GET /derive-keys.
func (s *server) deriveKeys(w http.ResponseWriter, r *http.Request) {
	req, err := parseDeriveKeysRequest(r.URL.Query())
	if err == nil {
		err = s.validate.Struct(req)
		if err != nil {
			err = invalidArgument("%v", err)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	mode := derive.ModePrivate
	if req.PublicOnly {
		mode = derive.ModePublic
	}

	extendedKey := fn.None[string]()
	if req.ExtendedKey != "" {
		extendedKey = fn.Some(req.ExtendedKey)
	}

	keys, err := s.engine.DeriveRange(r.Context(), derive.RangeRequest{
		Asset:      req.Asset,
		Account:    req.Account,
		Change:     req.Change,
		IndexStart: req.IndexStart,
		IndexEnd:   req.IndexEnd,
		Mode:       mode,
		Format: address.Options{
			Legacy:   req.Legacy,
			Checksum: req.Checksum,
			Testnet:  req.Testnet,
		},
		ExtendedKey: extendedKey,
	})

	// Only registered assets get their own label.
	label := "unknown"
	if desc, lookupErr := s.registry.Lookup(req.Asset); lookupErr == nil {
		label = desc.ID
	}
	s.metrics.observeDerivation(label, len(keys), err)

	if err != nil {
		writeError(w, err)
		return
	}

	resp := &deriveKeysResponse{
		Asset: label,
		Keys:  make([]derivedKeyResponse, 0, len(keys)),
	}
	for _, key := range keys {
		resp.Keys = append(resp.Keys, derivedKeyResponse{
			Path:       key.Path.String(),
			PrivateKey: key.PrivKeyHex().UnwrapOr(""),
			PublicKey:  key.PubKeyHex(),
			Address:    key.Address,
		})
		key.Zero()
	}

	writeJSON(w, http.StatusOK, resp)
}

// decodeBundle decodes the base64 fields of a recovery request.
func decodeBundle(req *recoverKeysRequest) (*backup.Bundle, error) {
	bundle := &backup.Bundle{}
	fields := []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"zip", req.Zip, &bundle.Archive},
		{"passphrase", req.Passphrase, &bundle.Passphrase},
		{"rsa-key", req.RSAKey, &bundle.RSAKey},
		{"rsa-key-passphrase", req.RSAKeyPassphrase,
			&bundle.RSAKeyPassphrase},
	}
	for _, f := range fields {
		b, err := base64.StdEncoding.DecodeString(f.src)
		if err != nil {
			bundle.Zero()
			return nil, invalidArgument("%s is not valid base64",
				f.name)
		}
		*f.dst = b
	}

	return bundle, nil
}

// recoverKeys handles POST /recover-keys.
func (s *server) recoverKeys(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	withPrivate, err := queryBool(r.URL.Query(), "recover-prv")
	if err != nil {
		writeError(w, err)
		return
	}

	var req recoverKeysRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, invalidArgument("invalid request payload"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, invalidArgument("%v", err))
		return
	}

	bundle, err := decodeBundle(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	keys, err := s.recover(r, bundle)
	s.metrics.observeRecovery(start, err)
	if err != nil {
		rcvdLog.Warnf("Recovery failed: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newMasterKeysResponse(keys, withPrivate))
}

// recover runs one recovery and stores its result. Recoveries are
// serialized since they all write the same store slot.
func (s *server) recover(r *http.Request,
	bundle *backup.Bundle) (*keychain.MasterKeys, error) {

	s.recoverMu.Lock()
	defer s.recoverMu.Unlock()

	keys, err := backup.Recover(r.Context(), bundle)
	if err != nil {
		return nil, err
	}

	retainPrivate := !s.cfg.Recovery.DiscardPrivate
	if err := s.store.Load(keys, retainPrivate); err != nil {
		return nil, err
	}

	rcvdLog.Infof("Recovered master keys (private retained: %v)",
		retainPrivate)

	return keys, nil
}

// showExtendedKeys handles GET /show-extended-keys.
func (s *server) showExtendedKeys(w http.ResponseWriter, r *http.Request) {
	withPrivate, err := queryBool(r.URL.Query(), "prv")
	if err != nil {
		writeError(w, err)
		return
	}

	if s.store.Empty() {
		writeError(w, errorcodes.New(
			errorcodes.ErrCodeMissingMasterKey, stageRequest,
			"no master keys have been recovered",
		))
		return
	}

	keys := s.store.Snapshot()
	writeJSON(w, http.StatusOK, newMasterKeysResponse(&keys, withPrivate))
}

// listAssets handles GET /assets.
func (s *server) listAssets(w http.ResponseWriter, _ *http.Request) {
	descs := s.registry.Assets()
	if descs == nil {
		descs = []assets.Descriptor{}
	}

	writeJSON(w, http.StatusOK, descs)
}

// healthz handles GET /healthz.
func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := &healthResponse{
		Status:     "ok",
		Version:    build.Version(),
		KeysLoaded: !s.store.Empty(),
	}

	free, err := healthcheck.AvailableDiskSpaceRatio(s.cfg.DataDir)
	if err == nil {
		resp.DiskFree = free
	}

	writeJSON(w, http.StatusOK, resp)
}
