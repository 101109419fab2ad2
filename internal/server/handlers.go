package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"

	"StableVault/internal/query"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return id, nil
}

// parseAmount accepts non-negative decimal strings; amount semantics
// (zero rejection) stay with the engine.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// --- reads ---

type assetInfo struct {
	Symbol string `json:"symbol"`
	FeedID string `json:"feed_id"`
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.engine.RegisteredAssets()
	out := make([]assetInfo, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetInfo{Symbol: a.Symbol, FeedID: a.FeedID})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	p := s.engine.Params()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"liquidation_threshold_pct": p.LiquidationThresholdPct,
		"liquidation_bonus_pct":     p.LiquidationBonusPct,
		"min_health_factor":         p.MinHealthFactor.Dec(),
	})
}

// handleAssetValue prices an asset amount in wad USD at current quotes.
func (s *Server) handleAssetValue(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	if _, ok := s.engine.FeedIDFor(asset); !ok {
		s.badRequest(w, fmt.Sprintf("asset %s not registered", asset))
		return
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	usd, err := s.engine.UsdValue(r.Context(), asset, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset,
		"amount":    amount.Dec(),
		"usd_value": usd.Dec(),
	})
}

// handleAssetAmount is the inverse conversion: wad USD to asset units.
func (s *Server) handleAssetAmount(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	if _, ok := s.engine.FeedIDFor(asset); !ok {
		s.badRequest(w, fmt.Sprintf("asset %s not registered", asset))
		return
	}
	usd, err := parseAmount(r.URL.Query().Get("usd"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	amount, err := s.engine.AssetAmountFromUsd(r.Context(), asset, usd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset,
		"usd_value": usd.Dec(),
		"amount":    amount.Dec(),
	})
}

// handleSimulateHealth evaluates the health formula for caller-supplied
// debt and collateral value, touching no account state.
func (s *Server) handleSimulateHealth(w http.ResponseWriter, r *http.Request) {
	debt, err := parseAmount(r.URL.Query().Get("debt"))
	if err != nil {
		s.badRequest(w, fmt.Sprintf("debt: %v", err))
		return
	}
	collateralUsd, err := parseAmount(r.URL.Query().Get("collateral_usd"))
	if err != nil {
		s.badRequest(w, fmt.Sprintf("collateral_usd: %v", err))
		return
	}

	hf := s.engine.SimulateHealthFactor(debt, collateralUsd)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"debt":           debt.Dec(),
		"collateral_usd": collateralUsd.Dec(),
		"health_factor":  hf.Dec(),
		"liquidatable":   hf.Lt(s.engine.Params().MinHealthFactor),
	})
}

type accountResponse struct {
	User               uuid.UUID `json:"user"`
	Debt               string    `json:"debt"`
	CollateralValueUsd string    `json:"collateral_value_usd"`
	HealthFactor       string    `json:"health_factor"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	user, err := pathUUID(r, "user")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	snap, err := s.engine.Snapshot(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse{
		User:               snap.User,
		Debt:               snap.Debt.Dec(),
		CollateralValueUsd: snap.CollateralValueUsd.Dec(),
		HealthFactor:       snap.HealthFactor.Dec(),
	})
}

func (s *Server) handleAccountHealth(w http.ResponseWriter, r *http.Request) {
	user, err := pathUUID(r, "user")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	hf, err := s.engine.HealthFactorOf(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	min := s.engine.Params().MinHealthFactor
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":          user,
		"health_factor": hf.Dec(),
		"liquidatable":  hf.Lt(min),
	})
}

func (s *Server) handleCollateral(w http.ResponseWriter, r *http.Request) {
	user, err := pathUUID(r, "user")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	asset := mux.Vars(r)["asset"]
	if _, ok := s.engine.FeedIDFor(asset); !ok {
		s.badRequest(w, fmt.Sprintf("asset %s not registered", asset))
		return
	}

	balance := s.engine.CollateralBalance(user, asset)
	usd, err := s.engine.UsdValue(r.Context(), asset, balance)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":      user,
		"asset":     asset,
		"amount":    balance.Dec(),
		"usd_value": usd.Dec(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history not available"})
		return
	}
	user, err := pathUUID(r, "user")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	filter := query.HistoryFilter{EventType: r.URL.Query().Get("type")}
	if after := r.URL.Query().Get("after"); after != "" {
		filter.AfterSequence, err = strconv.ParseInt(after, 10, 64)
		if err != nil {
			s.badRequest(w, fmt.Sprintf("invalid after: %v", err))
			return
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		filter.Limit, err = strconv.Atoi(limit)
		if err != nil {
			s.badRequest(w, fmt.Sprintf("invalid limit: %v", err))
			return
		}
	}

	records, err := s.history.UserHistory(r.Context(), user, filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleOperationEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history not available"})
		return
	}
	opID, err := pathUUID(r, "id")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	records, err := s.history.OperationEvents(r.Context(), opID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRecentLiquidations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history not available"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, fmt.Sprintf("invalid limit: %v", err))
			return
		}
	}

	records, err := s.history.RecentLiquidations(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// --- position operations ---

type collateralRequest struct {
	User   uuid.UUID `json:"user"`
	Asset  string    `json:"asset"`
	Amount string    `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.engine.Deposit(r.Context(), req.User, req.Asset, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.engine.Redeem(r.Context(), req.User, req.Asset, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

type debtRequest struct {
	User   uuid.UUID `json:"user"`
	Amount string    `json:"amount"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.engine.Mint(r.Context(), req.User, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.engine.Burn(r.Context(), req.User, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

type depositAndMintRequest struct {
	User             uuid.UUID `json:"user"`
	Asset            string    `json:"asset"`
	CollateralAmount string    `json:"collateral_amount"`
	DebtAmount       string    `json:"debt_amount"`
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	var req depositAndMintRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	collateral, err := parseAmount(req.CollateralAmount)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	debt, err := parseAmount(req.DebtAmount)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.engine.DepositAndMint(r.Context(), req.User, req.Asset, collateral, debt); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

type burnAndRedeemRequest struct {
	User             uuid.UUID `json:"user"`
	Asset            string    `json:"asset"`
	DebtAmount       string    `json:"debt_amount"`
	CollateralAmount string    `json:"collateral_amount"`
}

func (s *Server) handleBurnAndRedeem(w http.ResponseWriter, r *http.Request) {
	var req burnAndRedeemRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	debt, err := parseAmount(req.DebtAmount)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	collateral, err := parseAmount(req.CollateralAmount)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.engine.BurnAndRedeem(r.Context(), req.User, req.Asset, debt, collateral); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

type liquidateRequest struct {
	Liquidator      uuid.UUID `json:"liquidator"`
	Target          uuid.UUID `json:"target"`
	CollateralAsset string    `json:"collateral_asset"`
	DebtToCover     string    `json:"debt_to_cover"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	debtToCover, err := parseAmount(req.DebtToCover)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.engine.Liquidate(r.Context(), req.Liquidator, req.CollateralAsset, req.Target, debtToCover); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}
