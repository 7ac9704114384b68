package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"creditguild/internal/client/indexer"
	"creditguild/internal/config"
	"creditguild/internal/service"
	"creditguild/internal/state"
)

type MarketHandler struct {
	Sync    *service.SnapshotSyncService
	Prices  *service.PriceFeedService
	Curves  *service.CurveService
	State   *state.Store
	Markets map[string]config.MarketConfig
	Logger  *zap.Logger

	// SyncTimeout bounds POST /sync when the caller sets no timeout.
	SyncTimeout time.Duration
}

func (h *MarketHandler) Register(r *gin.Engine) {
	group := r.Group("/api/markets")
	group.GET("", h.listMarkets)
	group.GET("/:marketId/snapshots/:resource", h.getSnapshot)
	group.GET("/:marketId/auctions/:auctionId/curve", h.getCurve)
	group.POST("/:marketId/sync", h.sync)
	group.GET("/:marketId/sync-state", h.listSyncState)
}

type syncRequest struct {
	Resource    string `json:"resource" binding:"required"`
	TargetBlock uint64 `json:"target_block"`
	TxHash      string `json:"tx_hash"`
}

// @Summary List configured markets
// @Tags markets
// @Success 200 {object} apiResponse
// @Router /api/markets [get]
func (h *MarketHandler) listMarkets(c *gin.Context) {
	ids := make([]string, 0, len(h.Markets))
	for id := range h.Markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		item := gin.H{"id": id, "peg_token_address": h.Markets[id].PegTokenAddress}
		if h.State != nil {
			m := h.State.Market(id)
			versions := gin.H{}
			for _, r := range indexer.Resources() {
				versions[string(r)] = m.VersionOf(r)
			}
			versions[state.ResourcePrices] = m.Prices.Version()
			item["versions"] = versions
		}
		items = append(items, item)
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Current snapshot of a market resource
// @Tags markets
// @Param marketId path string true "market id"
// @Param resource path string true "auctions|lendingterms|loans|proposals|prices"
// @Param fresh query bool false "refresh from the indexer before answering"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/markets/{marketId}/snapshots/{resource} [get]
func (h *MarketHandler) getSnapshot(c *gin.Context) {
	marketID, ok := h.market(c)
	if !ok {
		return
	}
	raw := strings.ToLower(strings.TrimSpace(c.Param("resource")))
	fresh := boolQueryDefault(c, "fresh", false)
	m := h.State.Market(marketID)

	if raw == state.ResourcePrices {
		if fresh && h.Prices != nil {
			if _, err := h.Prices.Refresh(c.Request.Context(), marketID); err != nil {
				h.fail(c, "price refresh failed", err)
				return
			}
		}
		writeSlot(c, m.Prices)
		return
	}

	resource, err := indexer.ParseResource(raw)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if fresh && h.Sync != nil {
		if _, err := h.Sync.Refresh(c.Request.Context(), marketID, resource); err != nil {
			h.fail(c, "refresh failed", err)
			return
		}
	}
	switch resource {
	case indexer.ResourceAuctions:
		writeSlot(c, m.Auctions)
	case indexer.ResourceLendingTerms:
		writeSlot(c, m.LendingTerms)
	case indexer.ResourceLoans:
		writeSlot(c, m.Loans)
	case indexer.ResourceProposals:
		writeSlot(c, m.Proposals)
	}
}

func writeSlot[T any](c *gin.Context, slot *state.Slot[T]) {
	value, version, ok := slot.Get()
	if !ok {
		Error(c, http.StatusNotFound, "snapshot not loaded", nil)
		return
	}
	Ok(c, value, map[string]any{
		"version":    version,
		"updated_at": slot.UpdatedAt(),
	})
}

// @Summary Auction pricing curve
// @Tags markets
// @Param marketId path string true "market id"
// @Param auctionId path string true "loan id of the auctioned loan"
// @Param samples query int false "sample count override"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Failure 422 {object} apiResponse
// @Router /api/markets/{marketId}/auctions/{auctionId}/curve [get]
func (h *MarketHandler) getCurve(c *gin.Context) {
	marketID, ok := h.market(c)
	if !ok {
		return
	}
	if h.Curves == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	samples := intQuery(c, "samples", 0)
	if samples > 5000 {
		samples = 5000
	}
	view, err := h.Curves.Curve(c.Request.Context(), marketID, c.Param("auctionId"), samples)
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	Ok(c, view, nil)
}

// @Summary Wait for the indexer to catch up, then commit
// @Description Blocks until the resource snapshot has processed target_block, or the block tx_hash was mined in.
// @Tags markets
// @Param marketId path string true "market id"
// @Param timeout query string false "wait bound, e.g. 90s"
// @Param body body syncRequest true "sync request"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 504 {object} apiResponse
// @Router /api/markets/{marketId}/sync [post]
func (h *MarketHandler) sync(c *gin.Context) {
	marketID, ok := h.market(c)
	if !ok {
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", map[string]any{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	timeout := durationQuery(c, "timeout")
	if timeout <= 0 {
		timeout = h.SyncTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if strings.EqualFold(strings.TrimSpace(req.Resource), state.ResourcePrices) {
		if h.Prices == nil {
			Error(c, http.StatusInternalServerError, "service unavailable", nil)
			return
		}
		quotes, err := h.Prices.Refresh(ctx, marketID)
		if err != nil {
			h.fail(c, "price refresh failed", err)
			return
		}
		Ok(c, gin.H{"market_id": marketID, "resource": state.ResourcePrices, "quotes": len(quotes)}, nil)
		return
	}

	resource, err := indexer.ParseResource(req.Resource)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if h.Sync == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}

	var result service.SyncResult
	if strings.TrimSpace(req.TxHash) != "" {
		result, err = h.Sync.SyncAfterTx(ctx, marketID, resource, req.TxHash)
	} else {
		result, err = h.Sync.SyncAfterBlock(ctx, marketID, resource, req.TargetBlock)
	}
	if err != nil {
		h.fail(c, "sync failed", err)
		return
	}
	Ok(c, result, nil)
}

// @Summary Persisted sync bookkeeping for a market
// @Tags markets
// @Param marketId path string true "market id"
// @Success 200 {object} apiResponse
// @Router /api/markets/{marketId}/sync-state [get]
func (h *MarketHandler) listSyncState(c *gin.Context) {
	marketID, ok := h.market(c)
	if !ok {
		return
	}
	if h.Sync == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	items, err := h.Sync.ListSyncStates(c.Request.Context(), marketID)
	if err != nil {
		h.fail(c, "list sync state failed", err)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

func (h *MarketHandler) market(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("marketId"))
	if _, ok := h.Markets[id]; !ok {
		Error(c, http.StatusNotFound, "unknown market", map[string]any{"market_id": id})
		return "", false
	}
	if h.State == nil {
		Error(c, http.StatusInternalServerError, "state unavailable", nil)
		return "", false
	}
	return id, true
}

func (h *MarketHandler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if h.Logger != nil && status >= http.StatusInternalServerError {
		h.Logger.Warn(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}
	Error(c, status, err.Error(), nil)
}
