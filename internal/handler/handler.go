package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/blockchain"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/repository"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/service"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/logger"
)

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type SyncHandler struct {
	orch *service.Orchestrator
}

func NewSyncHandler(orch *service.Orchestrator) *SyncHandler {
	return &SyncHandler{orch: orch}
}

// TriggerSync 手动触发一次完整同步，与定时任务走同一条流水线
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result := h.orch.RunFullSync(r.Context())
	status := http.StatusOK
	if result.Error == "sync already running" {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

type StatusHandler struct {
	metaRepo  *repository.MetadataRepository
	eventRepo *repository.SwapEventRepository
	orch      *service.Orchestrator
}

func NewStatusHandler(metaRepo *repository.MetadataRepository, eventRepo *repository.SwapEventRepository, orch *service.Orchestrator) *StatusHandler {
	return &StatusHandler{metaRepo: metaRepo, eventRepo: eventRepo, orch: orch}
}

// GetStatus 返回运行元数据和最近的事件
// 部分查询失败时降级返回已拿到的数据，不给调用方一个空错误页
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	response := map[string]interface{}{
		"is_running": h.orch.IsRunning(),
	}

	meta, err := h.metaRepo.Get(ctx)
	if err != nil {
		logger.Error("Failed to load run metadata:", err)
	}
	if meta == nil {
		meta = &models.RunMetadata{}
	}
	response["metadata"] = meta

	events, err := h.eventRepo.GetRecent(ctx, 10)
	if err != nil {
		logger.Error("Failed to load recent events:", err)
		events = []models.SwapEvent{}
	}
	response["recent_events"] = events

	if count, err := h.eventRepo.CountNeedsReview(ctx); err == nil {
		response["needs_review_count"] = count
	}

	writeJSON(w, http.StatusOK, response)
}

type BalanceHandler struct {
	balanceRepo *repository.BalanceRepository
}

func NewBalanceHandler(balanceRepo *repository.BalanceRepository) *BalanceHandler {
	return &BalanceHandler{balanceRepo: balanceRepo}
}

func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		writeError(w, http.StatusBadRequest, "invalid path format, expected /api/balance/{address}")
		return
	}

	address := strings.ToLower(pathParts[2])
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	balance, err := h.balanceRepo.GetByUser(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get balance: "+err.Error())
		return
	}

	var pending int64
	var updatedAt time.Time
	if balance != nil {
		pending = balance.PendingJXP
		updatedAt = balance.UpdatedAt
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":     address,
		"pending_jxp": pending,
		"updated_at":  updatedAt,
	})
}

func (h *BalanceHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	offset := (page - 1) * pageSize
	ctx := r.Context()

	balances, err := h.balanceRepo.List(ctx, offset, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list balances: "+err.Error())
		return
	}

	total, err := h.balanceRepo.Count(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count balances: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":    balances,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

type EventsHandler struct {
	eventRepo *repository.SwapEventRepository
}

func NewEventsHandler(eventRepo *repository.SwapEventRepository) *EventsHandler {
	return &EventsHandler{eventRepo: eventRepo}
}

func (h *EventsHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	events, err := h.eventRepo.GetRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get events: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": events,
		"count": len(events),
	})
}

type headReader interface {
	LatestBlockNumber(ctx context.Context) (int64, error)
}

type AdminHandler struct {
	cursorRepo  *repository.CursorRepository
	balanceRepo *repository.BalanceRepository
	chain       headReader
	settlement  *blockchain.Settlement
	pointsSvc   *service.PointsService
}

func NewAdminHandler(
	cursorRepo *repository.CursorRepository,
	balanceRepo *repository.BalanceRepository,
	chain headReader,
	settlement *blockchain.Settlement,
	pointsSvc *service.PointsService,
) *AdminHandler {
	return &AdminHandler{
		cursorRepo:  cursorRepo,
		balanceRepo: balanceRepo,
		chain:       chain,
		settlement:  settlement,
		pointsSvc:   pointsSvc,
	}
}

type cursorResetRequest struct {
	Source     string `json:"source"`
	Block      *int64 `json:"block"`
	BlocksBack *int64 `json:"blocks_back"`
}

// ResetCursor 把某事件源的扫描游标重置到指定高度或距链头N个区块
func (h *AdminHandler) ResetCursor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req cursorResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Source != string(models.SourceAMM) && req.Source != string(models.SourceNative) {
		writeError(w, http.StatusBadRequest, "source must be 'amm' or 'native'")
		return
	}

	ctx := r.Context()
	var target int64

	switch {
	case req.Block != nil:
		target = *req.Block
	case req.BlocksBack != nil:
		head, err := h.chain.LatestBlockNumber(ctx)
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to get chain head: "+err.Error())
			return
		}
		target = head - *req.BlocksBack
	default:
		writeError(w, http.StatusBadRequest, "either block or blocks_back is required")
		return
	}

	if target < 0 {
		target = 0
	}

	if err := h.cursorRepo.Reset(ctx, req.Source, target); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset cursor: "+err.Error())
		return
	}

	logger.WithFields(map[string]interface{}{
		"source": req.Source,
		"block":  target,
	}).Info("Scan cursor reset")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"source": req.Source,
		"block":  target,
	})
}

type creditRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// CreditUser 运维手动给单个用户补发JXP
func (h *AdminHandler) CreditUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "address and positive amount are required")
		return
	}

	result := h.settlement.CreditUser(r.Context(), req.Address, req.Amount)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

type reconcileRequest struct {
	TxHash string `json:"tx_hash"`
}

// ReconcileSettlement 人工对账完成后关闭结算对账记录并补清涉及用户的余额
func (h *AdminHandler) ReconcileSettlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "tx_hash is required")
		return
	}

	if err := h.balanceRepo.ResolveHold(r.Context(), req.TxHash); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve hold: "+err.Error())
		return
	}

	logger.WithFields(map[string]interface{}{
		"tx_hash": req.TxHash,
	}).Info("Settlement hold resolved")

	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": req.TxHash})
}

type reviewResolveRequest struct {
	TxHash    string `json:"tx_hash"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

// ResolveReview 为待审核事件写入人工核对后的金额
func (h *AdminHandler) ResolveReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req reviewResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "tx_hash is required")
		return
	}

	amountIn, ok1 := new(big.Int).SetString(req.AmountIn, 10)
	amountOut, ok2 := new(big.Int).SetString(req.AmountOut, 10)
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "amounts must be decimal integer strings")
		return
	}

	if err := h.pointsSvc.ResolveReview(r.Context(), strings.ToLower(req.TxHash), amountIn, amountOut); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": strings.ToLower(req.TxHash)})
}
