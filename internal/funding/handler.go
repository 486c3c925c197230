package funding

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crowdfund/portal-backend/internal/chain"
	"crowdfund/portal-backend/internal/projects"
)

const idempotencyHeader = "Idempotency-Key"

type Handler struct {
	workflow *Workflow
	logger   *zap.Logger
}

func NewHandler(workflow *Workflow, logger *zap.Logger) *Handler {
	return &Handler{workflow: workflow, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	campaigns := rg.Group("/campaigns")
	{
		campaigns.POST("", h.Launch)
		campaigns.POST("/:id/contributions", h.Contribute)
	}
}

// ContributionRequest accepts either a decimal ether amount or an integer wei amount
type ContributionRequest struct {
	Amount    string `json:"amount"`
	AmountWei string `json:"amountWei"`
}

func (h *Handler) Launch(c *gin.Context) {
	var req projects.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	outcome, err := h.workflow.CreateProject(c.Request.Context(), req, c.GetHeader(idempotencyHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, outcome)
}

func (h *Handler) Contribute(c *gin.Context) {
	var req ContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	amount, err := req.wei()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.workflow.Contribute(c.Request.Context(), c.Param("id"), amount, c.GetHeader(idempotencyHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

func (r ContributionRequest) wei() (*big.Int, error) {
	switch {
	case r.AmountWei != "":
		return chain.ParseWei(r.AmountWei)
	case r.Amount != "":
		return chain.ParseEther(r.Amount)
	default:
		return nil, errors.New("amount is required")
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var partial *PartialFailureError
	var dup *DuplicateSubmissionError
	var notConnected *chain.NotConnectedError
	var revert *chain.ContractRevertError
	var netErr *chain.NetworkError
	var signErr *chain.SigningError

	switch {
	case errors.As(err, &partial):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":           "campaign is on chain but the record was not stored",
			"chain_completed": partial.ChainCompleted,
			"tx_hash":         partial.TxHash,
			"project_id":      partial.ProjectID,
		})
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{"error": dup.Error(), "tx_hash": dup.TxHash})
	case errors.Is(err, chain.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notConnected):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": notConnected.Error()})
	case errors.As(err, &revert):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": revert.Error()})
	case errors.As(err, &netErr):
		h.logger.Warn("chain unreachable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "blockchain node unavailable"})
	case errors.As(err, &signErr):
		h.logger.Error("signing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign transaction"})
	case projects.WriteError(c, h.logger, err):
	default:
		h.logger.Error("campaign request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
