package funding

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfund/portal-backend/internal/chain"
	"crowdfund/portal-backend/internal/projects"
)

// Gateway is the on-chain side of the workflow. *chain.Client satisfies it.
type Gateway interface {
	Connected() bool
	PrepareProjectCreation(ctx context.Context, call chain.ProjectCall) (*chain.SignedTx, error)
	Broadcast(ctx context.Context, stx *chain.SignedTx) (*chain.Receipt, error)
	Discard(stx *chain.SignedTx)
	SubmitContribution(ctx context.Context, projectKey string, amountWei *big.Int) (*chain.Receipt, error)
	TransactionState(ctx context.Context, txHash string) (chain.TxState, error)
	Rebroadcast(ctx context.Context, raw []byte) error
}

// ImageResolver returns a usable image reference for a project. It never fails;
// it degrades to a placeholder. Discard removes what Resolve stored for a
// project that was not created.
type ImageResolver interface {
	Resolve(ctx context.Context, key, description string) string
	Discard(ctx context.Context, key, imageURL string)
}

// Outcome is the result of a completed campaign launch
type Outcome struct {
	Project *projects.Project `json:"project"`
	Receipt *chain.Receipt    `json:"receipt"`
}

// Workflow coordinates the chain and the record store. The chain is written
// first; a record only exists for a transaction the node accepted.
type Workflow struct {
	gateway  Gateway
	registry projects.Service
	journal  Journal
	guard    Guard
	images   ImageResolver
	logger   *zap.Logger
	now      func() time.Time
}

func NewWorkflow(gateway Gateway, registry projects.Service, journal Journal, guard Guard, images ImageResolver, logger *zap.Logger) *Workflow {
	return &Workflow{
		gateway:  gateway,
		registry: registry,
		journal:  journal,
		guard:    guard,
		images:   images,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// validateCampaign checks the inputs a contract call needs. It makes no
// network call.
func (w *Workflow) validateCampaign(req projects.CreateProjectRequest) error {
	verr := &projects.ValidationError{}
	if strings.TrimSpace(req.Title) == "" {
		verr.Add("title", "title is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		verr.Add("description", "description is required")
	}
	if strings.TrimSpace(req.CreatorName) == "" {
		verr.Add("creatorName", "creator name is required")
	}
	if req.FundingGoal == nil || !(*req.FundingGoal > 0) {
		verr.Add("fundingGoal", "funding goal must be a positive number")
	} else if _, err := chain.FloatToWei(*req.FundingGoal); err != nil {
		verr.Add("fundingGoal", err.Error())
	}
	if req.Deadline <= 0 {
		verr.Add("deadline", "deadline is required")
	} else if req.Deadline <= w.now().Unix() {
		verr.Add("deadline", "deadline must be in the future")
	}
	if _, ok := projects.ParseCategory(req.Category); !ok {
		verr.Add("category", "unknown category")
	}
	return verr.OrNil()
}

// CreateProject launches a campaign: sign, journal, broadcast, then store.
func (w *Workflow) CreateProject(ctx context.Context, req projects.CreateProjectRequest, idempotencyKey string) (*Outcome, error) {
	if err := w.validateCampaign(req); err != nil {
		return nil, err
	}
	if !w.gateway.Connected() {
		return nil, &chain.NotConnectedError{}
	}

	if idempotencyKey != "" {
		if err := w.guard.Acquire(ctx, idempotencyKey); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	var generatedImage string
	// abandon undoes the side effects of a launch that definitely did not
	// reach the chain.
	abandon := func() {
		if generatedImage != "" {
			w.images.Discard(context.WithoutCancel(ctx), id, generatedImage)
		}
		if idempotencyKey == "" {
			return
		}
		if err := w.guard.Release(context.WithoutCancel(ctx), idempotencyKey); err != nil {
			w.logger.Warn("failed to release submission guard", zap.String("key", idempotencyKey), zap.Error(err))
		}
	}

	if strings.TrimSpace(req.ImageURL) == "" {
		generatedImage = w.images.Resolve(ctx, id, req.Description)
		req.ImageURL = generatedImage
	}

	record, err := projects.NewRecord(req, w.now())
	if err != nil {
		abandon()
		return nil, err
	}
	record.ID = id

	goalWei, _ := chain.FloatToWei(*record.FundingGoal)
	stx, err := w.gateway.PrepareProjectCreation(ctx, chain.ProjectCall{
		Key:            record.ID,
		ImageURL:       record.ImageURL,
		Title:          record.Title,
		Description:    record.Description,
		FundingGoalWei: goalWei,
		Deadline:       record.Deadline,
		WebsiteURL:     record.WebsiteURL,
		Category:       string(record.Category),
	})
	if err != nil {
		abandon()
		return nil, err
	}

	record.TxHash = stx.Hash()
	record.ChainStatus = projects.ChainStatusSubmitted

	entry := JournalEntry{TxHash: record.TxHash, Project: record, CreatedAt: w.now()}
	if raw, err := stx.Raw(); err == nil {
		entry.RawTx = hex.EncodeToString(raw)
	}
	if err := w.journal.Record(ctx, entry); err != nil {
		w.gateway.Discard(stx)
		abandon()
		return nil, err
	}

	receipt, err := w.gateway.Broadcast(ctx, stx)
	if err != nil {
		var netErr *chain.NetworkError
		if errors.As(err, &netErr) {
			// Outcome unknown. The journal entry and the guard stay so the
			// reconciler can settle it.
			w.logger.Warn("campaign broadcast outcome unknown",
				zap.String("project_id", record.ID),
				zap.String("tx_hash", record.TxHash),
				zap.Error(err),
			)
			return nil, err
		}
		w.dropJournal(ctx, record.TxHash)
		abandon()
		return nil, err
	}

	w.completeGuard(ctx, idempotencyKey, record.TxHash)

	if err := w.registry.Persist(ctx, record); err != nil {
		w.logger.Error("campaign on chain but record not stored",
			zap.String("project_id", record.ID),
			zap.String("tx_hash", record.TxHash),
			zap.Error(err),
		)
		return nil, &PartialFailureError{
			ChainCompleted: true,
			TxHash:         record.TxHash,
			ProjectID:      record.ID,
			Err:            err,
		}
	}

	w.dropJournal(ctx, record.TxHash)

	w.logger.Info("campaign launched",
		zap.String("project_id", record.ID),
		zap.String("tx_hash", record.TxHash),
	)
	return &Outcome{Project: record, Receipt: receipt}, nil
}

// Contribute sends amountWei to a project's on-chain campaign. The record
// store is not touched.
func (w *Workflow) Contribute(ctx context.Context, projectID string, amountWei *big.Int, idempotencyKey string) (*chain.Receipt, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, &projects.ValidationError{Fields: map[string]string{"projectId": "project id is required"}}
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return nil, chain.ErrInvalidAmount
	}
	if !w.gateway.Connected() {
		return nil, &chain.NotConnectedError{}
	}

	if idempotencyKey != "" {
		if err := w.guard.Acquire(ctx, idempotencyKey); err != nil {
			return nil, err
		}
	}

	receipt, err := w.gateway.SubmitContribution(ctx, projectID, amountWei)
	if err != nil {
		var netErr *chain.NetworkError
		if idempotencyKey != "" && !errors.As(err, &netErr) {
			if relErr := w.guard.Release(context.WithoutCancel(ctx), idempotencyKey); relErr != nil {
				w.logger.Warn("failed to release submission guard", zap.String("key", idempotencyKey), zap.Error(relErr))
			}
		}
		return nil, err
	}

	w.completeGuard(ctx, idempotencyKey, receipt.TxHash)
	w.logger.Info("contribution submitted",
		zap.String("project_id", projectID),
		zap.String("tx_hash", receipt.TxHash),
		zap.String("value_wei", receipt.ValueWei),
		zap.String("value_eth", chain.FormatEther(amountWei)),
	)
	return receipt, nil
}

func (w *Workflow) dropJournal(ctx context.Context, txHash string) {
	if err := w.journal.Remove(context.WithoutCancel(ctx), txHash); err != nil {
		w.logger.Warn("failed to drop journal entry", zap.String("tx_hash", txHash), zap.Error(err))
	}
}

func (w *Workflow) completeGuard(ctx context.Context, key, txHash string) {
	if key == "" {
		return
	}
	if err := w.guard.Complete(context.WithoutCancel(ctx), key, txHash); err != nil {
		w.logger.Warn("failed to complete submission guard", zap.String("key", key), zap.Error(err))
	}
}
