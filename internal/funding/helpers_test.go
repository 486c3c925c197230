package funding

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"crowdfund/portal-backend/internal/chain"
	"crowdfund/portal-backend/internal/projects"
)

// MockGateway is a mock implementation of Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Connected() bool {
	return m.Called().Bool(0)
}

func (m *MockGateway) PrepareProjectCreation(ctx context.Context, call chain.ProjectCall) (*chain.SignedTx, error) {
	args := m.Called(ctx, call)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.SignedTx), args.Error(1)
}

func (m *MockGateway) Broadcast(ctx context.Context, stx *chain.SignedTx) (*chain.Receipt, error) {
	args := m.Called(ctx, stx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.Receipt), args.Error(1)
}

func (m *MockGateway) Discard(stx *chain.SignedTx) {
	m.Called(stx)
}

func (m *MockGateway) SubmitContribution(ctx context.Context, projectKey string, amountWei *big.Int) (*chain.Receipt, error) {
	args := m.Called(ctx, projectKey, amountWei)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.Receipt), args.Error(1)
}

func (m *MockGateway) TransactionState(ctx context.Context, txHash string) (chain.TxState, error) {
	args := m.Called(ctx, txHash)
	return args.Get(0).(chain.TxState), args.Error(1)
}

func (m *MockGateway) Rebroadcast(ctx context.Context, raw []byte) error {
	return m.Called(ctx, raw).Error(0)
}

// memRepository is an in-memory projects.Repository
type memRepository struct {
	mu          sync.Mutex
	items       map[string]*projects.Project
	failInserts int
}

func newMemRepository() *memRepository {
	return &memRepository{items: map[string]*projects.Project{}}
}

func (r *memRepository) Insert(ctx context.Context, p *projects.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInserts > 0 {
		r.failInserts--
		return errors.New("server selection timeout")
	}
	if _, ok := r.items[p.ID]; ok {
		return projects.ErrDuplicateID
	}
	cp := *p
	r.items[p.ID] = &cp
	return nil
}

func (r *memRepository) FindAll(ctx context.Context) ([]*projects.Project, error) {
	return r.filter(func(*projects.Project) bool { return true }, 0), nil
}

func (r *memRepository) FindByTitle(ctx context.Context, title string, limit int) ([]*projects.Project, error) {
	return r.filter(func(p *projects.Project) bool { return p.Title == title }, limit), nil
}

func (r *memRepository) FindByID(ctx context.Context, id string) (*projects.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.items[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepository) FindByChainStatus(ctx context.Context, status projects.ChainStatus, limit int) ([]*projects.Project, error) {
	return r.filter(func(p *projects.Project) bool { return p.ChainStatus == status }, limit), nil
}

func (r *memRepository) UpdateChainStatus(ctx context.Context, id string, from, to projects.ChainStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok || p.ChainStatus != from {
		return false, nil
	}
	p.ChainStatus = to
	return true, nil
}

func (r *memRepository) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}

func (r *memRepository) filter(keep func(*projects.Project) bool, limit int) []*projects.Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*projects.Project, 0)
	for _, p := range r.items {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// recordingImages resolves every project to one URL and records discards
type recordingImages struct {
	mu        sync.Mutex
	url       string
	discarded []string
}

func (r *recordingImages) Resolve(ctx context.Context, key, description string) string { return r.url }

func (r *recordingImages) Discard(ctx context.Context, key, imageURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded = append(r.discarded, imageURL)
}

func (r *recordingImages) Discarded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.discarded...)
}

type fixture struct {
	gateway  *MockGateway
	repo     *memRepository
	registry projects.Service
	journal  Journal
	guard    Guard
	images   *recordingImages
	redis    *miniredis.Miniredis
	workflow *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		gateway: new(MockGateway),
		repo:    newMemRepository(),
		journal: NewRedisJournal(client),
		guard:   NewRedisGuard(client, time.Hour),
		images:  &recordingImages{url: "https://img.example.com/placeholder.png"},
		redis:   mr,
	}
	f.registry = projects.NewService(f.repo, time.Second, zap.NewNop())
	f.workflow = NewWorkflow(f.gateway, f.registry, f.journal, f.guard, f.images, zap.NewNop())
	return f
}

func signedTx(nonce uint64) *chain.SignedTx {
	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, To: &to, Gas: 21000, GasPrice: big.NewInt(1), Value: new(big.Int)})
	return &chain.SignedTx{Tx: tx, Method: chain.MethodCreateProject}
}

func receiptFor(stx *chain.SignedTx) *chain.Receipt {
	return &chain.Receipt{TxHash: stx.Hash(), Method: stx.Method, ValueWei: "0", SubmittedAt: time.Now()}
}

func goal(v float64) *float64 { return &v }

func campaignRequest() projects.CreateProjectRequest {
	return projects.CreateProjectRequest{
		Title:       "Community Garden",
		Description: "Raised beds for the neighbourhood",
		FundingGoal: goal(1.5),
		Deadline:    time.Now().Add(14 * 24 * time.Hour).Unix(),
		CreatorName: "Sam",
		Category:    "community",
	}
}
