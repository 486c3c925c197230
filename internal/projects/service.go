package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfund/portal-backend/pkg/workflows"
)

// Service is the project registry
type Service interface {
	CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	GetProjectByTitle(ctx context.Context, title string) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	Persist(ctx context.Context, project *Project) error
	ListByChainStatus(ctx context.Context, status ChainStatus, limit int) ([]*Project, error)
	UpdateChainStatus(ctx context.Context, id string, from, to ChainStatus) (bool, error)
}

type service struct {
	repo         Repository
	logger       *zap.Logger
	opTimeout    time.Duration
	stateMachine *workflows.StateMachine
	now          func() time.Time
}

func NewService(repo Repository, opTimeout time.Duration, logger *zap.Logger) Service {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &service{
		repo:         repo,
		logger:       logger,
		opTimeout:    opTimeout,
		stateMachine: workflows.NewChainStatusMachine(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NewRecord builds an unsaved record from a request. The caller decides the
// chain status; the record gets a fresh ID and timestamps.
func NewRecord(req CreateProjectRequest, now time.Time) (*Project, error) {
	// An unknown category is left in place for Validate to report.
	category, _ := ParseCategory(req.Category)

	p := &Project{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		ImageURL:     strings.TrimSpace(req.ImageURL),
		FundingGoal:  req.FundingGoal,
		Deadline:     req.Deadline,
		CreatorName:  strings.TrimSpace(req.CreatorName),
		Category:     category,
		WebsiteURL:   strings.TrimSpace(req.WebsiteURL),
		Contributors: NormalizeContributors(req.Contributors),
		ChainStatus:  ChainStatusNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	project, err := NewRecord(req, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.Persist(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("project created",
		zap.String("project_id", project.ID),
		zap.String("title", project.Title),
	)
	return project, nil
}

// Persist stores a record built elsewhere. The insert is retried once; a
// duplicate ID means an earlier attempt already landed and counts as success.
func (s *service) Persist(ctx context.Context, project *Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = s.now()
	}
	if project.UpdatedAt.IsZero() {
		project.UpdatedAt = project.CreatedAt
	}
	if project.ChainStatus == "" {
		project.ChainStatus = ChainStatusNone
	}
	if project.Contributors == nil {
		project.Contributors = []string{}
	}
	if err := project.Validate(); err != nil {
		return err
	}

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		err = s.insert(ctx, project)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDuplicateID) {
			s.logger.Info("project already stored", zap.String("project_id", project.ID))
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		s.logger.Warn("project insert failed",
			zap.String("project_id", project.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return &PersistenceError{Op: "insert", Err: err}
}

func (s *service) insert(ctx context.Context, project *Project) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.repo.Insert(ctx, project)
}

func (s *service) ListProjects(ctx context.Context) ([]*Project, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	projects, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return projects, nil
}

// GetProjectByTitle returns the oldest record with the exact title
func (s *service) GetProjectByTitle(ctx context.Context, title string) (*Project, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	matches, err := s.repo.FindByTitle(ctx, title, 2)
	if err != nil {
		return nil, &PersistenceError{Op: "find by title", Err: err}
	}
	if len(matches) == 0 {
		return nil, &NotFoundError{Key: "title", Value: title}
	}
	if len(matches) > 1 {
		s.logger.Warn("title matches several projects, returning the oldest",
			zap.String("title", title),
			zap.String("project_id", matches[0].ID),
		)
	}
	return matches[0], nil
}

func (s *service) GetProject(ctx context.Context, id string) (*Project, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "find by id", Err: err}
	}
	if project == nil {
		return nil, &NotFoundError{Key: "id", Value: id}
	}
	return project, nil
}

func (s *service) ListByChainStatus(ctx context.Context, status ChainStatus, limit int) ([]*Project, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	projects, err := s.repo.FindByChainStatus(ctx, status, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list by chain status", Err: err}
	}
	return projects, nil
}

// UpdateChainStatus moves a record between chain statuses. It reports false
// when the record is no longer in the expected status.
func (s *service) UpdateChainStatus(ctx context.Context, id string, from, to ChainStatus) (bool, error) {
	if !s.stateMachine.CanTransition(string(from), string(to)) {
		allowed := s.stateMachine.GetAllowedTransitions(string(from))
		if len(allowed) == 0 {
			allowed = []string{"none"}
		}
		return false, fmt.Errorf("%w: %s to %s (allowed from %s: %s)", ErrInvalidTransition, from, to, from, strings.Join(allowed, ", "))
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	updated, err := s.repo.UpdateChainStatus(ctx, id, from, to)
	if err != nil {
		return false, &PersistenceError{Op: "update chain status", Err: err}
	}
	if updated {
		s.logger.Info("project chain status updated",
			zap.String("project_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	}
	return updated, nil
}
