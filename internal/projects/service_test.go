package projects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Insert(ctx context.Context, project *Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockRepository) FindAll(ctx context.Context) ([]*Project, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Project), args.Error(1)
}

func (m *MockRepository) FindByTitle(ctx context.Context, title string, limit int) ([]*Project, error) {
	args := m.Called(ctx, title, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Project), args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id string) (*Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Project), args.Error(1)
}

func (m *MockRepository) FindByChainStatus(ctx context.Context, status ChainStatus, limit int) ([]*Project, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Project), args.Error(1)
}

func (m *MockRepository) UpdateChainStatus(ctx context.Context, id string, from, to ChainStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func goal(v float64) *float64 { return &v }

func validRequest() CreateProjectRequest {
	return CreateProjectRequest{
		Title:        "Solar Village",
		Description:  "Panels for the school roof",
		ImageURL:     "https://img.example.com/solar.png",
		FundingGoal:  goal(2.5),
		Deadline:     time.Now().Add(30 * 24 * time.Hour).Unix(),
		CreatorName:  "Ada",
		Contributors: []string{" alice ", "", "bob"},
		Category:     "Environment",
	}
}

func TestCreateProject(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())

	mockRepo.On("Insert", mock.Anything, mock.AnythingOfType("*projects.Project")).Return(nil)

	project, err := svc.CreateProject(context.Background(), validRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, project.ID)
	assert.Equal(t, "Solar Village", project.Title)
	assert.Equal(t, CategoryEnvironment, project.Category)
	assert.Equal(t, []string{"alice", "bob"}, project.Contributors)
	assert.Equal(t, ChainStatusNone, project.ChainStatus)
	assert.False(t, project.CreatedAt.IsZero())
	mockRepo.AssertExpectations(t)
}

func TestCreateProject_DefaultCategory(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	req := validRequest()
	req.Category = ""
	project, err := svc.CreateProject(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, CategoryGeneral, project.Category)
}

func TestCreateProject_ValidationReportsEveryField(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())

	req := CreateProjectRequest{FundingGoal: goal(-1), Category: "gardening"}
	_, err := svc.CreateProject(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "description")
	assert.Contains(t, verr.Fields, "imageUrl")
	assert.Contains(t, verr.Fields, "fundingGoal")
	assert.Contains(t, verr.Fields, "category")
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestCreateProject_ZeroGoalRejected(t *testing.T) {
	svc := NewService(new(MockRepository), time.Second, zap.NewNop())

	req := validRequest()
	req.FundingGoal = goal(0)
	_, err := svc.CreateProject(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"fundingGoal"}, keys(verr.Fields))
}

func TestCreateProject_GoalIsOptional(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	req := validRequest()
	req.FundingGoal = nil
	project, err := svc.CreateProject(context.Background(), req)

	require.NoError(t, err)
	assert.Nil(t, project.FundingGoal)
}

func TestPersist_RetriesOnce(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())

	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()

	project, err := NewRecord(validRequest(), time.Now())
	require.NoError(t, err)

	require.NoError(t, svc.Persist(context.Background(), project))
	mockRepo.AssertNumberOfCalls(t, "Insert", 2)
}

func TestPersist_FailsAfterSecondAttempt(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())

	cause := errors.New("no reachable servers")
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(cause)

	project, err := NewRecord(validRequest(), time.Now())
	require.NoError(t, err)

	err = svc.Persist(context.Background(), project)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, cause)
	mockRepo.AssertNumberOfCalls(t, "Insert", 2)
}

func TestPersist_DuplicateIDIsSuccess(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(ErrDuplicateID)

	project, err := NewRecord(validRequest(), time.Now())
	require.NoError(t, err)

	assert.NoError(t, svc.Persist(context.Background(), project))
	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestListProjects(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())

	stored := []*Project{{ID: "a", Title: "first"}, {ID: "b", Title: "second"}}
	mockRepo.On("FindAll", mock.Anything).Return(stored, nil)

	got, err := svc.ListProjects(context.Background())

	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestListProjects_StoreFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("FindAll", mock.Anything).Return(nil, errors.New("timeout"))

	_, err := svc.ListProjects(context.Background())

	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestGetProjectByTitle_ReturnsOldestMatch(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())

	older := &Project{ID: "old", Title: "Dup"}
	newer := &Project{ID: "new", Title: "Dup"}
	mockRepo.On("FindByTitle", mock.Anything, "Dup", 2).Return([]*Project{older, newer}, nil)

	got, err := svc.GetProjectByTitle(context.Background(), "Dup")

	require.NoError(t, err)
	assert.Equal(t, "old", got.ID)
}

func TestGetProjectByTitle_NotFound(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("FindByTitle", mock.Anything, "missing", 2).Return([]*Project{}, nil)

	_, err := svc.GetProjectByTitle(context.Background(), "missing")

	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestGetProject_NotFound(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("FindByID", mock.Anything, "nope").Return(nil, nil)

	_, err := svc.GetProject(context.Background(), "nope")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "id", nf.Key)
}

func TestUpdateChainStatus(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("UpdateChainStatus", mock.Anything, "p1", ChainStatusSubmitted, ChainStatusConfirmed).Return(true, nil)

	updated, err := svc.UpdateChainStatus(context.Background(), "p1", ChainStatusSubmitted, ChainStatusConfirmed)

	require.NoError(t, err)
	assert.True(t, updated)
	mockRepo.AssertExpectations(t)
}

func TestUpdateChainStatus_RejectsInvalidTransition(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())

	_, err := svc.UpdateChainStatus(context.Background(), "p1", ChainStatusConfirmed, ChainStatusSubmitted)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "allowed from confirmed: none")
	mockRepo.AssertNotCalled(t, "UpdateChainStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestCreateProject_DropsBlankContributors(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	req := validRequest()
	req.Contributors = []string{"0xAA", "", "  ", "0xBB"}
	project, err := svc.CreateProject(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, []string{"0xAA", "0xBB"}, project.Contributors)
}

func TestGetProjectByTitle_EmptyStore(t *testing.T) {
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, time.Second, zap.NewNop())
	mockRepo.On("FindByTitle", mock.Anything, "Nonexistent Project", 2).Return([]*Project{}, nil)

	_, err := svc.GetProjectByTitle(context.Background(), "Nonexistent Project")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "title", nf.Key)
}

func TestListProjects_ReturnsEveryRecord(t *testing.T) {
	for _, n := range []int{0, 1, 25} {
		mockRepo := new(MockRepository)
		svc := NewService(mockRepo, time.Second, zap.NewNop())

		stored := make([]*Project, 0, n)
		for i := 0; i < n; i++ {
			stored = append(stored, &Project{ID: uuid.NewString()})
		}
		mockRepo.On("FindAll", mock.Anything).Return(stored, nil)

		got, err := svc.ListProjects(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, n)
	}
}
