package contract

import (
	"context"
	"io"
	"time"

	"github.com/seanfarley/fromcvs/schema"
	"github.com/stretchr/testify/mock"
)

// MockRCSClient is a mock implementation of RCSClient for testing.
type MockRCSClient struct {
	mock.Mock
}

var _ RCSClient = &MockRCSClient{} // Compile-time check

// Run implements the RCSClient interface.
func (m *MockRCSClient) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	mockArgs := []any{ctx, name}
	for _, arg := range args {
		mockArgs = append(mockArgs, arg)
	}
	ret := m.Called(mockArgs...)
	output, _ := ret.Get(0).([]byte)
	return output, ret.Error(1)
}

// MockContentSource is a mock implementation of ContentSource for testing.
type MockContentSource struct {
	mock.Mock
}

var _ ContentSource = &MockContentSource{} // Compile-time check

// Walk implements the ContentSource interface.
func (m *MockContentSource) Walk(ctx context.Context, module string, visit func(schema.SourceFile) error) error {
	ret := m.Called(ctx, module, visit)
	if files, ok := ret.Get(0).([]schema.SourceFile); ok {
		for _, f := range files {
			if err := visit(f); err != nil {
				return err
			}
		}
	}
	return ret.Error(1)
}

// Open implements the ContentSource interface.
func (m *MockContentSource) Open(ctx context.Context, path string) (*schema.FileHistory, error) {
	ret := m.Called(ctx, path)
	hist, _ := ret.Get(0).(*schema.FileHistory)
	return hist, ret.Error(1)
}

// Log implements the ContentSource interface.
func (m *MockContentSource) Log(ctx context.Context, path, rev string) (string, error) {
	ret := m.Called(ctx, path, rev)
	return ret.String(0), ret.Error(1)
}

// Materialize implements the ContentSource interface.
func (m *MockContentSource) Materialize(ctx context.Context, path, rev string) (*schema.FileContent, error) {
	ret := m.Called(ctx, path, rev)
	if fn, ok := ret.Get(0).(func(context.Context, string, string) *schema.FileContent); ok {
		return fn(ctx, path, rev), ret.Error(1)
	}
	content, _ := ret.Get(0).(*schema.FileContent)
	return content, ret.Error(1)
}

// MockDestination is a mock implementation of Destination for testing.
type MockDestination struct {
	mock.Mock
}

var _ Destination = &MockDestination{} // Compile-time check

// LastWatermark implements the Destination interface.
func (m *MockDestination) LastWatermark() (time.Time, error) {
	ret := m.Called()
	t, _ := ret.Get(0).(time.Time)
	return t, ret.Error(1)
}

// FileList implements the Destination interface.
func (m *MockDestination) FileList(branch string) ([]string, error) {
	ret := m.Called(branch)
	files, _ := ret.Get(0).([]string)
	return files, ret.Error(1)
}

// Start implements the Destination interface.
func (m *MockDestination) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Flush implements the Destination interface.
func (m *MockDestination) Flush() error {
	return m.Called().Error(0)
}

// Finish implements the Destination interface.
func (m *MockDestination) Finish() error {
	return m.Called().Error(0)
}

// HasBranch implements the Destination interface.
func (m *MockDestination) HasBranch(name string) bool {
	return m.Called(name).Bool(0)
}

// CreateBranch implements the Destination interface.
func (m *MockDestination) CreateBranch(name, parent string, vendor bool, at time.Time) error {
	return m.Called(name, parent, vendor, at).Error(0)
}

// SelectBranch implements the Destination interface.
func (m *MockDestination) SelectBranch(name string) error {
	return m.Called(name).Error(0)
}

// Update implements the Destination interface.
func (m *MockDestination) Update(path string, content *schema.FileContent, rev *schema.RevisionRecord) error {
	return m.Called(path, content, rev).Error(0)
}

// Remove implements the Destination interface.
func (m *MockDestination) Remove(path string, rev *schema.RevisionRecord) error {
	return m.Called(path, rev).Error(0)
}

// Commit implements the Destination interface.
func (m *MockDestination) Commit(req schema.CommitRequest) (string, error) {
	ret := m.Called(req)
	return ret.String(0), ret.Error(1)
}

// Merge implements the Destination interface.
func (m *MockDestination) Merge(parentID string, req schema.CommitRequest) (string, error) {
	ret := m.Called(parentID, req)
	return ret.String(0), ret.Error(1)
}

// MockGitClient is a mock implementation of GitClient for testing.
type MockGitClient struct {
	mock.Mock
}

var _ GitClient = &MockGitClient{} // Compile-time check

// Run implements the GitClient interface.
func (m *MockGitClient) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	mockArgs := []any{ctx, repoPath}
	for _, arg := range args {
		mockArgs = append(mockArgs, arg)
	}
	ret := m.Called(mockArgs...)
	output, _ := ret.Get(0).([]byte)
	return output, ret.Error(1)
}

// ListBranches implements the GitClient interface.
func (m *MockGitClient) ListBranches(ctx context.Context, repoPath string) ([]schema.BranchTip, error) {
	ret := m.Called(ctx, repoPath)
	tips, _ := ret.Get(0).([]schema.BranchTip)
	return tips, ret.Error(1)
}

// ListFiles implements the GitClient interface.
func (m *MockGitClient) ListFiles(ctx context.Context, repoPath string, ref string) ([]string, error) {
	ret := m.Called(ctx, repoPath, ref)
	files, _ := ret.Get(0).([]string)
	return files, ret.Error(1)
}

// FastImport implements the GitClient interface.
func (m *MockGitClient) FastImport(ctx context.Context, repoPath string) (io.WriteCloser, error) {
	ret := m.Called(ctx, repoPath)
	w, _ := ret.Get(0).(io.WriteCloser)
	return w, ret.Error(1)
}
