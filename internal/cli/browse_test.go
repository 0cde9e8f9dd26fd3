package cli

import (
	"context"
	"testing"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/ids"
	"github.com/dl-alexandre/ecmdocs/internal/provider"
	"github.com/dl-alexandre/ecmdocs/internal/session"
	testhelpers "github.com/dl-alexandre/ecmdocs/internal/testing"
	"github.com/dl-alexandre/ecmdocs/internal/testing/mocks"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, repo *mocks.FakeRepository) *provider.Provider {
	t.Helper()
	creds := mocks.NewFakeCredentialStore()
	creds.AddAccount(testhelpers.TestDirectAccount("alice"), "secret")
	connector := &mocks.FakeConnector{Repo: repo}

	p := provider.New(creds, session.NewOrchestrator(creds, connector, nil), nil, provider.Options{
		TaskTimeout: 5 * time.Second,
	})
	p.SelectAccount("alice")
	t.Cleanup(p.Wait)
	return p
}

func TestAwaitListing_Settles(t *testing.T) {
	repo := mocks.NewFakeRepository()
	repo.AddChild(testhelpers.TestFolder("f1", "Projects", "root"))
	p := newTestProvider(t, repo)

	rootID := ids.Account("alice")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := awaitListing(ctx, p, p.ChildrenURI(rootID), 10*time.Millisecond, func() provider.ListResult {
		return p.ListChildren(rootID)
	})

	require.False(t, result.Loading)
	require.NoError(t, result.Err)
	got := make([]string, len(result.Rows))
	for i, r := range result.Rows {
		got[i] = r.DocumentID
	}
	assert.Equal(t, []string{"1001", "1002", "f1"}, got)
}

func TestAwaitListing_ReturnsLoadingWhenContextEnds(t *testing.T) {
	release := make(chan struct{})
	repo := mocks.NewFakeRepository()
	repo.ListChildrenFunc = func(ctx context.Context, folderID string) ([]*types.Node, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, nil
	}
	p := newTestProvider(t, repo)
	t.Cleanup(func() { close(release) })

	rootID := ids.Account("alice")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := awaitListing(ctx, p, p.ChildrenURI(rootID), 10*time.Millisecond, func() provider.ListResult {
		return p.ListChildren(rootID)
	})

	assert.True(t, result.Loading)
	assert.Empty(t, result.Rows)
}

func TestWriteListing(t *testing.T) {
	t.Run("error result is written as an error", func(t *testing.T) {
		w, _ := newTestWriter(types.OutputFormatJSON)
		err := writeListing(w, "ls", provider.ListResult{Err: context.DeadlineExceeded})
		require.Error(t, err)
		var cmdErr *commandError
		assert.ErrorAs(t, err, &cmdErr)
	})

	t.Run("loading result carries a warning", func(t *testing.T) {
		w, _ := newTestWriter(types.OutputFormatJSON)
		require.NoError(t, writeListing(w, "ls", provider.ListResult{Loading: true}))
		require.Len(t, w.warnings, 1)
		assert.Equal(t, "LOADING", w.warnings[0].Code)
	})
}
