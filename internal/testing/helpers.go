package testing

import (
	"context"
	"testing"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/types"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Account:     "test-account",
		NodeIDs:     []string{},
		RequestType: types.RequestTypeList,
		TraceID:     "test-trace-id",
	}
}

// TestRequestContextWithNodes creates a request context with node IDs
func TestRequestContextWithNodes(nodeIDs ...string) *types.RequestContext {
	ctx := TestRequestContext()
	ctx.NodeIDs = nodeIDs
	return ctx
}

// TestModified is the last-modified time given to test nodes
var TestModified = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// TestDocument creates a document node with full permissions
func TestDocument(id, name, parentID string, size int64) *types.Node {
	return &types.Node{
		ID:         id,
		Name:       name,
		ParentID:   parentID,
		Kind:       types.NodeKindDocument,
		Size:       size,
		MimeType:   "text/plain",
		ModifiedAt: TestModified,
		Permissions: &types.Permissions{
			CanEdit:   true,
			CanDelete: true,
		},
	}
}

// TestFolder creates a folder node that accepts children
func TestFolder(id, name, parentID string) *types.Node {
	return &types.Node{
		ID:          id,
		Name:        name,
		ParentID:    parentID,
		Kind:        types.NodeKindFolder,
		ModifiedAt:  TestModified,
		Permissions: &types.Permissions{CanAddChildren: true, CanDelete: true},
	}
}

// TestNodeWithoutPermissions creates a document whose permissions must be looked up
func TestNodeWithoutPermissions(id, name, parentID string) *types.Node {
	n := TestDocument(id, name, parentID, 10)
	n.Permissions = nil
	return n
}

// TestSite creates a site
func TestSite(id, title string) *types.Site {
	return &types.Site{ID: id, Title: title, Visibility: "PUBLIC"}
}

// TestDirectAccount creates a direct (username/password) account
func TestDirectAccount(name string) *types.Account {
	return &types.Account{
		Name:      name,
		Kind:      types.AccountKindDirect,
		ServerURL: "https://ecm.example.com",
		Username:  "alice",
		CreatedAt: TestModified,
	}
}

// TestCloudAccount creates a cloud (OAuth) account
func TestCloudAccount(name string) *types.Account {
	return &types.Account{
		Name:      name,
		Kind:      types.AccountKindCloud,
		Username:  "alice@example.com",
		CreatedAt: TestModified,
	}
}

// TestBundle creates an OAuth bundle
func TestBundle() *types.OAuthBundle {
	return &types.OAuthBundle{
		APIKey:       "client-id",
		APISecret:    "client-secret",
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		Expiry:       time.Now().Add(time.Hour),
	}
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("expected error but got nil")
		}
	}
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
		} else {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
