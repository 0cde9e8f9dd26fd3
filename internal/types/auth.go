package types

import "time"

// RequestType classifies remote calls for logging and error context
type RequestType string

const (
	RequestTypeConnect  RequestType = "connect"
	RequestTypeList     RequestType = "list"
	RequestTypeGet      RequestType = "get"
	RequestTypeContent  RequestType = "content"
	RequestTypeSearch   RequestType = "search"
	RequestTypeMutation RequestType = "mutation"
)

// RequestContext carries per-call metadata through the API client
type RequestContext struct {
	Account     string
	NodeIDs     []string
	RequestType RequestType
	TraceID     string
}

// Credentials are OAuth tokens for a cloud account
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiryDate   time.Time
	Scopes       []string
}

// StoredSecret is the serialized form kept in a storage backend.
// Direct accounts carry a password, cloud accounts a token pair.
type StoredSecret struct {
	Account      string   `json:"account"`
	Password     string   `json:"password,omitempty"`
	AccessToken  string   `json:"access_token,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	ExpiryDate   string   `json:"expiry_date,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}
