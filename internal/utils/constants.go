package utils

// Content server REST API paths, relative to the server URL
const (
	CoreAPIPath   = "/alfresco/api/-default-/public/alfresco/versions/1"
	SearchAPIPath = "/alfresco/api/-default-/public/search/versions/1"
)

// Default cloud endpoints
const (
	DefaultCloudAPIBase  = "https://api.alfresco.com"
	DefaultCloudAuthURL  = "https://api.alfresco.com/auth/oauth/versions/2/authorize"
	DefaultCloudTokenURL = "https://api.alfresco.com/auth/oauth/versions/2/token"
)

// OAuth scopes requested for cloud accounts
var DefaultCloudScopes = []string{"public_api"}

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Page size used when walking paginated collections
const DefaultPageSize = 100

// Copy buffer for content downloads
const CopyBufferSize = 32 * 1024

// Recent documents window
const DefaultRecentDays = 7

// Schema version
const SchemaVersion = "1.0"

// Content model types
const (
	NodeTypeContent = "cm:content"
	NodeTypeFolder  = "cm:folder"
)

// Rendition used for thumbnails
const ThumbnailRendition = "doclib"

// Default local cache layout
const (
	DownloadsDirName  = "downloads"
	ThumbnailsDirName = "thumbnails"
	IndexFileName     = "index.db"
)
