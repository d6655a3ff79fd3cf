// Package protocol defines the API request/response types.
package protocol

import "time"

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// ExchangeRequest is the body for POST /api/exchange.
type ExchangeRequest struct {
	PairCode string `json:"pairCode"`
}

// ExchangeResponse is returned by POST /api/exchange.
type ExchangeResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HomeResponse is returned by GET /api/home.
type HomeResponse struct {
	Path  string   `json:"path"`
	Roots []string `json:"roots"`
	Free  uint64   `json:"free,omitempty"`
	Total uint64   `json:"total,omitempty"`
}

// FileEntry describes one directory child.
type FileEntry struct {
	Name      string `json:"name"`
	IsDir     bool   `json:"isDir"`
	IsFile    bool   `json:"isFile"`
	IsSymlink bool   `json:"isSymlink"`
	Size      int64  `json:"size"`
	MtimeMs   int64  `json:"mtimeMs"`
}

// ListResponse is returned by GET /api/ls.
type ListResponse struct {
	Path  string      `json:"path"`
	Items []FileEntry `json:"items"`
}

// ReadResponse is returned by GET /api/read.
type ReadResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

// WriteRequest is the body for POST /api/write.
type WriteRequest struct {
	Path    *string `json:"path"`
	Content *string `json:"content"`
}

// PathRequest is the body for POST /api/mkdir.
type PathRequest struct {
	Path string `json:"path"`
}

// OKResponse acknowledges a mutation.
type OKResponse struct {
	OK   bool   `json:"ok"`
	Path string `json:"path,omitempty"`
}

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	OK   bool   `json:"ok"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// SearchResult is one match of a name search.
type SearchResult struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
}

// SearchResponse is returned by GET /api/search.
type SearchResponse struct {
	Path    string         `json:"path"`
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// PairRequest is the body for POST /api/operator/pair.
type PairRequest struct {
	Seed string `json:"seed,omitempty"`
}

// PairResponse is returned by POST /api/operator/pair.
type PairResponse struct {
	Code      string    `json:"code"`
	Link      string    `json:"link,omitempty"`
	QRCode    string    `json:"qr,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// OperatorLoginRequest is the body for POST /api/operator/token.
type OperatorLoginRequest struct {
	Password string `json:"password"`
}

// OperatorTokenResponse is returned by POST /api/operator/token.
type OperatorTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ChangeEvent is streamed by GET /api/events.
type ChangeEvent struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Size      int64  `json:"size,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
