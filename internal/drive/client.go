package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Criser2013/adt-records/internal/metrics"
)

// MimeTypeFolder is the provider mime type that marks a container.
const MimeTypeFolder = "application/vnd.google-apps.folder"

// FileMeta is the subset of provider file metadata this service uses.
type FileMeta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type fileList struct {
	Files []FileMeta `json:"files"`
}

// Client issues stateless calls against the blob-storage HTTP API.
// Every operation takes the caller's bearer token; the client holds no
// credentials and no per-file state.
type Client struct {
	httpClient *resty.Client
	apiBase    string
	uploadBase string
	logger     *zap.Logger
}

// NewClient creates a blob-storage client. apiBase serves metadata,
// search and downloads; uploadBase serves the resumable upload protocol.
func NewClient(apiBase, uploadBase string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(60 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		apiBase:    strings.TrimRight(apiBase, "/"),
		uploadBase: strings.TrimRight(uploadBase, "/"),
		logger:     logger,
	}
}

// EscapeQueryValue escapes a literal value for the provider filter
// grammar, where the single quote delimits string tokens.
func EscapeQueryValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// Search runs a metadata query and returns the matching files.
// query uses the provider filter grammar; values embedded in it must be
// escaped with EscapeQueryValue. URL encoding is handled here.
func (c *Client) Search(ctx context.Context, token, query string) ([]FileMeta, error) {
	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("q", query).
		SetQueryParam("fields", "files(id,name,mimeType)").
		Get(c.apiBase + "/files")
	if err != nil {
		metrics.ObserveDrive("search", string(KindNetwork), start)
		return nil, WrapError(KindNetwork, "search request failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.fail("search", resp, false, start)
	}

	var list fileList
	if err := json.Unmarshal(resp.Body(), &list); err != nil {
		metrics.ObserveDrive("search", string(KindParseFailed), start)
		return nil, WrapError(KindParseFailed, "malformed search response", err)
	}
	metrics.ObserveDrive("search", "success", start)
	return list.Files, nil
}

// CreateFile creates a zero-byte file, or a folder when isFolder is set.
// Content is uploaded separately through the resumable protocol.
func (c *Client) CreateFile(ctx context.Context, token, name, parentID string, isFolder bool) (FileMeta, error) {
	body := map[string]any{"name": name}
	if isFolder {
		body["mimeType"] = MimeTypeFolder
	}
	if parentID != "" {
		body["parents"] = []string{parentID}
	}

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.apiBase + "/files")
	if err != nil {
		metrics.ObserveDrive("create", string(KindNetwork), start)
		return FileMeta{}, WrapError(KindNetwork, "create request failed", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return FileMeta{}, c.fail("create", resp, false, start)
	}

	var meta FileMeta
	if err := json.Unmarshal(resp.Body(), &meta); err != nil {
		metrics.ObserveDrive("create", string(KindParseFailed), start)
		return FileMeta{}, WrapError(KindParseFailed, "malformed create response", err)
	}
	metrics.ObserveDrive("create", "success", start)
	c.logger.Info("Created remote entity",
		zap.String("name", name),
		zap.String("file_id", meta.ID),
		zap.Bool("folder", isFolder),
	)
	return meta, nil
}

// BeginResumableUpload opens an upload session for an existing file and
// returns the session URL. The provider hands the URL back in the
// Location header, not the response body.
func (c *Client) BeginResumableUpload(ctx context.Context, token, fileID string) (string, error) {
	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("uploadType", "resumable").
		Patch(c.uploadBase + "/files/" + fileID)
	if err != nil {
		metrics.ObserveDrive("begin_upload", string(KindNetwork), start)
		return "", WrapError(KindNetwork, "begin upload request failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", c.fail("begin_upload", resp, false, start)
	}

	sessionURL := resp.Header().Get("Location")
	if sessionURL == "" {
		metrics.ObserveDrive("begin_upload", string(KindUnknown), start)
		return "", NewError(KindUnknown, "upload session response carried no Location header")
	}
	metrics.ObserveDrive("begin_upload", "success", start)
	return sessionURL, nil
}

// UploadContent transfers the full file content to an open session URL.
// A 404 here means the session expired (a new session is required); a
// 308 means the transfer is incomplete and may be retried against the
// same session.
func (c *Client) UploadContent(ctx context.Context, token, sessionURL string, content []byte) (FileMeta, error) {
	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("Content-Length", fmt.Sprintf("%d", len(content))).
		SetBody(content).
		Put(sessionURL)
	if err != nil {
		metrics.ObserveDrive("upload", string(KindNetwork), start)
		return FileMeta{}, WrapError(KindNetwork, "upload request failed", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return FileMeta{}, c.fail("upload", resp, true, start)
	}

	var meta FileMeta
	if err := json.Unmarshal(resp.Body(), &meta); err != nil {
		metrics.ObserveDrive("upload", string(KindParseFailed), start)
		return FileMeta{}, WrapError(KindParseFailed, "malformed upload response", err)
	}
	metrics.ObserveDrive("upload", "success", start)
	return meta, nil
}

// Download fetches the raw content of a file.
func (c *Client) Download(ctx context.Context, token, fileID string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("alt", "media").
		Get(c.apiBase + "/files/" + fileID)
	if err != nil {
		metrics.ObserveDrive("download", string(KindNetwork), start)
		return nil, WrapError(KindNetwork, "download request failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.fail("download", resp, false, start)
	}
	metrics.ObserveDrive("download", "success", start)
	return resp.Body(), nil
}

// fail classifies a non-success response, records it and logs it.
func (c *Client) fail(op string, resp *resty.Response, session bool, start time.Time) *Error {
	e := classifyResponse(resp.StatusCode(), resp.Body(), session, op)
	metrics.ObserveDrive(op, string(e.Kind), start)
	c.logger.Error("Blob storage call failed",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode()),
		zap.String("kind", string(e.Kind)),
	)
	return e
}
