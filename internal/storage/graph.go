package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	exporterrors "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
)

// DefaultGraphBaseURL is the Microsoft Graph v1.0 root.
const DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphConfig holds configuration for drive uploads.
type GraphConfig struct {
	// BaseURL is the Graph API root.
	BaseURL string
	// ShareLinks are shared folder URLs; every file goes to each of them.
	ShareLinks []string
	// Timeout bounds each Graph request.
	Timeout time.Duration
}

// DefaultGraphConfig returns the default drive configuration.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		BaseURL: DefaultGraphBaseURL,
		Timeout: 120 * time.Second,
	}
}

// GraphDrive uploads files into shared OneDrive/SharePoint folders.
type GraphDrive struct {
	cfg    GraphConfig
	tokens TokenSource
	http   *http.Client
	logger *slog.Logger
}

// NewGraphDrive creates a drive uploader. httpClient may be nil.
func NewGraphDrive(cfg GraphConfig, tokens TokenSource, httpClient *http.Client, logger *slog.Logger) *GraphDrive {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphDrive{cfg: cfg, tokens: tokens, http: httpClient, logger: logger}
}

// ShareToken encodes a sharing URL as a Graph share ID: "u!" followed by
// the unpadded base64url of the link.
func ShareToken(link string) string {
	return "u!" + base64.RawURLEncoding.EncodeToString([]byte(link))
}

// driveFolder is a resolved shared folder.
type driveFolder struct {
	DriveID string
	ItemID  string
	Name    string
}

// Upload implements Uploader. The file goes to every configured share
// link; a failing link does not stop the others.
func (g *GraphDrive) Upload(ctx context.Context, localPath, name string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return exporterrors.NewUploadError(exporterrors.CodeUploadFailed, "reading "+localPath, err)
	}
	if len(g.cfg.ShareLinks) == 0 {
		return ErrNoDestination
	}

	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, link := range g.cfg.ShareLinks {
		if err := g.uploadTo(ctx, token, link, name, data); err != nil {
			g.logger.Error("drive upload failed", "file", name, "link", link, "error", err)
			errs = append(errs, err)
			continue
		}
		g.logger.Info("drive upload done", "file", name, "link", link)
	}
	return errors.Join(errs...)
}

func (g *GraphDrive) uploadTo(ctx context.Context, token, link, name string, data []byte) error {
	folder, err := g.resolveShare(ctx, token, link)
	if err != nil {
		return err
	}

	itemID, err := g.findChild(ctx, token, folder, name)
	if err != nil {
		return err
	}

	var target string
	if itemID != "" {
		target = fmt.Sprintf("%s/drives/%s/items/%s/content", g.cfg.BaseURL, url.PathEscape(folder.DriveID), url.PathEscape(itemID))
	} else {
		target = fmt.Sprintf("%s/drives/%s/items/%s:/%s:/content", g.cfg.BaseURL, url.PathEscape(folder.DriveID), url.PathEscape(folder.ItemID), url.PathEscape(name))
	}

	status, body, err := g.do(ctx, http.MethodPut, target, token, data)
	if err != nil {
		return exporterrors.NewUploadError(exporterrors.CodeUploadFailed, "uploading "+name, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return exporterrors.NewUploadError(exporterrors.CodeUploadFailed, "uploading "+name,
			fmt.Errorf("%w: status %d: %s", ErrUploadFailed, status, snippet(body)))
	}
	return nil
}

// resolveShare maps a sharing URL to its drive and item IDs.
func (g *GraphDrive) resolveShare(ctx context.Context, token, link string) (driveFolder, error) {
	target := g.cfg.BaseURL + "/shares/" + ShareToken(link) + "/driveItem"
	status, body, err := g.do(ctx, http.MethodGet, target, token, nil)
	if err != nil {
		return driveFolder{}, exporterrors.NewUploadError(exporterrors.CodeShareResolution, "resolving share link", err)
	}
	if status != http.StatusOK {
		return driveFolder{}, exporterrors.NewUploadError(exporterrors.CodeShareResolution, "resolving share link",
			fmt.Errorf("%w: status %d: %s", ErrShareUnresolved, status, snippet(body)))
	}

	res := gjson.ParseBytes(body)
	folder := driveFolder{
		DriveID: res.Get("parentReference.driveId").String(),
		ItemID:  res.Get("id").String(),
		Name:    res.Get("name").String(),
	}
	if folder.DriveID == "" || folder.ItemID == "" {
		return driveFolder{}, exporterrors.NewUploadError(exporterrors.CodeShareResolution, "resolving share link",
			fmt.Errorf("%w: missing drive or item id", ErrShareUnresolved))
	}
	g.logger.Debug("share resolved", "folder", folder.Name, "drive_id", folder.DriveID, "item_id", folder.ItemID)
	return folder, nil
}

// findChild returns the item ID of name inside folder, or "" when absent.
func (g *GraphDrive) findChild(ctx context.Context, token string, folder driveFolder, name string) (string, error) {
	next := fmt.Sprintf("%s/drives/%s/items/%s/children?$select=id,name", g.cfg.BaseURL, url.PathEscape(folder.DriveID), url.PathEscape(folder.ItemID))

	for next != "" {
		status, body, err := g.do(ctx, http.MethodGet, next, token, nil)
		if err != nil {
			return "", exporterrors.NewUploadError(exporterrors.CodeUploadFailed, "listing folder", err)
		}
		if status != http.StatusOK {
			return "", exporterrors.NewUploadError(exporterrors.CodeUploadFailed, "listing folder",
				fmt.Errorf("%w: status %d: %s", ErrUploadFailed, status, snippet(body)))
		}

		res := gjson.ParseBytes(body)
		var found string
		res.Get("value").ForEach(func(_, item gjson.Result) bool {
			if strings.EqualFold(item.Get("name").String(), name) {
				found = item.Get("id").String()
				return false
			}
			return true
		})
		if found != "" {
			return found, nil
		}
		next = res.Get("@odata\\.nextLink").String()
	}
	return "", nil
}

func (g *GraphDrive) do(ctx context.Context, method, target, token string, payload []byte) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
