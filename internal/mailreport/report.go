// Package mailreport retrieves the opportunity-stage duration report that
// the CRM mails out as a download link, and stores it as a workbook.
package mailreport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	exporterrors "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/sheet"
)

// Name is the domain name of the report.
const Name = "opp-stage"

// TokenSource yields Graph access tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config controls the mailbox search.
type Config struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Mailbox is the user principal to search; empty means the signed-in user.
	Mailbox         string `json:"mailbox" yaml:"mailbox"`
	Sender          string `json:"sender" yaml:"sender"`
	SubjectContains string `json:"subject_contains" yaml:"subject_contains"`
	LinkText        string `json:"link_text" yaml:"link_text"`
	WindowDays      int    `json:"window_days" yaml:"window_days"`
	OutputFile      string `json:"output_file" yaml:"output_file"`
}

// DefaultConfig returns the settings of the CRM notification mail.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://graph.microsoft.com/v1.0",
		Sender:          "notifications@insightly.com",
		SubjectContains: "Insightly - Opportunity Stage Duration Export",
		LinkText:        "Download Report",
		WindowDays:      15,
		OutputFile:      "Opp Stage Duration.xlsx",
	}
}

// Report implements export.Exporter over a mailbox instead of the CRM API.
type Report struct {
	cfg    Config
	tokens TokenSource
	http   *http.Client
	sheets *sheet.XLSXWriter
	now    func() time.Time
}

// New creates a report exporter. httpClient may be nil.
func New(cfg Config, tokens TokenSource, httpClient *http.Client) *Report {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SubjectContains == "" {
		cfg.SubjectContains = def.SubjectContains
	}
	if cfg.LinkText == "" {
		cfg.LinkText = def.LinkText
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	if cfg.OutputFile == "" {
		cfg.OutputFile = def.OutputFile
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Report{cfg: cfg, tokens: tokens, http: httpClient, sheets: sheet.NewXLSXWriter(), now: time.Now}
}

// Name returns the domain name.
func (r *Report) Name() string { return Name }

// FileName returns the output file name.
func (r *Report) FileName() string { return r.cfg.OutputFile }

// Export finds the newest matching report mail, downloads the linked file
// and stores it under env.OutputDir. A missing mail or link is not an error;
// the result then has an empty path.
func (r *Report) Export(ctx context.Context, env export.Env) (*export.Result, error) {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("domain", Name)
	result := &export.Result{Domain: Name, File: r.cfg.OutputFile}

	token, err := r.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	messageID, err := r.findMessage(ctx, token, logger)
	if err != nil {
		return nil, err
	}
	if messageID == "" {
		return result, nil
	}

	link, err := r.downloadLink(ctx, token, messageID)
	if err != nil {
		return nil, err
	}
	if link == "" {
		logger.Warn("report link not found in message body", "message_id", messageID)
		return result, nil
	}
	logger.Info("report link extracted", "url", link)

	dst, err := r.download(ctx, link, env.OutputDir, logger)
	if err != nil {
		return nil, err
	}
	result.Path = dst
	if dst != "" {
		if rows, err := sheet.ReadRows(dst); err == nil && len(rows) > 0 {
			result.Rows = len(rows) - 1
		}
	}
	return result, nil
}

func (r *Report) mailbox() string {
	if r.cfg.Mailbox == "" {
		return r.cfg.BaseURL + "/me"
	}
	return r.cfg.BaseURL + "/users/" + url.PathEscape(r.cfg.Mailbox)
}

// SearchQuery returns the message query for the configured window ending
// at now.
func (r *Report) SearchQuery(now time.Time) url.Values {
	since := now.UTC().Add(-time.Duration(r.cfg.WindowDays) * 24 * time.Hour).Truncate(time.Second)
	filter := "receivedDateTime ge " + since.Format(time.RFC3339)
	if r.cfg.Sender != "" {
		filter += fmt.Sprintf(" and sender/emailAddress/address eq '%s'", strings.ReplaceAll(r.cfg.Sender, "'", "''"))
	}
	q := url.Values{}
	q.Set("$filter", filter)
	q.Set("$orderby", "receivedDateTime desc")
	q.Set("$top", "10")
	return q
}

func (r *Report) findMessage(ctx context.Context, token string, logger *slog.Logger) (string, error) {
	target := r.mailbox() + "/messages?" + r.SearchQuery(r.now()).Encode()
	body, err := r.get(ctx, target, token)
	if err != nil {
		return "", exporterrors.NewMailError(exporterrors.CodeMessageSearch, "searching report mail", err)
	}

	messages := gjson.GetBytes(body, "value").Array()
	logger.Info("report mail searched", "messages", len(messages))

	for _, m := range messages {
		subject := m.Get("subject").String()
		if strings.Contains(subject, r.cfg.SubjectContains) {
			logger.Info("report mail found", "subject", subject, "received", m.Get("receivedDateTime").String())
			return m.Get("id").String(), nil
		}
	}
	logger.Info("no report mail in window", "window_days", r.cfg.WindowDays)
	return "", nil
}

func (r *Report) downloadLink(ctx context.Context, token, messageID string) (string, error) {
	target := r.mailbox() + "/messages/" + url.PathEscape(messageID) + "?$select=body"
	body, err := r.get(ctx, target, token)
	if err != nil {
		return "", exporterrors.NewMailError(exporterrors.CodeMessageSearch, "fetching message body", err)
	}
	return FindLink(gjson.GetBytes(body, "body.content").String(), r.cfg.LinkText)
}

// FindLink returns the href of the first anchor whose text contains text.
func FindLink(content, text string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", exporterrors.NewMailError(exporterrors.CodeReportDownload, "parsing message body", err)
	}

	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" && strings.Contains(nodeText(n), text) {
			for _, a := range n.Attr {
				if a.Key == "href" && a.Val != "" {
					found = a.Val
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return found, nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

// download fetches link into dir and turns it into the output workbook.
func (r *Report) download(ctx context.Context, link, dir string, logger *slog.Logger) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", exporterrors.NewMailError(exporterrors.CodeReportDownload, "parsing report link", err)
	}
	source := path.Base(u.Path)
	if source == "" || source == "/" || source == "." {
		source = "report"
	}

	data, err := r.get(ctx, link, "")
	if err != nil {
		return "", exporterrors.NewMailError(exporterrors.CodeReportDownload, "downloading report", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", exporterrors.NewMailError(exporterrors.CodeReportDownload, "creating output dir", err)
	}
	initial := filepath.Join(dir, source)
	if err := os.WriteFile(initial, data, 0644); err != nil {
		return "", exporterrors.NewMailError(exporterrors.CodeReportDownload, "saving report", err)
	}
	logger.Info("report downloaded", "path", initial, "bytes", len(data))

	final := filepath.Join(dir, r.cfg.OutputFile)
	if initial == final {
		return final, nil
	}

	switch strings.ToLower(filepath.Ext(source)) {
	case ".xlsx":
		if err := os.Rename(initial, final); err != nil {
			return "", exporterrors.NewMailError(exporterrors.CodeReportDownload, "renaming report", err)
		}
	case ".csv":
		defer os.Remove(initial)
		if err := r.sheets.ConvertCSV(initial, final); err != nil {
			return "", exporterrors.NewMailError(exporterrors.CodeReportDownload, "converting report", err)
		}
		logger.Info("report converted", "path", final)
	default:
		os.Remove(initial)
		logger.Warn("unsupported report format, skipping", "file", source)
		return "", nil
	}
	return final, nil
}

// get performs a GET and returns the body of a 200 response. An empty token
// sends no Authorization header.
func (r *Report) get(ctx context.Context, target, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, exporterrors.NewHTTPError(resp.StatusCode, target)
	}
	return data, nil
}
