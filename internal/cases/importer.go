package cases

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

// Source sheet headers, kept verbatim.
const (
	ColumnCaseID           = "Case_Organization_Case_ID"
	ColumnSparkTitle       = "Case_Organization_Spark_Title"
	ColumnRevealTitle      = "Case_Organization_Reveal_Title"
	ColumnSeriesName       = "Case_Series_Name"
	ColumnDifficulty       = "Difficulty_Level"
	ColumnConversionStatus = "Developer_and_QA_Metadata_Conversion_Status"
	ColumnSeedTrigger      = "image sync_Seed_Generation_Trigger"
)

// ErrBucketRequired is returned when media fetching is requested without a bucket.
var ErrBucketRequired = errors.New("cases: assets bucket is required to fetch resources")

var (
	mediaURLColumn     = regexp.MustCompile(`(?i)^Resources_and_Media_Assets_Media_URL\s*(\d+)`)
	sheetIDPattern     = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)
	unsafeIDChars      = regexp.MustCompile(`[^a-z0-9_-]`)
	repeatedUnderscore = regexp.MustCompile(`_+`)
)

const mediaFetchTimeout = 30 * time.Second

// CaseWriter is the write side of the case store used by the importer.
type CaseWriter interface {
	UpsertCase(ctx context.Context, c Case) (bool, error)
	UpsertResource(ctx context.Context, r Resource) (*Resource, bool, error)
	MarkResourceSynced(ctx context.Context, caseID, resourceID, s3Key string) error
}

// ObjectPutter uploads mirrored media.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// HTTPDoer fetches sheets and media.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ImportOptions controls an import run.
type ImportOptions struct {
	DryRun         bool
	FetchResources bool
	Bucket         string
}

// PlannedResource is a media URL the importer would register.
type PlannedResource struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	URL          string `json:"url"`
}

// PlannedCase is a row the importer would write.
type PlannedCase struct {
	CaseID     string            `json:"case_id"`
	SparkTitle string            `json:"spark_title"`
	Resources  []PlannedResource `json:"resources"`
}

// ImportReport summarizes an import run.
type ImportReport struct {
	Columns          int           `json:"columns"`
	Created          int           `json:"created"`
	Updated          int           `json:"updated"`
	Skipped          int           `json:"skipped"`
	ResourcesCreated int           `json:"resources_created"`
	ResourcesSynced  int           `json:"resources_synced"`
	ResourcesFailed  int           `json:"resources_failed"`
	Planned          []PlannedCase `json:"planned,omitempty"`
}

// MediaURL is a media column value with its column index.
type MediaURL struct {
	Index int
	URL   string
}

// Importer loads case rows from CSV and optionally mirrors their media to S3.
type Importer struct {
	store   CaseWriter
	objects ObjectPutter
	client  HTTPDoer
	logger  *logging.Logger
}

func NewImporter(store CaseWriter, objects ObjectPutter, client HTTPDoer, logger *logging.Logger) *Importer {
	if logger == nil {
		logger = logging.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Importer{store: store, objects: objects, client: client, logger: logger}
}

// FetchSheetCSV downloads a Google Sheet tab as CSV. The caller closes the reader.
func (i *Importer) FetchSheetCSV(ctx context.Context, sheetURLOrID, gid string) (io.ReadCloser, error) {
	exportURL := SheetExportURL(ExtractSheetID(sheetURLOrID), gid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cases: build sheet request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cases: fetch sheet: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("cases: fetch sheet: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Import reads CSV rows from r and writes ready cases to the store.
func (i *Importer) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportReport, error) {
	syncMedia := opts.FetchResources && !opts.DryRun
	if syncMedia {
		if strings.TrimSpace(opts.Bucket) == "" {
			return nil, ErrBucketRequired
		}
		if i.objects == nil {
			return nil, errors.New("cases: object store is not configured")
		}
	}
	if !opts.DryRun && i.store == nil {
		return nil, errors.New("cases: case store is not configured")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &ImportReport{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cases: read csv header: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}

	report := &ImportReport{Columns: len(headers)}
	i.logger.Info("importing cases", "columns", len(headers), "dry_run", opts.DryRun, "fetch_resources", opts.FetchResources)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("cases: read csv row: %w", err)
		}
		row := zipRow(headers, record)

		caseID := strings.TrimSpace(row[ColumnCaseID])
		if caseID == "" || !IsRowReady(row) {
			report.Skipped++
			continue
		}

		c := Case{
			CaseID:          caseID,
			SparkTitle:      strings.TrimSpace(row[ColumnSparkTitle]),
			RevealTitle:     strings.TrimSpace(row[ColumnRevealTitle]),
			SeriesName:      strings.TrimSpace(row[ColumnSeriesName]),
			DifficultyLevel: strings.TrimSpace(row[ColumnDifficulty]),
			RawRow:          rawRow(row),
		}
		media := ExtractMediaURLs(row)

		if opts.DryRun {
			planned := PlannedCase{CaseID: caseID, SparkTitle: c.SparkTitle}
			for _, m := range media {
				planned.Resources = append(planned.Resources, PlannedResource{
					ResourceID:   ResourceIDFromURL(m.URL, m.Index),
					ResourceType: InferResourceType(m.URL),
					URL:          m.URL,
				})
			}
			report.Planned = append(report.Planned, planned)
			i.logger.Info("dry-run: would import case", "case_id", caseID, "spark_title", c.SparkTitle, "resources", len(planned.Resources))
			continue
		}

		created, err := i.store.UpsertCase(ctx, c)
		if err != nil {
			return report, err
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}

		if !opts.FetchResources {
			continue
		}
		for _, m := range media {
			res, resCreated, err := i.store.UpsertResource(ctx, Resource{
				CaseID:       caseID,
				ResourceID:   ResourceIDFromURL(m.URL, m.Index),
				ResourceType: InferResourceType(m.URL),
				OriginalURL:  m.URL,
			})
			if err != nil {
				return report, err
			}
			if resCreated {
				report.ResourcesCreated++
			}
			if res.IsSynced || !syncMedia {
				continue
			}
			key, err := i.mirror(ctx, opts.Bucket, *res)
			if err != nil {
				report.ResourcesFailed++
				i.logger.Warn("resource sync failed", "case_id", caseID, "resource", res.ResourceID, "error", err)
				continue
			}
			report.ResourcesSynced++
			i.logger.Info("resource synced", "case_id", caseID, "resource", res.ResourceID, "s3_key", key)
		}
	}

	i.logger.Info("import complete",
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"resources_created", report.ResourcesCreated,
		"resources_synced", report.ResourcesSynced,
		"resources_failed", report.ResourcesFailed,
	)
	return report, nil
}

// mirror downloads a resource and uploads it under cases/{case_id}/{resource_id}{ext}.
func (i *Importer) mirror(ctx context.Context, bucket string, res Resource) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, mediaFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, res.OriginalURL, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	key := fmt.Sprintf("cases/%s/%s%s", res.CaseID, res.ResourceID, FileExtension(res.OriginalURL, contentType))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := i.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if err := i.store.MarkResourceSynced(ctx, res.CaseID, res.ResourceID, key); err != nil {
		return "", err
	}
	return key, nil
}

// IsRowReady reports whether a row should be imported.
func IsRowReady(row map[string]string) bool {
	status := strings.ToLower(strings.TrimSpace(row[ColumnConversionStatus]))
	trigger := strings.ToLower(strings.TrimSpace(row[ColumnSeedTrigger]))
	if status == "converted" || trigger == "case_ready" {
		return true
	}
	return strings.TrimSpace(row[ColumnCaseID]) != ""
}

// ExtractMediaURLs returns the http(s) media URLs of a row ordered by column index.
func ExtractMediaURLs(row map[string]string) []MediaURL {
	var out []MediaURL
	for key, value := range row {
		m := mediaURLColumn.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		u := strings.TrimSpace(value)
		if u == "" || !strings.HasPrefix(u, "http") {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, MediaURL{Index: idx, URL: u})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

// ResourceIDFromURL derives a resource id from the URL's file stem, or
// resource_{index} when the stem is too short or empty after cleaning.
func ResourceIDFromURL(rawURL string, index int) string {
	if p := urlPath(rawURL); p != "" {
		base := path.Base(p)
		stem := strings.TrimSuffix(base, path.Ext(base))
		if base != "/" && base != "." && len(stem) > 2 {
			clean := unsafeIDChars.ReplaceAllString(strings.ToLower(stem), "_")
			clean = strings.Trim(repeatedUnderscore.ReplaceAllString(clean, "_"), "_")
			if clean != "" {
				return clean
			}
		}
	}
	return fmt.Sprintf("resource_%d", index)
}

var typeExtensions = []struct {
	kind string
	exts []string
}{
	{ResourceTypeImage, []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}},
	{ResourceTypePDF, []string{".pdf"}},
	{ResourceTypeAudio, []string{".mp3", ".wav", ".m4a", ".ogg", ".aac"}},
	{ResourceTypeVideo, []string{".mp4", ".mov", ".avi", ".webm"}},
}

// InferResourceType classifies a media URL by extension, then by MIME type.
func InferResourceType(rawURL string) string {
	p := strings.ToLower(urlPath(rawURL))
	for _, group := range typeExtensions {
		for _, ext := range group.exts {
			if strings.Contains(p, ext) {
				return group.kind
			}
		}
	}
	mimeType := mime.TypeByExtension(path.Ext(p))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return ResourceTypeImage
	case strings.HasPrefix(mimeType, "audio/"):
		return ResourceTypeAudio
	case strings.HasPrefix(mimeType, "video/"):
		return ResourceTypeVideo
	case strings.HasPrefix(mimeType, "application/pdf"):
		return ResourceTypePDF
	}
	return ResourceTypeUnknown
}

var preferredExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"audio/mpeg":      ".mp3",
	"audio/wav":       ".wav",
	"video/mp4":       ".mp4",
}

// FileExtension returns the URL's extension, or one derived from contentType.
func FileExtension(rawURL, contentType string) string {
	p := strings.ToLower(urlPath(rawURL))
	if ext := path.Ext(path.Base(p)); ext != "" && ext != "." {
		return ext
	}
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if mediaType == "" {
		return ""
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// ExtractSheetID returns the sheet id from a Google Sheets URL, or the input unchanged.
func ExtractSheetID(urlOrID string) string {
	urlOrID = strings.TrimSpace(urlOrID)
	if strings.Contains(urlOrID, "docs.google.com") {
		if m := sheetIDPattern.FindStringSubmatch(urlOrID); m != nil {
			return m[1]
		}
	}
	return urlOrID
}

// SheetExportURL builds the CSV export URL for a sheet tab.
func SheetExportURL(sheetID, gid string) string {
	if strings.TrimSpace(gid) == "" {
		gid = "0"
	}
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s", sheetID, gid)
}

func urlPath(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Path
}

func zipRow(headers, record []string) map[string]string {
	row := make(map[string]string, len(headers))
	for idx, h := range headers {
		if idx < len(record) {
			row[h] = record[idx]
		} else {
			row[h] = ""
		}
	}
	return row
}

func rawRow(row map[string]string) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
