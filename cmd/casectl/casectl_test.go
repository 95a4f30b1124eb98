package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	appconfig "github.com/wolfman30/ersim-ai-platform/internal/config"
	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

type memoryCases struct {
	cases     map[string]cases.Case
	resources map[string][]cases.Resource
}

func newMemoryCases() *memoryCases {
	return &memoryCases{cases: map[string]cases.Case{}, resources: map[string][]cases.Resource{}}
}

func (m *memoryCases) GetCase(ctx context.Context, caseID string) (*cases.Case, error) {
	c, ok := m.cases[caseID]
	if !ok {
		return nil, cases.ErrCaseNotFound
	}
	return &c, nil
}

func (m *memoryCases) ListResources(ctx context.Context, caseID string) ([]cases.Resource, error) {
	return m.resources[caseID], nil
}

func (m *memoryCases) UpsertCase(ctx context.Context, c cases.Case) (bool, error) {
	_, exists := m.cases[c.CaseID]
	m.cases[c.CaseID] = c
	return !exists, nil
}

func (m *memoryCases) UpsertResource(ctx context.Context, r cases.Resource) (*cases.Resource, bool, error) {
	m.resources[r.CaseID] = append(m.resources[r.CaseID], r)
	return &r, true, nil
}

func (m *memoryCases) MarkResourceSynced(ctx context.Context, caseID, resourceID, s3Key string) error {
	return nil
}

type cannedLLM struct{ text string }

func (c cannedLLM) Complete(ctx context.Context, req conversation.LLMRequest) (conversation.LLMResponse, error) {
	return conversation.LLMResponse{Text: c.text}, nil
}

func testDeps(store *memoryCases, llm conversation.LLMClient) *deps {
	return &deps{
		cfg:    &appconfig.Config{},
		logger: logging.New("error"),
		openStore: func(ctx context.Context) (caseStore, func(), error) {
			if store == nil {
				return nil, nil, errors.New("no database")
			}
			return store, func() {}, nil
		},
		objects: func(ctx context.Context) (cases.ObjectPutter, error) {
			return nil, errors.New("no object store")
		},
		llm: func(ctx context.Context) (conversation.LLMClient, error) {
			return llm, nil
		},
	}
}

func run(t *testing.T, rt *deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(rt)
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const sampleCSV = "Case_Organization_Case_ID,Case_Organization_Spark_Title,Developer_and_QA_Metadata_Conversion_Status,Resources_and_Media_Assets_Media_URL 1\n" +
	"case-7,Chest pain,converted,https://cdn.example.com/media/chest_xray.png\n"

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))
	return path
}

func TestImportDryRunSkipsDatabase(t *testing.T) {
	out, err := run(t, testDeps(nil, nil), "import", "--dry-run", writeCSV(t))
	require.NoError(t, err)

	var report cases.ImportReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Planned, 1)
	assert.Equal(t, "case-7", report.Planned[0].CaseID)
	require.Len(t, report.Planned[0].Resources, 1)
	assert.Equal(t, "chest_xray", report.Planned[0].Resources[0].ResourceID)
}

func TestImportWritesCasesWithoutMedia(t *testing.T) {
	store := newMemoryCases()
	_, err := run(t, testDeps(store, nil), "import", writeCSV(t))
	require.NoError(t, err)

	assert.Contains(t, store.cases, "case-7")
	assert.Empty(t, store.resources["case-7"])
}

type recordingPutter struct{ keys []string }

func (p *recordingPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.keys = append(p.keys, aws.ToString(params.Key))
	return &s3.PutObjectOutput{}, nil
}

type mediaServer struct{}

func (mediaServer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"image/png"}},
		Body:       io.NopCloser(strings.NewReader("png-bytes")),
	}, nil
}

func TestImportMirrorsMedia(t *testing.T) {
	store := newMemoryCases()
	putter := &recordingPutter{}
	rt := testDeps(store, nil)
	rt.cfg.AssetsBucket = "ersim-assets"
	rt.httpClient = mediaServer{}
	rt.objects = func(ctx context.Context) (cases.ObjectPutter, error) { return putter, nil }

	out, err := run(t, rt, "import", "--fetch-resources", writeCSV(t))
	require.NoError(t, err)

	var report cases.ImportReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.ResourcesCreated)
	assert.Equal(t, 1, report.ResourcesSynced)
	require.Len(t, store.resources["case-7"], 1)
	assert.Equal(t, cases.ResourceTypeImage, store.resources["case-7"][0].ResourceType)
	assert.Equal(t, []string{"cases/case-7/chest_xray.png"}, putter.keys)
}

func TestImportFetchResourcesNeedsObjectStore(t *testing.T) {
	_, err := run(t, testDeps(newMemoryCases(), nil), "import", "--fetch-resources", writeCSV(t))
	assert.ErrorContains(t, err, "no object store")
}

func TestPrimerFallsBackForUnknownCase(t *testing.T) {
	out, err := run(t, testDeps(newMemoryCases(), nil), "primer", "missing")
	require.NoError(t, err)

	var primer cases.Primer
	require.NoError(t, json.Unmarshal([]byte(out), &primer))
	assert.Equal(t, "missing", primer.CaseID)
	assert.Empty(t, primer.AvailableResources)
}

func TestPrimerReportsStoreErrors(t *testing.T) {
	_, err := run(t, testDeps(nil, nil), "primer", "case-7")
	assert.ErrorContains(t, err, "no database")
}

func TestProbePrintsNormalizedDecision(t *testing.T) {
	store := newMemoryCases()
	store.cases["case-7"] = cases.Case{CaseID: "case-7", RawRow: map[string]any{}}
	store.resources["case-7"] = []cases.Resource{{CaseID: "case-7", ResourceID: "ecg"}}
	llm := cannedLLM{text: "```json\n{\"speech_output\":\"Getting the ECG now.\",\"action_triggers\":[{\"type\":\"resource_request\",\"resource\":\"ecg\"},{\"type\":\"resource_request\",\"resource\":\"ct_head\"}]}\n```"}

	out, err := run(t, testDeps(store, llm), "probe", "case-7", "Get", "an", "ECG")
	require.NoError(t, err)

	var decision map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.Equal(t, "Getting the ECG now.", decision["speech_output"])
	assert.Equal(t, []any{map[string]any{"type": "resource_request", "resource": "ecg"}}, decision["action_triggers"])
}

func TestProbeRequiresUtterance(t *testing.T) {
	_, err := run(t, testDeps(newMemoryCases(), nil), "probe", "case-7")
	assert.Error(t, err)
}
