package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/command"
	"github.com/FriendsOfShopware/automation-bot/internal/dispatch"
	"github.com/FriendsOfShopware/automation-bot/internal/exchange"
	"github.com/FriendsOfShopware/automation-bot/internal/identity"
	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
	"github.com/FriendsOfShopware/automation-bot/internal/minter"
	"github.com/FriendsOfShopware/automation-bot/internal/storage"
	"github.com/google/go-github/v66/github"
)

// stubVerifier accepts any non-empty assertion as testActor unless err is
// set.
type stubVerifier struct {
	err error
}

const testActor = "frosh-automation[bot]"

func (v *stubVerifier) Verify(ctx context.Context, rawAssertion string) (string, error) {
	if rawAssertion == "" {
		return "", identity.ErrMissingCredential
	}
	if v.err != nil {
		return "", v.err
	}
	return testActor, nil
}

// stubMinter counts mints and revokes.
type stubMinter struct {
	mu        sync.Mutex
	mintErr   error
	revokeErr error
	minted    []int64
	revoked   []string
}

func (m *stubMinter) Mint(ctx context.Context, repositoryID int64) (minter.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mintErr != nil {
		return minter.Credential{}, m.mintErr
	}
	m.minted = append(m.minted, repositoryID)
	return minter.Credential{Token: "ghs_minted", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *stubMinter) Revoke(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return m.revokeErr
	}
	m.revoked = append(m.revoked, token)
	return nil
}

type fakeGitHub struct {
	comments []string
}

func (f *fakeGitHub) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeGitHub) CreateCommitStatus(ctx context.Context, owner, repo, sha string, status *github.RepoStatus) error {
	return nil
}

type stubDispatcher struct {
	req *dispatch.Request
	err error
}

func (d *stubDispatcher) Dispatch(ctx context.Context, req dispatch.Request) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.req = &req
	return "exec-new", nil
}

type stubRepos struct{}

func (stubRepos) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	return &github.PullRequest{
		Head: &github.PullRequestBranch{
			Ref: github.String("fix/typo"),
			SHA: github.String("abc123"),
			Repo: &github.Repository{
				Name:  github.String(repo),
				Owner: &github.User{Login: github.String("contributor")},
			},
		},
		Base: &github.PullRequestBranch{
			Repo: &github.Repository{
				ID:    github.Int64(4321),
				Name:  github.String(repo),
				Owner: &github.User{Login: github.String(owner)},
			},
		},
	}, nil
}

func (stubRepos) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	return &github.Repository{
		ID:    github.Int64(4321),
		Name:  github.String(repo),
		Owner: &github.User{Login: github.String(owner)},
	}, nil
}

func (stubRepos) GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	return "def456", nil
}

type testEnv struct {
	router     http.Handler
	verifier   *stubVerifier
	minter     *stubMinter
	dispatcher *stubDispatcher
	github     *fakeGitHub
	ledger     *ledger.Store
	exchange   exchange.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "broker.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.BootstrapSQLite(context.Background(), db); err != nil {
		t.Fatalf("BootstrapSQLite: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := command.Builtins(command.ArgDeps{}, logger)
	if err != nil {
		t.Fatalf("Builtins: %v", err)
	}

	env := &testEnv{
		verifier:   &stubVerifier{},
		minter:     &stubMinter{},
		dispatcher: &stubDispatcher{},
		github:     &fakeGitHub{},
		ledger:     ledger.NewStore(db),
		exchange:   exchange.NewSQLiteStore(db),
	}
	srv := New(Config{Listen: ":0", APIKey: "test-key"}, Deps{
		Verifier:   env.verifier,
		Minter:     env.minter,
		Exchange:   env.exchange,
		Executions: env.ledger,
		Registry:   registry,
		Dispatcher: env.dispatcher,
		Repos:      stubRepos{},
		GitHub:     env.github,
	}, logger)
	env.router = srv.setupRoutes()
	return env
}

// seedExecution creates one execution with a live exchange record.
func (env *testEnv) seedExecution(t *testing.T, id string, status ledger.Status) {
	t.Helper()
	ctx := context.Background()
	pr := 7
	exec := &ledger.Execution{
		ID:       id,
		Command:  "fix-cs",
		PRNumber: &pr,
		Target: ledger.Target{
			RepositoryID: 4321,
			HeadOwner:    "contributor",
			HeadRepo:     "shopware",
			HeadBranch:   "fix/typo",
			HeadSHA:      "abc123",
			BaseOwner:    "FriendsOfShopware",
			BaseRepo:     "shopware",
		},
		TriggeredBy:   "octocat",
		TriggerSource: ledger.SourceWebhook,
	}
	if err := env.ledger.Create(ctx, exec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status != ledger.StatusPending {
		if err := env.ledger.Transition(ctx, id, []ledger.Status{ledger.StatusPending}, status, nil); err != nil {
			t.Fatalf("Transition: %v", err)
		}
	}
	if err := exchange.PutRecord(ctx, env.exchange, id, exchange.Record{RepositoryID: 4321}, 10*time.Minute); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
}

func (env *testEnv) do(t *testing.T, method, path string, headers map[string]string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, rec.Body.String())
	}
	return e
}

var runnerHeaders = map[string]string{"Authorization": "Bearer assertion"}

func reportHeaders() map[string]string {
	return map[string]string{
		"Authorization":       "Bearer assertion",
		"X-Minted-Credential": "ghs_minted",
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, "GET", "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var h HealthzResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" {
		t.Fatalf("unexpected health status: %s", h.Status)
	}
}

func TestGenerateCredentialHappyPath(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusPending)

	rec := env.do(t, "POST", "/credential/exec-1", runnerHeaders, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var resp CredentialResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "ghs_minted" {
		t.Fatalf("unexpected token: %s", resp.Token)
	}
	if resp.Execution == nil || resp.Execution.ID != "exec-1" {
		t.Fatalf("execution context missing: %+v", resp.Execution)
	}
	if resp.Execution.Status != ledger.StatusRunning {
		t.Fatalf("execution must be running after exchange, got %s", resp.Execution.Status)
	}

	if len(env.minter.minted) != 1 || env.minter.minted[0] != 4321 {
		t.Fatalf("token not minted for the recorded repository: %v", env.minter.minted)
	}

	// The exchange record survives the mint; only report/revoke remove it.
	if _, err := env.exchange.Get(context.Background(), "exec-1"); err != nil {
		t.Fatalf("exchange record must survive the exchange: %v", err)
	}
}

func TestGenerateCredentialReplayRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusPending)

	if rec := env.do(t, "POST", "/credential/exec-1", runnerHeaders, nil); rec.Code != http.StatusOK {
		t.Fatalf("first exchange: status = %d", rec.Code)
	}

	rec := env.do(t, "POST", "/credential/exec-1", runnerHeaders, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("replay: status = %d body = %s", rec.Code, rec.Body.String())
	}
	if e := decodeError(t, rec); e.Code != codeInvalidTransition {
		t.Fatalf("replay: code = %s", e.Code)
	}
	if len(env.minter.minted) != 1 {
		t.Fatalf("replay must not mint a second credential: %v", env.minter.minted)
	}
}

func TestGenerateCredentialUnknownID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, "POST", "/credential/nope", runnerHeaders, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeExchangeNotFound {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestGenerateCredentialMissingAssertion(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusPending)

	rec := env.do(t, "POST", "/credential/exec-1", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeMissingCredential {
		t.Fatalf("code = %s", e.Code)
	}
	if len(env.minter.minted) != 0 {
		t.Fatalf("nothing must be minted without an assertion")
	}
}

func TestGenerateCredentialUntrustedActor(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.verifier.err = identity.ErrUntrustedActor
	env.seedExecution(t, "exec-1", ledger.StatusPending)

	rec := env.do(t, "POST", "/credential/exec-1", runnerHeaders, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeUntrustedActor {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestGenerateCredentialMintFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.minter.mintErr = errors.New("upstream denied")
	env.seedExecution(t, "exec-1", ledger.StatusPending)

	rec := env.do(t, "POST", "/credential/exec-1", runnerHeaders, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeMintFailed {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestReportHappyPath(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusRunning)

	rec := env.do(t, "POST", "/report/exec-1", reportHeaders(), []byte(`{"changes":true}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	exec, err := env.ledger.Get(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if exec.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed, got %s", exec.Status)
	}
	if string(exec.Result) != `{"changes":true}` {
		t.Fatalf("result not recorded: %s", string(exec.Result))
	}

	// Post-execution handler ran: fix-cs commented on the PR.
	if len(env.github.comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(env.github.comments))
	}

	// Credential revoked and exchange record cleaned up.
	if len(env.minter.revoked) != 1 || env.minter.revoked[0] != "ghs_minted" {
		t.Fatalf("credential not revoked: %v", env.minter.revoked)
	}
	if _, err := env.exchange.Get(context.Background(), "exec-1"); !errors.Is(err, exchange.ErrNotFound) {
		t.Fatalf("exchange record must be deleted after report, got %v", err)
	}
}

func TestReportMissingMintedCredential(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusRunning)

	rec := env.do(t, "POST", "/report/exec-1", runnerHeaders, []byte(`{"changes":true}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeMissingCredential {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestReportUnknownExecution(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, "POST", "/report/nope", reportHeaders(), []byte(`{}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeExecutionNotFound {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestReportMalformedPayload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusRunning)

	rec := env.do(t, "POST", "/report/exec-1", reportHeaders(), []byte(`{broken`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeMalformedPayload {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestReportDoubleReportConflicts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusRunning)

	if rec := env.do(t, "POST", "/report/exec-1", reportHeaders(), []byte(`{"changes":false}`)); rec.Code != http.StatusOK {
		t.Fatalf("first report: status = %d", rec.Code)
	}

	rec := env.do(t, "POST", "/report/exec-1", reportHeaders(), []byte(`{"changes":false}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("double report: status = %d body = %s", rec.Code, rec.Body.String())
	}
	if e := decodeError(t, rec); e.Code != codeInvalidTransition {
		t.Fatalf("code = %s", e.Code)
	}

	// Revoke ran once, for the first report only.
	if len(env.minter.revoked) != 1 {
		t.Fatalf("expected exactly one revoke, got %d", len(env.minter.revoked))
	}
}

func TestReportHandlerFailureMarksExecutionFailed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusRunning)

	// Valid JSON the fix-cs handler cannot decode.
	rec := env.do(t, "POST", "/report/exec-1", reportHeaders(), []byte(`"oops"`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp ReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || !resp.OK {
		t.Fatalf("expected ok response, got %s", rec.Body.String())
	}

	exec, err := env.ledger.Get(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if exec.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", exec.Status)
	}
}

func TestReportRevokeFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.minter.revokeErr = errors.New("upstream down")
	env.seedExecution(t, "exec-1", ledger.StatusRunning)

	rec := env.do(t, "POST", "/report/exec-1", reportHeaders(), []byte(`{"changes":false}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	// Cleanup is best-effort: the record goes away regardless.
	if _, err := env.exchange.Get(context.Background(), "exec-1"); !errors.Is(err, exchange.ErrNotFound) {
		t.Fatalf("exchange record must be deleted even when revoke fails, got %v", err)
	}
}

func TestRevokeCredential(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusRunning)

	rec := env.do(t, "POST", "/credential/exec-1/revoke", reportHeaders(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(env.minter.revoked) != 1 {
		t.Fatalf("expected 1 revoke, got %d", len(env.minter.revoked))
	}
	if _, err := env.exchange.Get(context.Background(), "exec-1"); !errors.Is(err, exchange.ErrNotFound) {
		t.Fatalf("exchange record must be deleted, got %v", err)
	}
}

func TestRevokeCredentialUpstreamFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.minter.revokeErr = errors.New("upstream down")
	env.seedExecution(t, "exec-1", ledger.StatusRunning)

	rec := env.do(t, "POST", "/credential/exec-1/revoke", reportHeaders(), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeRevokeFailed {
		t.Fatalf("code = %s", e.Code)
	}

	// The record is removed even when the upstream revoke failed.
	if _, err := env.exchange.Get(context.Background(), "exec-1"); !errors.Is(err, exchange.ErrNotFound) {
		t.Fatalf("exchange record must be deleted, got %v", err)
	}
}

func TestDispatchRequiresAPIKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, "POST", "/dispatch", nil, []byte(`{"command":"fix-cs","repo":"a/b","pr":1}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = env.do(t, "POST", "/dispatch", map[string]string{"Authorization": "Bearer wrong-key"},
		[]byte(`{"command":"fix-cs","repo":"a/b","pr":1}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func dashboardHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer test-key"}
}

func TestDispatchPRMode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, "POST", "/dispatch", dashboardHeaders(),
		[]byte(`{"command":"fix-cs","repo":"FriendsOfShopware/shopware","pr":7,"triggered_by":"admin"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var resp DispatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ExecutionID != "exec-new" {
		t.Fatalf("unexpected execution id: %s", resp.ExecutionID)
	}

	req := env.dispatcher.req
	if req == nil {
		t.Fatalf("dispatcher not called")
	}
	if req.Target.RepositoryID != 4321 {
		t.Fatalf("target repository id = %d", req.Target.RepositoryID)
	}
	if req.Target.HeadOwner != "contributor" || req.Target.BaseOwner != "FriendsOfShopware" {
		t.Fatalf("unexpected target: %+v", req.Target)
	}
	if req.PRNumber == nil || *req.PRNumber != 7 {
		t.Fatalf("pr number not carried: %v", req.PRNumber)
	}
	if req.TriggerSource != ledger.SourceDashboard {
		t.Fatalf("trigger source = %s", req.TriggerSource)
	}
}

func TestDispatchRefMode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, "POST", "/dispatch", dashboardHeaders(),
		[]byte(`{"command":"fix-cs","repo":"FriendsOfShopware/shopware","mode":"ref","ref":"main"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	req := env.dispatcher.req
	if req == nil {
		t.Fatalf("dispatcher not called")
	}
	if req.Target.HeadBranch != "main" || req.Target.HeadSHA != "def456" {
		t.Fatalf("unexpected target: %+v", req.Target)
	}
	if req.Target.HeadOwner != req.Target.BaseOwner {
		t.Fatalf("ref mode must target the repository's own branch")
	}
	if req.PRNumber != nil {
		t.Fatalf("ref mode must not carry a pr number")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.dispatcher.err = command.ErrUnknownCommand

	rec := env.do(t, "POST", "/dispatch", dashboardHeaders(),
		[]byte(`{"command":"rm-rf","repo":"a/b","pr":1}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeUnknownCommand {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestDispatchValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing command", `{"repo":"a/b","pr":1}`},
		{"bad repo", `{"command":"fix-cs","repo":"nope","pr":1}`},
		{"missing pr", `{"command":"fix-cs","repo":"a/b"}`},
		{"missing ref", `{"command":"fix-cs","repo":"a/b","mode":"ref"}`},
		{"bad mode", `{"command":"fix-cs","repo":"a/b","mode":"cron"}`},
	}
	for _, tc := range cases {
		rec := env.do(t, "POST", "/dispatch", dashboardHeaders(), []byte(tc.body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", tc.name, rec.Code)
		}
	}
}

func TestListExecutions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedExecution(t, "exec-1", ledger.StatusPending)
	env.seedExecution(t, "exec-2", ledger.StatusRunning)

	rec := env.do(t, "GET", "/executions", dashboardHeaders(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var execs []*ledger.Execution
	if err := json.Unmarshal(rec.Body.Bytes(), &execs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(execs))
	}
}

func TestListCommands(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, "GET", "/commands", dashboardHeaders(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var infos []command.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(infos))
	}
	if infos[0].Name != "create-instance" || infos[1].Name != "fix-cs" {
		t.Fatalf("commands not sorted: %+v", infos)
	}
}
