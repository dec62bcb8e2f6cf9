package lspservice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/ggoodman/lsp-server-go/lspservice/lspservicetest"
)

func TestCapabilitiesSuppliedOncePerHandler(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	reg := NewRegistry()
	h := &lspservicetest.TextDocumentSync{Name: "sync", Recorder: rec}
	mustAdd(t, reg, h)

	caps := &lsp.ClientCapabilities{TextDocument: &lsp.TextDocumentClientCapabilities{
		Synchronization: &lsp.SynchronizationCapabilities{DidSave: lsp.Bool(true)},
	}}
	if err := reg.SupplyCapabilities(context.Background(), caps); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := reg.SupplyCapabilities(context.Background(), caps); err != nil {
		t.Fatalf("second supply: %v", err)
	}
	if got := rec.CapabilitySupplies("sync", "synchronization"); got != 1 {
		t.Fatalf("expected exactly one supply across four descriptors, got %d", got)
	}
	if h.Caps == nil || !lsp.BoolValue(h.Caps.DidSave) {
		t.Fatalf("expected synchronization capability to reach handler, got %+v", h.Caps)
	}
}

func TestCapabilitiesZeroValueWhenClientSilent(t *testing.T) {
	reg := NewRegistry()
	h := &lspservicetest.TextDocumentSync{Name: "sync"}
	mustAdd(t, reg, h)
	if err := reg.SupplyCapabilities(context.Background(), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if h.Caps == nil {
		t.Fatalf("expected a zero capability value, got nil")
	}
}

func TestCapabilitiesSuppliedOnLateAdd(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	reg := NewRegistry()
	if err := reg.SupplyCapabilities(context.Background(), &lsp.ClientCapabilities{}); err != nil {
		t.Fatalf("supply: %v", err)
	}

	mustAdd(t, reg, &lspservicetest.Hover{Name: "late", Recorder: rec})
	if got := rec.CapabilitySupplies("late", "hover"); got != 1 {
		t.Fatalf("expected late handler to be supplied during Add, got %d", got)
	}
}

func TestCapabilityFailureIsNonFatal(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	reg := NewRegistry()
	boom := errors.New("boom")
	mustAdd(t, reg,
		&lspservicetest.Hover{Name: "bad", Recorder: rec, CapabilityErr: boom},
		&lspservicetest.TextDocumentSync{Name: "good", Recorder: rec},
	)

	err := reg.SupplyCapabilities(context.Background(), &lsp.ClientCapabilities{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap boom, got %v", err)
	}
	ces := CapabilityErrors(err)
	if len(ces) != 1 || ces[0].Method != lsp.HoverMethod || ces[0].Capability != "textDocument.hover" {
		t.Fatalf("unexpected capability errors: %+v", ces)
	}
	if got := rec.CapabilitySupplies("good", "synchronization"); got != 1 {
		t.Fatalf("expected other handlers to be supplied, got %d", got)
	}
	if got := len(reg.Resolve(lsp.HoverMethod)); got != 1 {
		t.Fatalf("expected failing handler to stay registered, got %d", got)
	}
}

func TestSupplyCapabilitiesHonorsCancelledContext(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := reg.SupplyCapabilities(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// hoverCompletion consumes two capabilities. The first receiver called
// signals entered and waits for release.
type hoverCompletion struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	active    atomic.Int32
	overlap   atomic.Bool
	hover     atomic.Int32
	completes atomic.Int32
}

func (h *hoverCompletion) Hover(ctx context.Context, p *lsp.HoverParams) (*lsp.Hover, error) {
	return nil, nil
}

func (h *hoverCompletion) Completion(ctx context.Context, p *lsp.CompletionParams) (*lsp.CompletionList, error) {
	return nil, nil
}

func (h *hoverCompletion) receive(count *atomic.Int32) error {
	if h.active.Add(1) > 1 {
		h.overlap.Store(true)
	}
	defer h.active.Add(-1)
	h.once.Do(func() {
		close(h.entered)
		<-h.release
	})
	count.Add(1)
	return nil
}

func (h *hoverCompletion) SetHoverCapability(*lsp.HoverCapabilities) error {
	return h.receive(&h.hover)
}

func (h *hoverCompletion) SetCompletionCapability(*lsp.CompletionCapabilities) error {
	return h.receive(&h.completes)
}

func TestSupplyCapabilitiesCancelledPartWay(t *testing.T) {
	reg := NewRegistry()
	h := &hoverCompletion{entered: make(chan struct{}), release: make(chan struct{})}
	mustAdd(t, reg, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.SupplyCapabilities(ctx, &lsp.ClientCapabilities{}) }()

	<-h.entered
	cancel()
	close(h.release)
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled as is, got %v", err)
	}
	if got := h.hover.Load() + h.completes.Load(); got != 1 {
		t.Fatalf("expected one supply before cancellation, got %d", got)
	}

	if err := reg.SupplyCapabilities(context.Background(), &lsp.ClientCapabilities{}); err != nil {
		t.Fatalf("second supply: %v", err)
	}
	if h.hover.Load() != 1 || h.completes.Load() != 1 {
		t.Fatalf("expected the skipped capability on the next supply, got hover=%d completion=%d", h.hover.Load(), h.completes.Load())
	}
	if h.overlap.Load() {
		t.Fatalf("receivers of one handler ran concurrently")
	}
}

func TestLateAddResolvableOnlyAfterSupply(t *testing.T) {
	reg := NewRegistry()
	if err := reg.SupplyCapabilities(context.Background(), &lsp.ClientCapabilities{}); err != nil {
		t.Fatalf("supply: %v", err)
	}

	rec := &lspservicetest.Recorder{}
	block := make(chan struct{})
	added := make(chan error, 1)
	go func() {
		_, err := reg.Add(&lspservicetest.Hover{Name: "late", Recorder: rec, CapabilityBlock: block})
		added <- err
	}()

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		if got := len(reg.Resolve(lsp.HoverMethod)); got != 0 {
			close(block)
			t.Fatalf("registration resolvable while its capability supply is running: %d", got)
		}
		time.Sleep(time.Millisecond)
	}

	close(block)
	if err := <-added; err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := len(reg.Resolve(lsp.HoverMethod)); got != 1 {
		t.Fatalf("expected registration after supply, got %d", got)
	}
	if got := rec.CapabilitySupplies("late", "hover"); got != 1 {
		t.Fatalf("expected one supply, got %d", got)
	}
}

func TestServerCapabilitiesFold(t *testing.T) {
	reg := NewRegistry()
	mustAdd(t, reg,
		&lspservicetest.TextDocumentSync{Name: "full", Selector: lsp.ForPattern("**/*.cake")},
		&lspservicetest.TextDocumentSync{Name: "inc", Selector: lsp.ForPattern("**/*.cs"), SyncKind: lsp.TextDocumentSyncKindIncremental, IncludeText: true},
		&lspservicetest.Hover{Name: "hover"},
		&lspservicetest.Completion{Name: "dot", TriggerCharacters: []string{"."}, Selector: lsp.ForLanguage("go")},
		&lspservicetest.Completion{Name: "both", TriggerCharacters: []string{".", ":"}, Selector: lsp.ForLanguage("csharp")},
	)

	caps := reg.ServerCapabilities()
	b, err := json.Marshal(caps)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"textDocumentSync":{"openClose":true,"change":2,"save":{"includeText":true}},"hoverProvider":true,"completionProvider":{"triggerCharacters":[".",":"]}}`
	if string(b) != want {
		t.Fatalf("unexpected capabilities:\n got %s\nwant %s", b, want)
	}
}

func TestDynamicRegistrationSplit(t *testing.T) {
	reg := NewRegistry(WithIDGenerator(func() string { return "fixed" }))
	mustAdd(t, reg,
		&lspservicetest.Hover{Name: "hover", Selector: lsp.ForLanguage("go")},
		&lspservicetest.Completion{Name: "completion"},
	)
	client := &lsp.ClientCapabilities{TextDocument: &lsp.TextDocumentClientCapabilities{
		Hover: &lsp.HoverCapabilities{DynamicRegistration: lsp.Bool(true)},
	}}

	static := reg.StaticCapabilities(client)
	if static.HoverProvider != nil {
		t.Fatalf("expected dynamically registered hover to be left out of static capabilities")
	}
	if static.CompletionProvider == nil {
		t.Fatalf("expected completion to stay static")
	}

	dyn := reg.DynamicRegistrations(client)
	if len(dyn) != 1 || dyn[0].Method() != lsp.HoverMethod {
		t.Fatalf("unexpected dynamic registrations: %v", dyn)
	}
	b, _ := json.Marshal(RegistrationParams(dyn))
	want := `{"registrations":[{"id":"fixed","method":"textDocument/hover","registerOptions":{"documentSelector":[{"language":"go"}]}}]}`
	if string(b) != want {
		t.Fatalf("unexpected register payload:\n got %s\nwant %s", b, want)
	}
	b, _ = json.Marshal(UnregistrationParams(dyn))
	if got, want := string(b), `{"unregisterations":[{"id":"fixed","method":"textDocument/hover"}]}`; got != want {
		t.Fatalf("unexpected unregister payload: %s", got)
	}
}
