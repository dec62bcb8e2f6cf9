package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ggoodman/lsp-server-go/internal/logctx"
	"github.com/ggoodman/lsp-server-go/internal/watcher"
	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/ggoodman/lsp-server-go/lspservice"
)

func (e *Engine) decodeParams(method lsp.Method, raw json.RawMessage, out any) error {
	if e.validator != nil {
		if err := e.validator.Validate(method, raw); err != nil {
			return err
		}
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %w", lspservice.ErrInvalidParams, method, err)
	}
	return nil
}

func (e *Engine) initialize(ctx context.Context, raw json.RawMessage) (*lsp.InitializeResult, error) {
	params := new(lsp.InitializeParams)
	if err := e.decodeParams(lsp.InitializeMethod, raw, params); err != nil {
		return nil, err
	}
	caps := &params.Capabilities
	if params.ClientInfo != nil {
		logctx.SetClientName(ctx, params.ClientInfo.Name)
	}

	e.stateMu.Lock()
	e.clientCaps = caps
	if params.RootURI != nil {
		e.rootURI = *params.RootURI
	}
	e.stateMu.Unlock()

	if err := e.reg.SupplyCapabilities(ctx, caps); err != nil {
		for _, ce := range lspservice.CapabilityErrors(err) {
			e.log.WarnContext(ctx, "engine.capability.supply_fail",
				slog.String("capability", ce.Capability),
				slog.String("registration_id", ce.RegistrationID),
				slog.String("err", ce.Err.Error()),
			)
		}
		if len(lspservice.CapabilityErrors(err)) == 0 {
			return nil, err
		}
	}

	result := &lsp.InitializeResult{}
	if regs := e.reg.Resolve(lsp.InitializeMethod); len(regs) > 0 {
		res, err := e.invoke(ctx, regs[0], params, raw)
		if err != nil {
			return nil, err
		}
		if result, err = asInitializeResult(res); err != nil {
			return nil, err
		}
	}

	fillCapabilities(&result.Capabilities, e.reg.StaticCapabilities(caps))
	if result.ServerInfo == nil {
		result.ServerInfo = e.serverInfo
	}
	return result, nil
}

// asInitializeResult accepts the typed result or anything that encodes like
// one, which is what raw initialize handlers return.
func asInitializeResult(res any) (*lsp.InitializeResult, error) {
	switch v := res.(type) {
	case *lsp.InitializeResult:
		if v != nil {
			return v, nil
		}
		return &lsp.InitializeResult{}, nil
	case nil:
		return &lsp.InitializeResult{}, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode initialize result: %w", err)
	}
	out := &lsp.InitializeResult{}
	if err := json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	return out, nil
}

// fillCapabilities sets every capability the handler left unset from the
// registry's static capabilities.
func fillCapabilities(dst *lsp.ServerCapabilities, src lsp.ServerCapabilities) {
	if dst.TextDocumentSync == nil {
		dst.TextDocumentSync = src.TextDocumentSync
	}
	if dst.HoverProvider == nil {
		dst.HoverProvider = src.HoverProvider
	}
	if dst.CompletionProvider == nil {
		dst.CompletionProvider = src.CompletionProvider
	}
	if dst.SignatureHelpProvider == nil {
		dst.SignatureHelpProvider = src.SignatureHelpProvider
	}
	if dst.DefinitionProvider == nil {
		dst.DefinitionProvider = src.DefinitionProvider
	}
	if dst.ReferencesProvider == nil {
		dst.ReferencesProvider = src.ReferencesProvider
	}
	if dst.DocumentFormattingProvider == nil {
		dst.DocumentFormattingProvider = src.DocumentFormattingProvider
	}
	if dst.DocumentOnTypeFormattingProvider == nil {
		dst.DocumentOnTypeFormattingProvider = src.DocumentOnTypeFormattingProvider
	}
	if dst.ExecuteCommandProvider == nil {
		dst.ExecuteCommandProvider = src.ExecuteCommandProvider
	}
	if dst.Experimental == nil {
		dst.Experimental = src.Experimental
	}
}

func (e *Engine) finishInitialize(ok bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state != stateInitializing {
		return
	}
	if ok {
		e.state = stateInitialized
	} else {
		e.state = stateUninitialized
	}
}

// shutdown runs every shutdown handler. Handler failures are logged; the
// client still gets a null result and the server stops serving requests.
func (e *Engine) shutdown(ctx context.Context, raw json.RawMessage) error {
	e.stateMu.Lock()
	e.state = stateShutdown
	e.stateMu.Unlock()

	for _, reg := range e.reg.Resolve(lsp.ShutdownMethod) {
		params, err := reg.Descriptor().Decode(raw)
		if err == nil {
			_, err = reg.Invoke(ctx, params)
		}
		if err != nil {
			e.log.ErrorContext(ctx, "engine.shutdown.handler_fail", slog.String("registration_id", reg.ID()), slog.String("err", err.Error()))
		}
	}
	e.stop()
	return nil
}

func (e *Engine) exit(ctx context.Context, raw json.RawMessage) {
	for _, reg := range e.reg.Resolve(lsp.ExitMethod) {
		params, err := reg.Descriptor().Decode(raw)
		if err == nil {
			_, err = reg.Invoke(ctx, params)
		}
		if err != nil {
			e.log.ErrorContext(ctx, "engine.exit.handler_fail", slog.String("registration_id", reg.ID()), slog.String("err", err.Error()))
		}
	}

	e.stateMu.Lock()
	if e.state == stateShutdown {
		e.exitCode = 0
	} else {
		e.exitCode = 1
	}
	e.state = stateExited
	code := e.exitCode
	e.stateMu.Unlock()

	e.log.InfoContext(ctx, "engine.exit", slog.Int("code", code))
	e.stop()
	e.doneOnce.Do(func() { close(e.done) })
}

// startBackground begins dynamic registration and, when configured and the
// client cannot watch files for us, the file watcher. It runs once.
func (e *Engine) startBackground(ctx context.Context) {
	e.bgOnce.Do(func() {
		e.stateMu.Lock()
		caps := e.clientCaps
		root := e.rootURI
		e.stateMu.Unlock()

		if out := e.outbound(); out != nil {
			e.bgWG.Add(1)
			go func() {
				defer e.bgWG.Done()
				e.syncDynamicRegistrations(e.baseCtx, client{d: out}, caps)
			}()
		}

		if !e.watchFallback {
			return
		}
		if d, ok := e.reg.Lookup(lsp.DidChangeWatchedFilesMethod); ok && d.SupportsDynamicRegistration(caps) {
			return
		}
		dir := e.watchRoot
		if dir == "" {
			dir = root.Path()
		}
		if dir == "" {
			e.log.WarnContext(ctx, "engine.watch.no_root")
			return
		}
		w, err := watcher.New(dir, watcher.WithLogger(e.log))
		if err != nil {
			e.log.ErrorContext(ctx, "engine.watch.start_fail", slog.String("root", dir), slog.String("err", err.Error()))
			return
		}
		e.log.InfoContext(ctx, "engine.watch.start", slog.String("root", w.Root()))
		e.bgWG.Add(1)
		go func() {
			defer e.bgWG.Done()
			defer w.Close()
			if err := w.Run(e.baseCtx, func(ev lsp.FileEvent) { e.emitFileEvent(w.Root(), ev) }); err != nil && e.baseCtx.Err() == nil {
				e.log.Error("engine.watch.fail", slog.String("err", err.Error()))
			}
		}()
	})
}

// emitFileEvent submits a didChangeWatchedFiles notification for ev when a
// live registration watches it. Watchers are read at event time so
// registrations added later take effect.
func (e *Engine) emitFileEvent(root string, ev lsp.FileEvent) {
	wanted := false
	for _, reg := range e.reg.Resolve(lsp.DidChangeWatchedFilesMethod) {
		opts, ok := reg.Options().(lsp.DidChangeWatchedFilesRegistrationOptions)
		if !ok {
			continue
		}
		matched, err := watcher.Match(root, opts.Watchers, ev)
		if err != nil {
			e.log.Warn("engine.watch.bad_pattern", slog.String("registration_id", reg.ID()), slog.String("err", err.Error()))
			continue
		}
		if matched {
			wanted = true
			break
		}
	}
	if !wanted {
		return
	}

	note, err := newNotification(lsp.DidChangeWatchedFilesMethod, lsp.DidChangeWatchedFilesParams{Changes: []lsp.FileEvent{ev}})
	if err != nil {
		e.log.Error("engine.watch.encode_fail", slog.String("err", err.Error()))
		return
	}
	e.Submit(e.baseCtx, note, nil)
}
