// Package stdio serves a single language client over stdin/stdout using the
// LSP base protocol: each JSON-RPC message is preceded by a Content-Length
// header and an optional Content-Type header.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : Content-Length headers, CRLF separated
//	Content type     : application/vscode-jsonrpc; charset=utf-8 (default)
//	Dispatch         : delegated to an engine.Engine
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	reg := lspservice.NewRegistry()
//	if _, err := reg.Add(myHandler); err != nil { log.Fatal(err) }
//	eng := engine.New(reg)
//	h := stdio.NewHandler(eng)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
//	os.Exit(eng.ExitCode())
package stdio
