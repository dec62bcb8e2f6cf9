package lspservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ggoodman/lsp-server-go/lsp"
	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

func schemaReflector() *invopop.Reflector {
	return &invopop.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
}

// ParamsSchema reflects a JSON Schema for the params of d. Ad-hoc methods
// with raw params yield a schema accepting anything.
func (d *Descriptor) ParamsSchema() *invopop.Schema {
	return schemaReflector().Reflect(d.newParams())
}

// ResultSchema reflects a JSON Schema for the result of d, or nil for
// notifications.
func (d *Descriptor) ResultSchema() *invopop.Schema {
	if d.newResult == nil {
		return nil
	}
	return schemaReflector().Reflect(d.newResult())
}

// ParamsValidator checks raw params against the reflected params schema of
// each descriptor before they are decoded. Schemas compile lazily and are
// cached per method.
type ParamsValidator struct {
	catalog *Catalog

	mu       sync.Mutex
	compiled map[lsp.Method]*jsonschema.Schema
}

// NewParamsValidator builds a validator over the descriptors of c.
func NewParamsValidator(c *Catalog) *ParamsValidator {
	return &ParamsValidator{catalog: c, compiled: make(map[lsp.Method]*jsonschema.Schema)}
}

// Validate returns an error wrapping ErrInvalidParams when raw does not
// conform. Methods unknown to the catalog and empty params pass.
func (v *ParamsValidator) Validate(method lsp.Method, raw json.RawMessage) error {
	d, ok := v.catalog.Lookup(method)
	if !ok {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	sch, err := v.schemaFor(d)
	if err != nil {
		return err
	}
	var inst any
	if err := json.Unmarshal(trimmed, &inst); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidParams, method, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidParams, method, err)
	}
	return nil
}

func (v *ParamsValidator) schemaFor(d *Descriptor) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[d.method]; ok {
		return sch, nil
	}

	raw, err := json.Marshal(d.ParamsSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal params schema for %s: %w", d.method, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode params schema for %s: %w", d.method, err)
	}

	url := "mem:///params/" + strings.NewReplacer("/", ".", "$", "_").Replace(string(d.method)) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add params schema for %s: %w", d.method, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile params schema for %s: %w", d.method, err)
	}
	v.compiled[d.method] = sch
	return sch, nil
}
