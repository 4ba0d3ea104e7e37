// Package prompt implements the prompt assembler (C6): compiling a
// descriptor's body against an event/activation context into the final
// text handed to the CLI subprocess, with `include`/`rawInclude` template
// helpers guarded against cycles and excessive depth.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/a5c-ai/agentdispatch/pkg/constants"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/resource"
)

var log = logger.New("prompt:assembler")

// Activation records which sub-matcher selected the agent and with what.
type Activation struct {
	Reason string // e.g. "Path: src/**/*.go"
}

// Context is the data exposed to a compiled prompt template.
type Context struct {
	Event      *model.EventContext
	Agent      *model.Descriptor
	Activation Activation
	Peers      []model.DiscoverySummary

	// IncludeSource is set by include() for the nested render and is empty
	// at the top level; IncludeDepth and BaseURI are set by every render
	// (depth 0 and Render's baseURI at the top level).
	IncludeSource string
	IncludeDepth  int
	BaseURI       string

	extra map[string]any
}

// Get exposes arbitrary hash-param overrides passed to include() so
// templates can reference {{.Get "key"}}.
func (c Context) Get(key string) any {
	return c.extra[key]
}

// Assembler compiles descriptor bodies into final prompts.
type Assembler struct {
	Loader *resource.Loader
}

// New constructs an Assembler backed by loader for include()/rawInclude().
func New(loader *resource.Loader) *Assembler {
	return &Assembler{Loader: loader}
}

// Render compiles body against ctx, resolving include()/rawInclude() calls
// relative to baseURI. Rendering failures never abort the dispatch: they are
// converted to inline error markers in the output (§4.6).
func (a *Assembler) Render(body, baseURI string, ctx Context) string {
	active := map[string]bool{}
	return a.render(body, baseURI, ctx, active, 0)
}

func (a *Assembler) render(body, baseURI string, ctx Context, active map[string]bool, depth int) string {
	ctx.BaseURI = baseURI
	ctx.IncludeDepth = depth

	funcs := template.FuncMap{
		"include":    a.includeFunc(baseURI, ctx, active, depth),
		"rawInclude": a.rawIncludeFunc(baseURI),
	}

	tmpl, err := template.New("prompt").Funcs(funcs).Parse(body)
	if err != nil {
		return errorMarker("parsing template", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return errorMarker("rendering template", err)
	}
	return buf.String()
}

func (a *Assembler) includeFunc(baseURI string, parent Context, active map[string]bool, depth int) func(uri string, hashParams ...map[string]any) string {
	return func(uri string, hashParams ...map[string]any) string {
		if depth+1 > constants.MaxIncludeDepth {
			return errorMarker("include", fmt.Errorf("include depth exceeded %d at %q", constants.MaxIncludeDepth, uri))
		}

		resolved := resource.ResolveRelative(uri, baseURI)
		if active[resolved] {
			return errorMarker("include", fmt.Errorf("circular include of %q", resolved))
		}

		body, absent, err := a.Loader.Load(resolved, resource.FetchOpts{})
		if err != nil {
			return errorMarker("include", err)
		}
		if absent {
			return errorMarker("include", fmt.Errorf("included resource %q not found", resolved))
		}

		child := parent
		child.IncludeSource = resolved
		if len(hashParams) > 0 {
			merged := map[string]any{}
			for k, v := range parent.extra {
				merged[k] = v
			}
			for k, v := range hashParams[0] {
				merged[k] = v
			}
			child.extra = merged
		}

		nextActive := make(map[string]bool, len(active)+1)
		for k := range active {
			nextActive[k] = true
		}
		nextActive[resolved] = true

		return a.render(string(body), resolved, child, nextActive, depth+1)
	}
}

func (a *Assembler) rawIncludeFunc(baseURI string) func(uri string) string {
	return func(uri string) string {
		resolved := resource.ResolveRelative(uri, baseURI)
		body, absent, err := a.Loader.Load(resolved, resource.FetchOpts{})
		if err != nil {
			return errorMarker("rawInclude", err)
		}
		if absent {
			return errorMarker("rawInclude", fmt.Errorf("raw-included resource %q not found", resolved))
		}
		return string(body)
	}
}

func errorMarker(stage string, err error) string {
	log.Printf("prompt %s failed: %v", stage, err)
	return fmt.Sprintf("<!-- prompt-error: %s: %s -->", stage, sanitizeForMarker(err.Error()))
}

func sanitizeForMarker(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "-->", "--&gt;"), "\n", " ")
}
