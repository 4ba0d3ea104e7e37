// Package descriptor implements the descriptor parser and validator (C2):
// splitting a descriptor into header and prompt body, normalizing
// list-valued fields, validating against an embedded JSON Schema plus the
// hand-written checks the schema can't express (cron syntax, dangerous
// content patterns), and producing a model.Descriptor ready for C3.
package descriptor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/a5c-ai/agentdispatch/pkg/constants"
	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/model"
)

var log = logger.New("descriptor:parser")

//go:embed schema.json
var schemaJSON []byte

const schemaID = "https://a5c.ai/schema/agent-descriptor.json"

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("descriptor: invalid embedded schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaID, doc); err != nil {
		panic(fmt.Sprintf("descriptor: cannot register embedded schema: %v", err))
	}
	schema, err := compiler.Compile(schemaID)
	if err != nil {
		panic(fmt.Sprintf("descriptor: cannot compile embedded schema: %v", err))
	}
	return schema
}

var headerDelim = []byte("---")

// Split separates a descriptor's raw bytes into its YAML header and prompt
// body. The header is the block between the first two "---" lines; a
// missing header is InvalidDescriptor.
func Split(raw []byte) (header []byte, body string, err error) {
	lines := bytes.Split(raw, []byte("\n"))
	if len(lines) == 0 || !bytes.Equal(bytes.TrimSpace(lines[0]), headerDelim) {
		return nil, "", direrr.New(direrr.KindInvalidDescriptor, "missing header: descriptor must start with a --- line")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), headerDelim) {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, "", direrr.New(direrr.KindInvalidDescriptor, "missing closing --- for header")
	}

	header = bytes.Join(lines[1:end], []byte("\n"))
	body = string(bytes.Join(lines[end+1:], []byte("\n")))
	body = strings.TrimPrefix(body, "\n")
	return header, body, nil
}

// Parse splits and decodes raw descriptor bytes into a model.Descriptor,
// validating it against the schema and the dangerous-content/cron checks.
// The returned descriptor may still carry a non-empty From; resolving it is
// pkg/inherit's job (C3).
func Parse(raw []byte, src model.Source) (*model.Descriptor, error) {
	header, body, err := Split(raw)
	if err != nil {
		return nil, err
	}

	var headerMap map[string]any
	if err := goyaml.Unmarshal(header, &headerMap); err != nil {
		return nil, direrr.Wrap(direrr.KindInvalidDescriptor, err, "decoding header YAML")
	}
	if headerMap == nil {
		headerMap = map[string]any{}
	}
	normalizeListFields(headerMap)

	if err := validateSchema(headerMap); err != nil {
		return nil, err
	}

	d := fromMap(headerMap)
	d.PromptBody = body
	d.Source = src
	if d.Priority == 0 {
		if _, set := headerMap["priority"]; !set {
			d.Priority = constants.DefaultPriority
		}
	}

	if violations := Validate(d); len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.Error()
		}
		return nil, direrr.New(direrr.KindValidationError, "%s", strings.Join(msgs, "; "))
	}
	return d, nil
}

func validateSchema(instance map[string]any) error {
	encoded, err := json.Marshal(instance)
	if err != nil {
		return direrr.Wrap(direrr.KindInvalidDescriptor, err, "re-encoding header for schema validation")
	}
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return direrr.Wrap(direrr.KindInvalidDescriptor, err, "decoding header for schema validation")
	}
	if err := compiledSchema.Validate(decoded); err != nil {
		return direrr.Wrap(direrr.KindValidationError, err, "header failed schema validation")
	}
	return nil
}

// normalizeListFields converts comma-separated-string forms of list fields
// (with optional surrounding brackets and quoted items) into []any, matching
// §4.2: "a, b, c", "[a, b, c]", and ["a","b","c"] all normalize the same way.
func normalizeListFields(m map[string]any) {
	listFields := []string{"events", "mentions", "labels", "branches", "paths", "user_whitelist", "mcp_servers"}
	for _, field := range listFields {
		v, ok := m[field]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			m[field] = splitListString(s)
		}
	}
}

func splitListString(s string) []any {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"'`)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func fromMap(m map[string]any) *model.Descriptor {
	d := &model.Descriptor{}
	d.ID = str(m, "id")
	d.Name = str(m, "name")
	d.Description = str(m, "description")
	d.Category = str(m, "category")
	d.Version = str(m, "version")
	d.UsageContext = str(m, "usage_context")
	d.InvocationContext = str(m, "invocation_context")
	d.Events = strList(m, "events")
	d.Mentions = strList(m, "mentions")
	d.Labels = strList(m, "labels")
	d.Branches = strList(m, "branches")
	d.Paths = strList(m, "paths")
	d.Schedule = str(m, "schedule")
	d.Priority = intVal(m, "priority")
	d.UserWhitelist = strList(m, "user_whitelist")
	d.MCPServers = strList(m, "mcp_servers")
	d.CLICommand = str(m, "cli_command")
	d.CLIAgentTemplate = str(m, "cli_agent_template")
	d.Model = str(m, "model")
	d.MaxTurns = intVal(m, "max_turns")
	d.TimeoutMinutes = intVal(m, "timeout_minutes")
	d.Verbose = boolVal(m, "verbose")
	d.InjectPromptToStdin = boolVal(m, "inject_prompt_to_stdin")
	d.InjectEnvsToPrompt = boolVal(m, "inject_envs_to_prompt")
	d.PromptURI = str(m, "prompt_uri")
	if pb, ok := m["prompt_body"].(string); ok {
		d.PromptBody = pb
	}
	d.From = str(m, "from")
	d.Envs = strMap(m, "envs")

	if raw, ok := m["agent_discovery"].(map[string]any); ok {
		d.AgentDiscovery = model.AgentDiscovery{
			Enabled:              boolVal(raw, "enabled"),
			IncludeSameDirectory: boolVal(raw, "include_same_directory"),
			IncludeExternal:      strList(raw, "include_external"),
			MaxInContext:         intVal(raw, "max_in_context"),
		}
	}
	return d
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolVal(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func intVal(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

func strList(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func strMap(m map[string]any, key string) map[string]string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[\s>]`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`\$\([^)]*\)`),
	regexp.MustCompile("`[^`]*`"),
	regexp.MustCompile(`\|[^|]*(/etc|/proc|/sys)`),
	regexp.MustCompile(`>[^>]*(/etc|/proc|/sys)`),
	regexp.MustCompile(`(?i)\brm\s+-rf\b`),
	regexp.MustCompile(`(?i)\bsudo\b`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`(?i)\bchmod\s+777\b`),
	regexp.MustCompile(`(?i)\bnc\s+-l\b`),
	regexp.MustCompile(`(?i)(curl|wget)[^|]*\|`),
}

func containsDangerousPattern(s string) (string, bool) {
	for _, p := range dangerousPatterns {
		if p.MatchString(s) {
			return p.String(), true
		}
	}
	return "", false
}
