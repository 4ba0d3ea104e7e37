package descriptor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/a5c-ai/agentdispatch/pkg/model"
)

// Violation is one schema/content violation. Parse collects every
// violation rather than stopping at the first, per §4.2.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

var a5cRefPattern = regexp.MustCompile(`^a5c://[^/]+/[^/]+/.+@.+$`)

// Validate runs the checks the JSON Schema can't express: cron syntax,
// the `from` reference's scheme/shape, and dangerous-content scanning of
// prompt_body and cli_command. Field-shape checks already covered by the
// embedded schema (name, version, mentions, priority range) are not
// repeated here.
func Validate(d *model.Descriptor) []Violation {
	var violations []Violation

	if d.Schedule != "" {
		if err := ValidateCron(d.Schedule); err != nil {
			violations = append(violations, Violation{Field: "schedule", Reason: err.Error()})
		}
	}

	if d.From != "" {
		if err := validateFromReference(d.From); err != nil {
			violations = append(violations, Violation{Field: "from", Reason: err.Error()})
		}
	}

	if pattern, hit := containsDangerousPattern(d.PromptBody); hit {
		violations = append(violations, Violation{Field: "prompt_body", Reason: fmt.Sprintf("matches dangerous pattern %s", pattern)})
	}
	if pattern, hit := containsDangerousPattern(d.CLICommand); hit {
		violations = append(violations, Violation{Field: "cli_command", Reason: fmt.Sprintf("matches dangerous pattern %s", pattern)})
	}

	return violations
}

func validateFromReference(from string) error {
	if strings.HasPrefix(from, "a5c://") {
		if !a5cRefPattern.MatchString(from) {
			return fmt.Errorf("a5c:// reference must match ^a5c://<org>/<repo>/<path>@<version-range>$, got %q", from)
		}
		return nil
	}
	for _, seg := range strings.Split(from, "/") {
		if seg == ".." {
			return fmt.Errorf("reference %q contains a traversal segment", from)
		}
	}
	return nil
}

var cronFieldRanges = [5][2]int{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week
}

// ValidateCron checks a 5-field cron string against §4.2's grammar: each
// field accepts "*", a range "a-b", a comma-list "a,b,c", or a step
// "base/step" where base is "*", a literal, or a range.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("cron expression %q must have exactly 5 space-separated fields, got %d", expr, len(fields))
	}
	for i, field := range fields {
		if err := validateCronField(field, cronFieldRanges[i]); err != nil {
			return fmt.Errorf("field %d (%q): %w", i+1, field, err)
		}
	}
	return nil
}

func validateCronField(field string, bounds [2]int) error {
	for _, item := range strings.Split(field, ",") {
		if err := validateCronItem(item, bounds); err != nil {
			return err
		}
	}
	return nil
}

func validateCronItem(item string, bounds [2]int) error {
	base := item
	if idx := strings.Index(item, "/"); idx != -1 {
		base = item[:idx]
		step := item[idx+1:]
		if step == "" {
			return fmt.Errorf("empty step after /")
		}
		if n, err := strconv.Atoi(step); err != nil || n <= 0 {
			return fmt.Errorf("invalid step %q", step)
		}
	}

	if base == "*" {
		return nil
	}
	if idx := strings.Index(base, "-"); idx != -1 {
		lo, err1 := strconv.Atoi(base[:idx])
		hi, err2 := strconv.Atoi(base[idx+1:])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("invalid range %q", base)
		}
		if lo < bounds[0] || hi > bounds[1] || lo > hi {
			return fmt.Errorf("range %q out of bounds [%d,%d]", base, bounds[0], bounds[1])
		}
		return nil
	}
	n, err := strconv.Atoi(base)
	if err != nil {
		return fmt.Errorf("invalid value %q", base)
	}
	if n < bounds[0] || n > bounds[1] {
		return fmt.Errorf("value %d out of bounds [%d,%d]", n, bounds[0], bounds[1])
	}
	return nil
}
