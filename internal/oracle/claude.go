package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// systemPrompt enforces JSON-only output for the structured calls. Models
// still drift into prose and fences, which the parse helpers absorb.
const systemPrompt = "You are a supervisor assistant for an autonomous agent system. Your ONLY output must be valid JSON matching the provided schema. No markdown, no code fences, no prose. Output raw JSON only."

const (
	gradeSchema = `{"type":"object","properties":{"score":{"type":"number"},"comments":{"type":"string"},"issues":{"type":"array","items":{"type":"string"}},"strengths":{"type":"array","items":{"type":"string"}},"improvement_suggestions":{"type":"array","items":{"type":"string"}}},"required":["score","comments"]}`

	routeSchema = `{"type":"object","properties":{"next":{"type":"string"}},"required":["next"]}`

	fixSchema = `{"type":"object","properties":{"narrative":{"type":"string"},"fixes":{"type":"array","items":{"type":"string"}}},"required":["narrative"]}`

	analysisSchema = `{"type":"object","properties":{"overall_assessment":{"type":"string"},"strengths":{"type":"array","items":{"type":"string"}},"weaknesses":{"type":"array","items":{"type":"string"}},"improvement_recommendations":{"type":"array","items":{"type":"string"}},"scaling_recommendations":{"type":"array","items":{"type":"string"}}},"required":["overall_assessment"]}`
)

// cliEnvelope is the wrapper the CLI emits with --output-format json.
type cliEnvelope struct {
	Result       string  `json:"result"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// ClaudeOracle implements Oracle by shelling out to the Claude CLI.
// Create once and reuse; it is safe for concurrent use.
type ClaudeOracle struct {
	// ClaudePath is the CLI binary, "claude" by default.
	ClaudePath string

	// Model selects the model, passed via --model when set.
	Model string

	// Timeout bounds each invocation. Zero means the caller's context
	// governs.
	Timeout time.Duration

	// OnUsage, when set, receives token and cost figures from each
	// invocation for budget tracking.
	OnUsage func(inputTokens, outputTokens int64, costUSD float64)

	// run overrides command execution in tests.
	run func(ctx context.Context, args []string) ([]byte, error)
}

// NewClaudeOracle creates an oracle backed by the claude CLI binary.
func NewClaudeOracle(model string) *ClaudeOracle {
	return &ClaudeOracle{ClaudePath: "claude", Model: model}
}

// invoke runs the CLI with the given prompt and optional schema and returns
// the unwrapped result content.
func (o *ClaudeOracle) invoke(ctx context.Context, prompt, schema string) (string, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	args := []string{"--system-prompt", systemPrompt, "-p", prompt}
	if schema != "" {
		args = append(args, "--json-schema", schema)
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	args = append(args, "--output-format", "json")

	runner := o.run
	if runner == nil {
		runner = func(ctx context.Context, args []string) ([]byte, error) {
			path := o.ClaudePath
			if path == "" {
				path = "claude"
			}
			out, err := exec.CommandContext(ctx, path, args...).Output()
			if err != nil {
				return nil, fmt.Errorf("claude invocation failed: %w", err)
			}
			return out, nil
		}
	}

	out, err := runner(ctx, args)
	if err != nil {
		return "", err
	}

	var env cliEnvelope
	if err := json.Unmarshal(out, &env); err == nil && env.Result != "" {
		if o.OnUsage != nil {
			o.OnUsage(env.Usage.InputTokens, env.Usage.OutputTokens, env.TotalCostUSD)
		}
		return env.Result, nil
	}
	// Some CLI versions emit the content bare
	return string(out), nil
}

// decode unmarshals oracle content into result, retrying with fence
// stripping before giving up.
func decode(content string, result any) error {
	if err := json.Unmarshal([]byte(content), result); err == nil {
		return nil
	}
	extracted := ExtractJSON(content)
	if err := json.Unmarshal([]byte(extracted), result); err != nil {
		return fmt.Errorf("unparseable oracle response: %w", err)
	}
	return nil
}

// Grade scores a team's output against the task.
func (o *ClaudeOracle) Grade(ctx context.Context, team, task, result string) (*Grade, error) {
	prompt := fmt.Sprintf(`You are a supervisor grading output from the %s team.

Score on a scale of 0.0 to 1.0:
- 0.0: completely fails to address the task
- 0.3: addresses the task but with major deficiencies
- 0.5: adequately addresses the task with some issues
- 0.7: well-executed with minor issues
- 0.9: excellent execution with tiny improvements possible
- 1.0: perfect execution

ORIGINAL TASK:
%s

TEAM OUTPUT:
%s

Grade the output. Respond with JSON fields: score, comments, issues, strengths, improvement_suggestions.`, team, task, result)

	content, err := o.invoke(ctx, prompt, gradeSchema)
	if err != nil {
		return nil, err
	}

	var g Grade
	if err := decode(content, &g); err != nil {
		// Prose answer: salvage issues from any markdown lists before
		// falling back entirely
		if items := ExtractListItems(content); len(items) > 0 {
			ng := NeutralGrade("non-JSON grading response")
			ng.Issues = append(ng.Issues, items...)
			return ng, nil
		}
		return nil, err
	}
	g.Score = ClampScore(g.Score)
	return &g, nil
}

// Review scores a task's final output as a whole.
func (o *ClaudeOracle) Review(ctx context.Context, task, result string) (*Grade, error) {
	prompt := fmt.Sprintf(`You are a task review system. Rate the quality of the provided result based on how well it fulfills the original task.

Score on a scale of 0.0 to 1.0:
- 0.0: completely fails to address the task
- 0.3: addresses the task but with major deficiencies
- 0.5: adequately addresses the task with some issues
- 0.7: well-executed with minor issues
- 0.9: excellent execution with tiny improvements possible
- 1.0: perfect execution

ORIGINAL TASK:
%s

RESULT:
%s

Review the result. Respond with JSON fields: score, comments, issues, strengths, improvement_suggestions.`, task, result)

	content, err := o.invoke(ctx, prompt, gradeSchema)
	if err != nil {
		return nil, err
	}

	var g Grade
	if err := decode(content, &g); err != nil {
		return nil, err
	}
	g.Score = ClampScore(g.Score)
	return &g, nil
}

// Route picks the next node for a supervisor.
func (o *ClaudeOracle) Route(ctx context.Context, req RouteRequest) (string, error) {
	prompt := fmt.Sprintf(`You are the %s supervisor managing these workers: %s.
Given the run history below, respond with the worker to delegate to next, or "end" when the work is finished.

HISTORY:
%s

Respond with JSON: {"next": "<worker or end>"}.`,
		req.Supervisor, strings.Join(req.Members, ", "), strings.Join(req.History, "\n"))

	content, err := o.invoke(ctx, prompt, routeSchema)
	if err != nil {
		return "", err
	}

	var decision struct {
		Next string `json:"next"`
	}
	if err := decode(content, &decision); err != nil {
		return "", err
	}
	return strings.TrimSpace(decision.Next), nil
}

// GenerateTask produces a new task description in a category.
func (o *ClaudeOracle) GenerateTask(ctx context.Context, category string) (string, error) {
	prompt := fmt.Sprintf(`You are a task generator for AI agent teams. Create one specific, detailed task in the %q category. The task should be challenging but achievable. Respond only with the task description, no preamble.`, category)

	content, err := o.invoke(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	task := strings.TrimSpace(content)
	if task == "" {
		return "", fmt.Errorf("empty task from oracle")
	}
	return task, nil
}

// ProposeCodeFix proposes fixes for the accumulated issues.
func (o *ClaudeOracle) ProposeCodeFix(ctx context.Context, issues, priorFixes []string) (*CodeFix, error) {
	prompt := fmt.Sprintf(`You are a code improvement agent for an autonomous agent system.

ISSUES TO FIX:
%s

PREVIOUSLY IMPLEMENTED FIXES:
%s

Analyze the root cause of each issue and propose targeted fixes. Respond with JSON fields: narrative, fixes (list of one-line fix descriptions), check (optional code snippet that verifies the fixes when run).`,
		bulleted(issues), bulleted(priorFixes))

	content, err := o.invoke(ctx, prompt, fixSchema)
	if err != nil {
		return nil, err
	}

	var fix CodeFix
	if err := decode(content, &fix); err != nil {
		if items := ExtractListItems(content); len(items) > 0 {
			return &CodeFix{Narrative: "recovered from non-JSON response", Fixes: items}, nil
		}
		return nil, err
	}
	return &fix, nil
}

// Synthesize turns an evaluation summary into a narrative analysis.
func (o *ClaudeOracle) Synthesize(ctx context.Context, summary string) (*Analysis, error) {
	prompt := fmt.Sprintf(`You are an expert system evaluator analyzing an autonomous agent system.

Analyze the evaluation data below and provide insight on overall performance, the impact of code improvements, the effectiveness of resource scaling, and key areas for further improvement.

%s

Respond with JSON fields: overall_assessment, strengths, weaknesses, improvement_recommendations, scaling_recommendations.`, summary)

	content, err := o.invoke(ctx, prompt, analysisSchema)
	if err != nil {
		return nil, err
	}

	var a Analysis
	if err := decode(content, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Complete performs a free-form completion for worker agents.
func (o *ClaudeOracle) Complete(ctx context.Context, prompt string) (string, error) {
	content, err := o.invoke(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func bulleted(items []string) string {
	if len(items) == 0 {
		return "- none"
	}
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
