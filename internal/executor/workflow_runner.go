package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fentz26/warble/internal/models"
)

// placeholderRe matches {{key}} and {{steps.NAME.field}} references inside
// step parameter strings.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// runWorkflow executes a run_workflow record: it resolves the definition,
// merges parameters, and runs the steps in order. Each step gets the full
// retry policy; a required step failure fails the workflow, an optional one
// is recorded and skipped.
func (e *Executor) runWorkflow(ctx context.Context, rec *models.TaskRecord) (map[string]any, error) {
	name, err := stringParam(rec.Request.Parameters, "workflow_name")
	if err != nil {
		return nil, err
	}
	def, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownWorkflow, name)
	}

	params := mergeParams(def.DefaultParameters, rec.Request.Parameters)

	e.logger.Info("workflow started",
		zap.String("task_id", rec.ID),
		zap.String("workflow", name),
		zap.Int("steps", len(def.Steps)))

	stepResults := make(map[string]any, len(def.Steps))
	stepsOut := make([]map[string]any, 0, len(def.Steps))
	var lastResult map[string]any

	for i, step := range def.Steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		handler, ok := e.handlers[step.Type]
		if !ok {
			return nil, fmt.Errorf("step %q has unknown type %q", step.Name, step.Type)
		}

		resolved, err := resolveParams(step.Parameters, params, stepResults)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Name, err)
		}

		result, err := e.withRetry(ctx, name+"."+step.Name, func(ctx context.Context) (map[string]any, error) {
			return handler(ctx, resolved)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if step.Required {
				return nil, fmt.Errorf("step %q failed: %w", step.Name, err)
			}
			e.logger.Warn("optional step failed, continuing",
				zap.String("workflow", name),
				zap.String("step", step.Name),
				zap.Error(err))
			stepResults[step.Name] = map[string]any{"error": err.Error()}
			stepsOut = append(stepsOut, map[string]any{
				"step":   step.Name,
				"status": "skipped",
				"error":  err.Error(),
			})
		} else {
			stepResults[step.Name] = result
			lastResult = result
			stepsOut = append(stepsOut, map[string]any{
				"step":   step.Name,
				"status": "completed",
			})
		}

		// Progress errors are expected when the record was cancelled
		// between steps; the context check above catches it next loop.
		_ = e.store.SetProgress(rec.ID, (i+1)*100/len(def.Steps))
	}

	// The last successful step's payload surfaces at the top level so
	// single-purpose workflows read like the task they wrap; the run
	// bookkeeping keys win on collision.
	out := make(map[string]any, len(lastResult)+5)
	for k, v := range lastResult {
		out[k] = v
	}
	out["workflow"] = name
	out["workflow_type"] = string(def.Type)
	out["steps_total"] = len(def.Steps)
	out["steps"] = stepsOut
	out["results"] = stepResults
	return out, nil
}

// mergeParams overlays the run request's parameters onto the definition
// defaults. The request may carry them flat or nested under "parameters".
func mergeParams(defaults, request map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(request))
	for k, v := range defaults {
		merged[k] = v
	}
	overlay := request
	if nested, ok := request["parameters"].(map[string]any); ok {
		overlay = nested
	}
	for k, v := range overlay {
		if k == "workflow_name" || k == "parameters" {
			continue
		}
		merged[k] = v
	}
	return merged
}

// resolveParams substitutes placeholders in step parameters. A placeholder
// that is the entire string resolves to the referenced value with its type
// intact; embedded placeholders interpolate as text.
func resolveParams(stepParams, workflowParams map[string]any, stepResults map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(stepParams))
	for k, v := range stepParams {
		resolved, err := resolveValue(v, workflowParams, stepResults)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(v any, workflowParams, stepResults map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return resolveString(val, workflowParams, stepResults)
	case map[string]any:
		return resolveParams(val, workflowParams, stepResults)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := resolveValue(item, workflowParams, stepResults)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(s string, workflowParams, stepResults map[string]any) (any, error) {
	// Whole-string placeholder: pass the referenced value through untouched.
	if m := placeholderRe.FindStringSubmatch(s); m != nil && m[0] == strings.TrimSpace(s) {
		return lookupRef(m[1], workflowParams, stepResults)
	}

	var refErr error
	resolved := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		ref := placeholderRe.FindStringSubmatch(match)[1]
		val, err := lookupRef(ref, workflowParams, stepResults)
		if err != nil {
			refErr = err
			return match
		}
		return fmt.Sprintf("%v", val)
	})
	if refErr != nil {
		return nil, refErr
	}
	return resolved, nil
}

// lookupRef resolves "steps.NAME.field" paths against earlier step results
// and bare keys against the merged workflow parameters.
func lookupRef(ref string, workflowParams, stepResults map[string]any) (any, error) {
	if rest, ok := strings.CutPrefix(ref, "steps."); ok {
		parts := strings.Split(rest, ".")
		var current any = stepResults
		for _, part := range parts {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: reference %q does not resolve", errMissingParam, ref)
			}
			current, ok = m[part]
			if !ok {
				return nil, fmt.Errorf("%w: reference %q does not resolve", errMissingParam, ref)
			}
		}
		return current, nil
	}

	val, ok := workflowParams[ref]
	if !ok {
		return nil, fmt.Errorf("%w: reference %q does not resolve", errMissingParam, ref)
	}
	return val, nil
}
