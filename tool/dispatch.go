package tool

import (
	"context"
	"time"

	"github.com/relaykit/kernel/kernelerr"
	"github.com/relaykit/kernel/security"
)

// DomainTool is implemented by tools that open an outbound HTTP connection,
// so the dispatcher can resolve the target domain against policy *before*
// any TCP connect (spec §4.3 step 4).
type DomainTool interface {
	Tool
	Domain(input string) (string, error)
}

// PathTool is implemented by tools that touch the filesystem, so the
// dispatcher can canonicalize and validate the path before the tool opens it.
type PathTool interface {
	Tool
	Path(input string) (string, error)
}

// Dispatcher composes a Registry and a security.Manager into the full
// seven-step dispatch pipeline of spec §4.3.
type Dispatcher struct {
	registry *Registry
	security *security.Manager
}

// NewDispatcher builds a Dispatcher over registry and manager.
func NewDispatcher(registry *Registry, manager *security.Manager) *Dispatcher {
	return &Dispatcher{registry: registry, security: manager}
}

// Dispatch runs call through the registry and security pipeline, returning
// an ExecutionResult. Policy rejections never surface as a Go error from
// Dispatch itself; they surface as ExecutionResult{Success:false} so the
// caller's handle_result step always runs (spec §4.2's failure semantics).
// Dispatch does return a Go error for the one case that precedes any
// per-call accounting: the tool name not being registered at all.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID string, call ToolCall) (ExecutionResult, error) {
	started := time.Now()

	t, err := d.registry.Resolve(call.Tool)
	if err != nil {
		return ExecutionResult{}, err
	}

	sessionID, serr := d.security.SessionFor(agentID)
	if serr != nil {
		sessionID = ""
	}

	outcome := "allowed"
	defer func() {
		d.security.Audit(security.AuditEvent{
			Timestamp:   started,
			AgentID:     agentID,
			Tool:        call.Tool.String(),
			InputSHA256: security.HashInput(call.Input),
			Outcome:     outcome,
			SessionID:   sessionID,
			Detail:      "",
		})
	}()

	// Step 1: input length.
	if verr := d.security.ValidateInput(call.Input); verr != nil {
		outcome = "denied:" + string(kernelerr.CodeOutOfRange)
		if kerr, ok := verr.(*kernelerr.Error); ok {
			outcome = "denied:" + string(kerr.Code)
		}
		return failResult(started, errMessage(verr)), nil
	}

	// Steps 2 and 3 (secret + suspicious pattern scans) are also covered by
	// ValidateInput, which runs them in sequence against the same input.

	// Step 4: tool-specific pre-checks.
	if dt, ok := t.(DomainTool); ok {
		domain, derr := dt.Domain(call.Input)
		if derr != nil {
			outcome = "denied:malformed_domain"
			return failResult(started, errMessage(derr)), nil
		}
		if domain != "" {
			if verr := d.security.ValidateDomain(domain); verr != nil {
				outcome = "denied:domain_denied"
				return failResult(started, errMessage(verr)), nil
			}
		}
	}
	if pt, ok := t.(PathTool); ok {
		path, perr := pt.Path(call.Input)
		if perr != nil {
			outcome = "denied:malformed_path"
			return failResult(started, errMessage(perr)), nil
		}
		if path != "" {
			if _, verr := d.security.ValidatePath(path); verr != nil {
				outcome = "denied:path_denied"
				return failResult(started, errMessage(verr)), nil
			}
		}
	}

	dispatchCtx, guard, perr := d.security.AcquireResourcePermit(ctx, agentID)
	if perr != nil {
		outcome = "denied:lockdown_or_limit"
		return failResult(started, errMessage(perr)), nil
	}
	defer func() {
		if r := recover(); r != nil {
			guard.Release()
			panic(r)
		}
		guard.Release()
	}()

	// Step 5: execute under the resource-tracker's deadline.
	result := t.Call(dispatchCtx, call.Input)
	if dispatchCtx.Err() != nil && result.Success {
		// tool returned success but its own context was already dead;
		// treat as a timeout per spec §5's cancellation policy.
		result = ExecutionResult{Success: false, Error: "Timeout", DurationMS: time.Since(started).Milliseconds()}
	}

	// Step 6: scan/redact output.
	result.Output = security.RedactSecrets(result.Output)
	if result.DurationMS == 0 {
		result.DurationMS = time.Since(started).Milliseconds()
	}

	if !result.Success {
		outcome = "tool_failed"
	}

	return result, nil
}

func errMessage(err error) string {
	if kerr, ok := err.(*kernelerr.Error); ok {
		return string(kerr.Code)
	}
	return err.Error()
}
