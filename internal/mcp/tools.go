package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/chengdagong/ue-mcp-sub001/internal/editor"
	"github.com/chengdagong/ue-mcp-sub001/internal/level"
	"github.com/chengdagong/ue-mcp-sub001/internal/remote"
	"github.com/chengdagong/ue-mcp-sub001/internal/watcher"
	"github.com/chengdagong/ue-mcp-sub001/pkg/events"
)

const defaultExecTimeout = 30 * time.Second

func (s *Server) registerTools() {
	s.registerEditorTools()
	s.registerPythonTools()
	s.registerTaskTools()
}

func (s *Server) registerEditorTools() {
	launchTool := mcplib.NewTool("editor_launch",
		mcplib.WithDescription(`Launch the Unreal editor for the configured project with remote Python execution enabled.

With wait=true (default) this blocks until the editor is reachable or wait_timeout expires. With wait=false it returns immediately and the connection is established in the background; use editor_status to check progress.`),
		mcplib.WithBoolean("wait",
			mcplib.Description("Block until the remote execution channel is connected (default true)"),
		),
		mcplib.WithNumber("wait_timeout",
			mcplib.Description("Seconds to wait for the editor to become reachable (default 300)"),
		),
	)
	s.mcp.AddTool(launchTool, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		wait := request.GetBool("wait", true)
		waitTimeout := time.Duration(request.GetFloat("wait_timeout", 300)) * time.Second

		err := s.manager.Launch(ctx, wait, waitTimeout)
		if err != nil {
			var buildErr *editor.BuildRequiredError
			if errors.As(err, &buildErr) {
				return mcplib.NewToolResultError(buildErr.Error()), nil
			}
			if errors.Is(err, editor.ErrAlreadyRunning) {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			return mcplib.NewToolResultError(fmt.Sprintf("Launch failed: %v", err)), nil
		}
		return statusResult(s.manager.GetStatus())
	})

	statusTool := mcplib.NewTool("editor_status",
		mcplib.WithDescription("Report the managed editor's state, process ID, remote execution node ID, connection state, and log path. Read-only."),
	)
	s.mcp.AddTool(statusTool, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return statusResult(s.manager.GetStatus())
	})

	stopTool := mcplib.NewTool("editor_stop",
		mcplib.WithDescription("Stop the managed editor: graceful remote quit first, then escalate to terminating the process. Stopping an editor that is not running is a no-op. The log file is preserved."),
	)
	s.mcp.AddTool(stopTool, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		if err := s.manager.Stop(ctx); err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("Stop failed: %v", err)), nil
		}
		return mcplib.NewToolResultText("Editor stopped."), nil
	})

	logTool := mcplib.NewTool("editor_log",
		mcplib.WithDescription("Read the tail of the current editor session's log file."),
		mcplib.WithNumber("tail_lines",
			mcplib.Description("Number of lines from the end of the log (default 100)"),
		),
	)
	s.mcp.AddTool(logTool, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		n := int(request.GetFloat("tail_lines", 100))
		lines, err := s.manager.ReadLog(n)
		if err != nil {
			if errors.Is(err, editor.ErrLogNotFound) {
				return mcplib.NewToolResultError("No log file yet; launch the editor first."), nil
			}
			return mcplib.NewToolResultError(fmt.Sprintf("Read log failed: %v", err)), nil
		}
		return mcplib.NewToolResultText(strings.Join(lines, "\n")), nil
	})
}

func (s *Server) registerPythonTools() {
	execTool := mcplib.NewTool("python_execute",
		mcplib.WithDescription(`Execute Python code inside the running Unreal editor. The code runs in the editor's embedded interpreter with the unreal module available. Output and errors are captured and returned.`),
		mcplib.WithString("code",
			mcplib.Required(),
			mcplib.Description("Python source to execute"),
		),
		mcplib.WithNumber("timeout",
			mcplib.Description("Seconds to wait for completion (default 30)"),
		),
	)
	s.mcp.AddTool(execTool, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		timeout := time.Duration(request.GetFloat("timeout", defaultExecTimeout.Seconds())) * time.Second
		return s.runPython(ctx, code, remote.ExecuteFile, timeout)
	})

	evalTool := mcplib.NewTool("python_evaluate",
		mcplib.WithDescription("Evaluate a single Python expression inside the running editor and return its value."),
		mcplib.WithString("code",
			mcplib.Required(),
			mcplib.Description("Python expression to evaluate"),
		),
		mcplib.WithNumber("timeout",
			mcplib.Description("Seconds to wait for completion (default 30)"),
		),
	)
	s.mcp.AddTool(evalTool, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		timeout := time.Duration(request.GetFloat("timeout", defaultExecTimeout.Seconds())) * time.Second
		return s.runPython(ctx, code, remote.EvaluateStatement, timeout)
	})

	scriptTool := mcplib.NewTool("script_run",
		mcplib.WithDescription(`Run a Python script file inside the editor. Parameters are passed explicitly: they are serialized to JSON and bound to a "params" dict in the script's globals before it runs. Scripts must read their inputs from params, never from editor-side state.`),
		mcplib.WithString("script_path",
			mcplib.Required(),
			mcplib.Description("Path to the Python script, as seen by the editor process"),
		),
		mcplib.WithObject("params",
			mcplib.Description("Parameters made available to the script as the params dict"),
		),
		mcplib.WithString("expect_level",
			mcplib.Description("Level name or path that must be loaded in the editor; the script is refused on a mismatch"),
		),
		mcplib.WithString("result_sentinel",
			mcplib.Description("Marker string the script prints before its JSON result; when set, the JSON object after the last marker is returned as the result"),
		),
		mcplib.WithNumber("timeout",
			mcplib.Description("Seconds to wait for completion (default 30)"),
		),
	)
	s.mcp.AddTool(scriptTool, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		scriptPath, err := request.RequireString("script_path")
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		if expect := request.GetString("expect_level", ""); expect != "" {
			if result := s.checkLevel(ctx, expect); result != nil {
				return result, nil
			}
		}
		params := map[string]interface{}{}
		if raw, ok := request.GetArguments()["params"].(map[string]interface{}); ok {
			params = raw
		}
		timeout := time.Duration(request.GetFloat("timeout", defaultExecTimeout.Seconds())) * time.Second

		code, err := buildScriptInvocation(scriptPath, params)
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("Bad params: %v", err)), nil
		}
		return s.runScript(ctx, code, timeout, request.GetString("result_sentinel", ""))
	})
}

func (s *Server) registerTaskTools() {
	waitTool := mcplib.NewTool("task_wait",
		mcplib.WithDescription(`Wait for a long-running editor task to finish. Tasks signal completion by writing a {task_id}_completed marker file under the project's Saved/Logs directory; this tool blocks until the marker appears, then returns its contents. A task that reports failure is returned as a result, not an error; only the absence of any marker within the timeout is an error.`),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("Task identifier the editor-side script was given"),
		),
		mcplib.WithNumber("timeout",
			mcplib.Description("Seconds to wait for the marker (default 600)"),
		),
		mcplib.WithString("project_root",
			mcplib.Description("Project root override; defaults to the managed editor's project"),
		),
	)
	s.mcp.AddTool(waitTool, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		timeout := time.Duration(request.GetFloat("timeout", 600)) * time.Second

		root := request.GetString("project_root", "")
		if root == "" {
			root = s.manager.GetStatus().ProjectRoot
		}
		if root == "" {
			return mcplib.NewToolResultError("No project root known; launch the editor or pass project_root."), nil
		}

		marker, err := s.watcher.Watch(ctx, root, taskID, timeout)
		if err != nil {
			if errors.Is(err, watcher.ErrWatchTimeout) {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			return mcplib.NewToolResultError(fmt.Sprintf("Watch failed: %v", err)), nil
		}
		s.bus.Publish(events.Event{
			Type: events.TaskCompleted,
			Data: map[string]interface{}{
				"task_id": taskID,
				"success": marker.Success,
			},
		})
		return markerResult(marker)
	})
}

const currentLevelSnippet = "import unreal; print(unreal.EditorLevelLibrary.get_editor_world().get_path_name())"

// checkLevel compares the editor's loaded level against the expected one
// using the configured matching policy. Returns nil when the check passes,
// an error result otherwise.
func (s *Server) checkLevel(ctx context.Context, expected string) *mcplib.CallToolResult {
	resp, err := s.manager.Execute(ctx, currentLevelSnippet, remote.ExecuteStatement, defaultExecTimeout)
	if err != nil || !resp.Success {
		return mcplib.NewToolResultError("Could not read the editor's current level.")
	}

	current := ""
	for _, line := range strings.Split(resp.CombinedOutput(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			current = trimmed
		}
	}

	policy := level.Policy{
		TrailingSegment: s.cfg.Level.TrailingSegment,
		NamePrefix:      s.cfg.Level.NamePrefix,
		UntitledFamily:  s.cfg.Level.UntitledFamily,
	}
	if ok, rule := policy.Matches(current, expected); ok {
		log.Printf("level check: %q matches %q via %s", current, expected, rule)
		return nil
	}
	return mcplib.NewToolResultError(fmt.Sprintf("Loaded level %q does not match expected %q.", current, expected))
}

func (s *Server) runPython(ctx context.Context, code string, mode remote.ExecType, timeout time.Duration) (*mcplib.CallToolResult, error) {
	return s.execToResult(ctx, code, mode, timeout, "", false)
}

func (s *Server) runScript(ctx context.Context, code string, timeout time.Duration, sentinel string) (*mcplib.CallToolResult, error) {
	return s.execToResult(ctx, code, remote.ExecuteFile, timeout, sentinel, true)
}

func (s *Server) execToResult(ctx context.Context, code string, mode remote.ExecType, timeout time.Duration, sentinel string, jsonFallback bool) (*mcplib.CallToolResult, error) {
	resp, err := s.manager.Execute(ctx, code, mode, timeout)
	if err != nil {
		if errors.Is(err, remote.ErrNotConnected) {
			return mcplib.NewToolResultError("Editor is not connected; launch it with editor_launch first."), nil
		}
		return mcplib.NewToolResultError(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	payload := buildExecPayload(resp, sentinel, jsonFallback)
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Encode result: %v", err)), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

// buildExecPayload assembles the tool result for one remote execution.
// With a sentinel, the script must have printed a JSON result after it;
// without one, jsonFallback promotes the last JSON value in the output to
// the result on a best-effort basis.
func buildExecPayload(resp *remote.CommandResponse, sentinel string, jsonFallback bool) map[string]interface{} {
	payload := map[string]interface{}{
		"success": resp.Success,
		"output":  resp.CombinedOutput(),
	}
	if resp.Result != "" {
		payload["result"] = resp.Result
	}
	if !resp.Success && resp.Error != "" {
		payload["error"] = resp.Error
	}
	if !resp.Success {
		return payload
	}

	if sentinel != "" {
		extracted := remote.ExtractSentinelJSON(resp.CombinedOutput(), sentinel)
		if extracted == "" {
			payload["success"] = false
			payload["error"] = fmt.Sprintf("script printed no %q result", sentinel)
		} else {
			payload["result"] = json.RawMessage(extracted)
		}
	} else if jsonFallback && resp.Result == "" {
		if v, ok := remote.LastJSONValue(resp.CombinedOutput()); ok {
			payload["result"] = v
		}
	}
	return payload
}

// buildScriptInvocation wraps a script file in a statement that binds the
// JSON-encoded params into the script's globals and executes it. Triple
// single quotes in paths or params would break the literal and are
// rejected.
func buildScriptInvocation(scriptPath string, params map[string]interface{}) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	if strings.Contains(scriptPath, "'''") || strings.Contains(string(encoded), "'''") {
		return "", fmt.Errorf("triple-quote sequence not allowed")
	}
	return fmt.Sprintf(`import json as _uemcp_json
params = _uemcp_json.loads(r'''%s''')
with open(r'''%s''') as _uemcp_f:
    _uemcp_src = _uemcp_f.read()
exec(compile(_uemcp_src, r'''%s''', 'exec'))
`, encoded, scriptPath, scriptPath), nil
}

func statusResult(st editor.Status) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Encode status: %v", err)), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func markerResult(m *watcher.Marker) (*mcplib.CallToolResult, error) {
	payload := map[string]interface{}{"success": m.Success}
	if m.Error != "" {
		payload["error"] = m.Error
	}
	for k, v := range m.Extra {
		payload[k] = v
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Encode marker: %v", err)), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
