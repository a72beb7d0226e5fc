package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// bridgeSource is the program run inside the node child process. It loads the
// resolved installation, performs exactly one operation described by the JSON
// request on stdin, and writes a JSON reply to stdout. Engine failures are
// written to stderr and exit non-zero; the Go side turns them into RunError.
const bridgeSource = `
const fs = require("fs");

function readStdin() {
  return fs.readFileSync(0, "utf8");
}

async function main() {
  const req = JSON.parse(readStdin());
  const mod = require(req.modulePath);
  const overrides = req.rules && Object.keys(req.rules).length ? req.rules : null;
  let reply;

  if (req.api === "modern") {
    const ESLint = mod.ESLint || (mod.loadESLint ? await mod.loadESLint() : null);
    if (!ESLint) throw new Error("eslint module has no ESLint class");
    const opts = Object.assign({}, req.options || {});
    opts.fix = !!req.fix;
    if (overrides) {
      opts.overrideConfig = Object.assign({}, opts.overrideConfig || {}, {
        rules: Object.assign({}, (opts.overrideConfig || {}).rules || {}, overrides),
      });
    }
    const eslint = new ESLint(opts);
    switch (req.method) {
    case "info":
      reply = { version: mod.ESLint ? mod.ESLint.version : mod.Linter.version };
      break;
    case "lint": {
      const results = await eslint.lintText(req.content, { filePath: req.path, warnIgnored: false });
      const r = results[0] || { messages: [] };
      const meta = typeof eslint.getRulesMetaForResults === "function"
        ? eslint.getRulesMetaForResults(results) : {};
      reply = { messages: r.messages, output: r.output || "", rulesMeta: meta };
      break;
    }
    case "ignored":
      reply = { ignored: await eslint.isPathIgnored(req.path) };
      break;
    case "config":
      reply = { config: await eslint.calculateConfigForFile(req.path) };
      break;
    default:
      throw new Error("unknown method " + req.method);
    }
  } else {
    const CLIEngine = mod.CLIEngine;
    if (!CLIEngine) throw new Error("eslint module has no CLIEngine class");
    const opts = Object.assign({}, req.options || {});
    opts.fix = !!req.fix;
    if (overrides) opts.rules = Object.assign({}, opts.rules || {}, overrides);
    const cli = new CLIEngine(opts);
    switch (req.method) {
    case "info":
      reply = { version: CLIEngine.version };
      break;
    case "lint": {
      const report = cli.executeOnText(req.content, req.path, false);
      const r = report.results[0] || { messages: [] };
      const meta = {};
      if (typeof cli.getRules === "function") {
        for (const [id, rule] of cli.getRules()) {
          if (rule && rule.meta) meta[id] = rule.meta;
        }
      }
      reply = { messages: r.messages, output: r.output || "", rulesMeta: meta };
      break;
    }
    case "ignored":
      reply = { ignored: cli.isPathIgnored(req.path) };
      break;
    case "config":
      reply = { config: cli.getConfigForFile(req.path) };
      break;
    default:
      throw new Error("unknown method " + req.method);
    }
  }
  process.stdout.write(JSON.stringify(reply));
}

main().catch((err) => {
  process.stderr.write(String((err && err.message) || err));
  process.exit(2);
});
`

// bridgeRequest is the single-operation request handed to the node process.
type bridgeRequest struct {
	API        string            `json:"api"`
	ModulePath string            `json:"modulePath"`
	Method     string            `json:"method"`
	Content    string            `json:"content,omitempty"`
	Path       string            `json:"path,omitempty"`
	Fix        bool              `json:"fix,omitempty"`
	Rules      map[string]string `json:"rules,omitempty"`
	Options    json.RawMessage   `json:"options,omitempty"`
}

// RunError is an engine invocation failure with the child's stderr attached.
// The error classifier pattern-matches Stderr to distinguish expected
// conditions (missing config, broken config, missing plugin) from genuine
// failures.
type RunError struct {
	Op       string
	ExitCode int
	Stderr   string
}

func (e *RunError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("engine %s failed: %s", e.Op, msg)
}

// bridgeRunner spawns node processes. Split out so tests can stub it.
type bridgeRunner interface {
	run(ctx context.Context, workdir string, req bridgeRequest) (json.RawMessage, error)
}

type nodeRunner struct {
	nodeBin string
}

func (r nodeRunner) run(ctx context.Context, workdir string, req bridgeRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("engine: encode request: %w", err)
	}
	bin := r.nodeBin
	if bin == "" {
		bin = "node"
	}
	cmd := exec.CommandContext(ctx, bin, "--no-warnings", "-e", bridgeSource)
	// The working directory is scoped to the child; the server process
	// never chdirs.
	cmd.Dir = workdir
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return nil, &RunError{Op: req.Method, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return json.RawMessage(stdout.Bytes()), nil
}
