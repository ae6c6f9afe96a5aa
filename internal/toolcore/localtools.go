package toolcore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nugget/agentfabric/internal/httpkit"
)

// RegisterDefaultLocalTools wires the four local tools named in §4.6:
// web_search, web_scrape, file_rw, local_file_retriever. workspaceRoot
// scopes file_rw and local_file_retriever the way the teacher's
// workspace-scoped file tools do: no path may resolve outside of it.
func RegisterDefaultLocalTools(r *Registry, workspaceRoot string) error {
	ft := &fileTools{root: workspaceRoot}
	wt := &webTools{client: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second))}

	if err := r.RegisterLocal("web_search", wt.search, json.RawMessage(webSearchSchema)); err != nil {
		return err
	}
	if err := r.RegisterLocal("web_scrape", wt.scrape, json.RawMessage(webScrapeSchema)); err != nil {
		return err
	}
	if err := r.RegisterLocal("file_rw", ft.readWrite, json.RawMessage(fileRWSchema)); err != nil {
		return err
	}
	if err := r.RegisterLocal("local_file_retriever", ft.retrieve, json.RawMessage(fileRetrieverSchema)); err != nil {
		return err
	}
	return nil
}

const webSearchSchema = `{
	"type": "object",
	"properties": {"query": {"type": "string"}},
	"required": ["query"]
}`

const webScrapeSchema = `{
	"type": "object",
	"properties": {"url": {"type": "string"}},
	"required": ["url"]
}`

const fileRWSchema = `{
	"type": "object",
	"properties": {
		"operation": {"type": "string", "enum": ["read", "write"]},
		"path": {"type": "string"},
		"content": {"type": "string"}
	},
	"required": ["operation", "path"]
}`

const fileRetrieverSchema = `{
	"type": "object",
	"properties": {"path": {"type": "string"}},
	"required": ["path"]
}`

type webTools struct {
	client *http.Client
}

// search has no configured provider in this deployment shape; it always
// reports back a clear "not configured" error rather than silently
// returning an empty result set.
func (w *webTools) search(ctx context.Context, params map[string]any) Result {
	query, _ := params["query"].(string)
	if query == "" {
		return Result{Status: StatusValidationError, Error: "query is required"}
	}
	return Result{Status: StatusError, Error: "web_search has no search provider configured"}
}

// scrape fetches a URL and returns its body, capped to a sane size so a
// misbehaving page can't blow up the agent's context.
func (w *webTools) scrape(ctx context.Context, params map[string]any) Result {
	rawURL, _ := params["url"].(string)
	if rawURL == "" {
		return Result{Status: StatusValidationError, Error: "url is required"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("build request: %v", err)}
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("fetch: %v", err)}
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode >= 400 {
		return Result{Status: StatusError, Error: fmt.Sprintf("fetch: unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("read body: %v", err)}
	}
	return Result{Status: StatusSuccess, Data: map[string]any{"url": rawURL, "content": string(body)}}
}

type fileTools struct {
	root string
}

// resolve keeps file_rw and local_file_retriever inside the configured
// workspace root, the same containment file_tools.go enforces for its
// own resolvePath.
func (ft *fileTools) resolve(path string) (string, error) {
	if ft.root == "" {
		return "", fmt.Errorf("file tools disabled: no workspace root configured")
	}
	clean := filepath.Clean("/" + path)
	full := filepath.Join(ft.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(ft.root)+string(os.PathSeparator)) && full != filepath.Clean(ft.root) {
		return "", fmt.Errorf("path escapes workspace root: %s", path)
	}
	return full, nil
}

func (ft *fileTools) readWrite(ctx context.Context, params map[string]any) Result {
	op, _ := params["operation"].(string)
	path, _ := params["path"].(string)
	if op == "" || path == "" {
		return Result{Status: StatusValidationError, Error: "operation and path are required"}
	}

	full, err := ft.resolve(path)
	if err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}

	switch op {
	case "read":
		data, err := os.ReadFile(full)
		if err != nil {
			return Result{Status: StatusError, Error: fmt.Sprintf("read %s: %v", path, err)}
		}
		return Result{Status: StatusSuccess, Data: map[string]any{"path": path, "content": string(data)}}
	case "write":
		content, _ := params["content"].(string)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return Result{Status: StatusError, Error: fmt.Sprintf("create parent dirs: %v", err)}
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return Result{Status: StatusError, Error: fmt.Sprintf("write %s: %v", path, err)}
		}
		return Result{Status: StatusSuccess, Data: map[string]any{"path": path, "bytes_written": len(content)}}
	default:
		return Result{Status: StatusValidationError, Error: fmt.Sprintf("unknown operation %q", op)}
	}
}

// retrieve is the read-only counterpart to file_rw: it never creates or
// modifies anything, suited to agents that only need lookup access.
func (ft *fileTools) retrieve(ctx context.Context, params map[string]any) Result {
	path, _ := params["path"].(string)
	if path == "" {
		return Result{Status: StatusValidationError, Error: "path is required"}
	}

	full, err := ft.resolve(path)
	if err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}

	info, err := os.Stat(full)
	if err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("stat %s: %v", path, err)}
	}
	if info.IsDir() {
		entries, err := os.ReadDir(full)
		if err != nil {
			return Result{Status: StatusError, Error: fmt.Sprintf("list %s: %v", path, err)}
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return Result{Status: StatusSuccess, Data: map[string]any{"path": path, "entries": names}}
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Result{Status: StatusSuccess, Data: map[string]any{"path": path, "content": string(data)}}
}
