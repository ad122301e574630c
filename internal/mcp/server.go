package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ldi/timebox/internal/countdown"
	"github.com/ldi/timebox/internal/db"
	"github.com/ldi/timebox/internal/logging"
	"github.com/ldi/timebox/internal/orchestrator"
	"github.com/ldi/timebox/internal/selection"
	"github.com/ldi/timebox/internal/store"
	"github.com/ldi/timebox/internal/worker"
	"github.com/ldi/timebox/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Options tunes the executors started from tool calls.
type Options struct {
	MaxConcurrency int
	Logger         *slog.Logger
	// Work replaces the countdown workload. Used by tests.
	Work func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error
}

// handler holds what every tool needs. writeMu is held by runs and by
// every tool that changes the collection, so only the executor mutates
// tasks while a run is in flight. Read-only tools do not take it.
type handler struct {
	store    *store.Store
	database *db.DB
	opts     Options
	writeMu  sync.Mutex
}

// NewServer creates a new MCP server.
func NewServer(s *store.Store, database *db.DB, opts Options) *server.MCPServer {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.MaxConcurrency < 1 || opts.MaxConcurrency > orchestrator.MaxConcurrency {
		opts.MaxConcurrency = orchestrator.MaxConcurrency
	}
	h := &handler{store: s, database: database, opts: opts}

	srv := server.NewMCPServer("timebox", "0.1.0")

	// Task Management
	srv.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks in their current order."),
		mcp.WithString("status", mcp.Description("Filter by status (pending|completed|all, default all)")),
	), h.listTasks)

	srv.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by id."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
	), h.getTask)

	srv.AddTool(mcp.NewTool("add_task",
		mcp.WithDescription("Add a new pending task."),
		mcp.WithString("description", mcp.Description("Task description (max 255 chars)"), mcp.Required()),
		mcp.WithString("priority", mcp.Description("Priority (high|medium|low)"), mcp.Required()),
		mcp.WithNumber("duration", mcp.Description("Duration in seconds (1-3600)"), mcp.Required()),
		mcp.WithBoolean("force", mcp.Description("Add even if a task with the same description exists")),
	), h.addTask)

	srv.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update an existing task."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("priority", mcp.Description("New priority (high|medium|low)")),
		mcp.WithNumber("duration", mcp.Description("New duration in seconds")),
		mcp.WithBoolean("toggle", mcp.Description("Toggle completed/pending")),
	), h.updateTask)

	srv.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
	), h.deleteTask)

	srv.AddTool(mcp.NewTool("search_tasks",
		mcp.WithDescription("Search tasks by description keyword or by priority."),
		mcp.WithString("keyword", mcp.Description("Substring of the description")),
		mcp.WithString("priority", mcp.Description("Priority (high|medium|low)")),
	), h.searchTasks)

	srv.AddTool(mcp.NewTool("sort_tasks",
		mcp.WithDescription("Reorder the collection in place."),
		mcp.WithString("by", mcp.Description("Sort key (priority|duration|created)"), mcp.Required()),
	), h.sortTasks)

	// Execution
	srv.AddTool(mcp.NewTool("resolve_selection",
		mcp.WithDescription("Resolve a selection string (\"all\" or comma/space separated ids) against pending tasks."),
		mcp.WithString("selection", mcp.Description("Selection string"), mcp.Required()),
	), h.resolveSelection)

	srv.AddTool(mcp.NewTool("execute_tasks",
		mcp.WithDescription("Run the selected pending tasks concurrently in waves and wait for the result."),
		mcp.WithString("selection", mcp.Description("Selection string"), mcp.Required()),
		mcp.WithNumber("max_concurrency", mcp.Description("Units per wave (1-10)")),
	), h.executeTasks)

	srv.AddTool(mcp.NewTool("execute_all",
		mcp.WithDescription("Run every pending task one at a time, most urgent and shortest first."),
	), h.executeAll)

	srv.AddTool(mcp.NewTool("execute_task",
		mcp.WithDescription("Run a single pending task."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
	), h.executeTask)

	srv.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recorded runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
	), h.listRuns)

	return srv
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *handler) persist(ctx context.Context) error {
	tasks, nextID := h.store.Snapshot()
	return h.database.Save(ctx, tasks, nextID)
}

func (h *handler) listTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := strings.ToLower(mcp.ParseString(request, "status", "all"))

	var tasks []models.Task
	switch status {
	case "all", "":
		tasks = h.store.All()
	case "pending":
		tasks = h.store.Pending()
	case "completed":
		for _, t := range h.store.All() {
			if t.Completed {
				tasks = append(tasks, t)
			}
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown status '%s'", status)), nil
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return jsonResult(map[string]any{"tasks": tasks})
}

func (h *handler) getTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseInt(request, "id", 0)
	t, ok := h.store.Find(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Task %d not found", id)), nil
	}
	return jsonResult(t)
}

func (h *handler) addTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	description := strings.TrimSpace(mcp.ParseString(request, "description", ""))
	priority, err := models.ParsePriority(mcp.ParseString(request, "priority", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	duration := mcp.ParseInt(request, "duration", 0)
	force := mcp.ParseBoolean(request, "force", false)

	if existing, ok := h.store.FindByDescription(description); ok && !force {
		return mcp.NewToolResultError(fmt.Sprintf("A task with description '%s' already exists (id %d); pass force to add anyway", description, existing.ID)), nil
	}

	t, err := h.store.Add(models.Task{Description: description, Priority: priority, Duration: duration})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.persist(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t)
}

func (h *handler) updateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	id := mcp.ParseInt(request, "id", 0)
	t, ok := h.store.Find(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Task %d not found", id)), nil
	}

	args, _ := request.Params.Arguments.(map[string]any)
	if description, ok := args["description"].(string); ok {
		t.Description = strings.TrimSpace(description)
	}
	if p, ok := args["priority"].(string); ok {
		priority, err := models.ParsePriority(p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		t.Priority = priority
	}
	if _, ok := args["duration"]; ok {
		t.Duration = mcp.ParseInt(request, "duration", t.Duration)
	}
	if mcp.ParseBoolean(request, "toggle", false) {
		t.Completed = !t.Completed
	}

	updated, err := h.store.Update(t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.persist(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(updated)
}

func (h *handler) deleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	id := mcp.ParseInt(request, "id", 0)
	if !h.store.Remove(id) {
		return mcp.NewToolResultError(fmt.Sprintf("Task %d not found", id)), nil
	}
	if err := h.persist(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %d deleted successfully", id)), nil
}

func (h *handler) searchTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword := mcp.ParseString(request, "keyword", "")
	p := mcp.ParseString(request, "priority", "")

	var tasks []models.Task
	switch {
	case p != "":
		priority, err := models.ParsePriority(p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tasks = h.store.ByPriority(priority)
	case keyword != "":
		tasks = h.store.Search(keyword)
	default:
		return mcp.NewToolResultError("keyword or priority is required"), nil
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return jsonResult(map[string]any{"tasks": tasks})
}

func (h *handler) sortTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	key, err := store.ParseSortKey(mcp.ParseString(request, "by", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.store.Sort(key); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.persist(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"tasks": h.store.All()})
}

func (h *handler) resolveSelection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel, err := selection.Resolve(h.store.All(), mcp.ParseString(request, "selection", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"task_ids":       sel.IDs(),
		"total_duration": sel.TotalDuration(),
	})
}

func (h *handler) executeTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	sel, err := selection.Resolve(h.store.All(), mcp.ParseString(request, "selection", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k := mcp.ParseInt(request, "max_concurrency", h.opts.MaxConcurrency)
	if k < 1 || k > orchestrator.MaxConcurrency {
		return mcp.NewToolResultError(fmt.Sprintf("max_concurrency must be between 1 and %d", orchestrator.MaxConcurrency)), nil
	}

	o := orchestrator.NewOrchestrator(h.store, h.database, k, h.opts.Logger)
	if h.opts.Work != nil {
		o.SetWorkFunc(h.opts.Work)
	}
	run, err := o.RunConcurrent(ctx, sel)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(run)
}

func (h *handler) newWorker() *worker.Worker {
	w := worker.NewWorker(h.store, h.database, h.opts.Logger)
	w.NoTUI = true
	w.Out = io.Discard
	if h.opts.Work != nil {
		w.SetWorkFunc(h.opts.Work)
	}
	return w
}

func (h *handler) executeAll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	run, err := h.newWorker().RunAll(ctx)
	if errors.Is(err, worker.ErrNoPendingTasks) {
		return mcp.NewToolResultText("No pending tasks"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(run)
}

func (h *handler) executeTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseInt(request, "id", 0)

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	run, err := h.newWorker().RunOne(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(run)
}

func (h *handler) listRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := h.database.ListRuns(ctx, mcp.ParseInt(request, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	return jsonResult(map[string]any{"runs": runs})
}
