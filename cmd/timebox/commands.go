package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/ldi/timebox/internal/mcp"
	"github.com/ldi/timebox/internal/store"
	"github.com/ldi/timebox/internal/ui/components"
	"github.com/ldi/timebox/pkg/models"
)

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *app) runAdd(ctx context.Context, args []string) error {
	fs := a.newFlagSet("add")
	desc := fs.String("desc", "", "Task description")
	priority := fs.String("priority", "medium", "Priority (high, medium, low)")
	duration := fs.Int("duration", 0, "Duration in seconds (1-3600)")
	force := fs.Bool("force", false, "Add even if a task with the same description exists")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := models.ParsePriority(*priority)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	task := models.Task{Description: strings.TrimSpace(*desc), Priority: p, Duration: *duration}

	if existing, ok := a.store.FindByDescription(task.Description); ok && !*force {
		return fmt.Errorf("%w: task %d already has the description %q, use -force to add it anyway",
			store.ErrInvalidInput, existing.ID, task.Description)
	}
	return a.addTask(ctx, task)
}

func (a *app) addTask(ctx context.Context, task models.Task) error {
	added, err := a.store.Add(task)
	if err != nil {
		return err
	}
	if err := a.save(ctx); err != nil {
		return err
	}
	a.logger.Info("task added", "task_id", added.ID)
	fmt.Fprintf(a.out, "✓ Added task %d: %s\n", added.ID, added.Description)
	return nil
}

func (a *app) runList(args []string) error {
	fs := a.newFlagSet("list")
	status := fs.String("status", "", "Filter by status (pending, completed)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var tasks []models.Task
	switch strings.ToLower(*status) {
	case "":
		tasks = a.store.All()
	case "pending":
		tasks = a.store.Pending()
	case "completed":
		for _, t := range a.store.All() {
			if t.Completed {
				tasks = append(tasks, t)
			}
		}
	default:
		return fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, *status)
	}

	fmt.Fprintln(a.out, components.TaskTable(tasks))
	return nil
}

func (a *app) runShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: timebox show <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return a.showTask(id)
}

func (a *app) showTask(id int) error {
	t, ok := a.store.Find(id)
	if !ok {
		return fmt.Errorf("task %d: %w", id, store.ErrNotFound)
	}
	fmt.Fprintln(a.out, components.TaskDetail(t))
	return nil
}

func (a *app) runSearch(args []string) error {
	fs := a.newFlagSet("search")
	keyword := fs.String("keyword", "", "Substring of the description")
	priority := fs.String("priority", "", "Priority (high, medium, low)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyword == "" && fs.NArg() > 0 {
		*keyword = strings.Join(fs.Args(), " ")
	}
	return a.search(*keyword, *priority)
}

func (a *app) search(keyword, priority string) error {
	var tasks []models.Task
	switch {
	case priority != "":
		p, err := models.ParsePriority(priority)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
		tasks = a.store.ByPriority(p)
	case keyword != "":
		tasks = a.store.Search(keyword)
	default:
		return fmt.Errorf("%w: -keyword or -priority is required", store.ErrInvalidInput)
	}

	if len(tasks) == 0 {
		fmt.Fprintln(a.out, "No matching tasks found.")
		return nil
	}
	fmt.Fprintln(a.out, components.TaskTable(tasks))
	return nil
}

func (a *app) runDelete(ctx context.Context, args []string) error {
	raw, rest := splitID(args)
	fs := a.newFlagSet("delete")
	yes := fs.Bool("yes", false, "Skip the confirmation")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if raw == "" {
		raw = fs.Arg(0)
	}
	id, err := parseID(raw)
	if err != nil {
		return err
	}
	return a.deleteTask(ctx, id, *yes)
}

func (a *app) deleteTask(ctx context.Context, id int, yes bool) error {
	t, ok := a.store.Find(id)
	if !ok {
		return fmt.Errorf("task %d: %w", id, store.ErrNotFound)
	}
	if !yes {
		ok, err := confirm(fmt.Sprintf("Delete task %d (%s)?", t.ID, t.Description))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.out, "Deletion cancelled.")
			return nil
		}
	}

	a.store.Remove(id)
	if err := a.save(ctx); err != nil {
		return err
	}
	a.logger.Info("task deleted", "task_id", id)
	fmt.Fprintf(a.out, "✓ Deleted task %d\n", id)
	return nil
}

func (a *app) runEdit(ctx context.Context, args []string) error {
	raw, rest := splitID(args)
	fs := a.newFlagSet("edit")
	desc := fs.String("desc", "", "New description")
	priority := fs.String("priority", "", "New priority (high, medium, low)")
	duration := fs.Int("duration", 0, "New duration in seconds")
	toggle := fs.Bool("toggle", false, "Toggle between pending and completed")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if raw == "" {
		raw = fs.Arg(0)
	}
	id, err := parseID(raw)
	if err != nil {
		return err
	}

	t, ok := a.store.Find(id)
	if !ok {
		return fmt.Errorf("task %d: %w", id, store.ErrNotFound)
	}
	if *desc != "" {
		t.Description = strings.TrimSpace(*desc)
	}
	if *priority != "" {
		p, err := models.ParsePriority(*priority)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
		t.Priority = p
	}
	if *duration != 0 {
		t.Duration = *duration
	}
	if *toggle {
		t.Completed = !t.Completed
	}
	return a.updateTask(ctx, t)
}

func (a *app) updateTask(ctx context.Context, t models.Task) error {
	updated, err := a.store.Update(t)
	if err != nil {
		return err
	}
	if err := a.save(ctx); err != nil {
		return err
	}
	a.logger.Info("task updated", "task_id", updated.ID)
	fmt.Fprintf(a.out, "✓ Updated task %d\n", updated.ID)
	fmt.Fprintln(a.out, components.TaskDetail(updated))
	return nil
}

func (a *app) runSort(ctx context.Context, args []string) error {
	fs := a.newFlagSet("sort")
	by := fs.String("by", string(store.SortByPriority), "Sort key (priority, duration, created)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := store.ParseSortKey(*by)
	if err != nil {
		return err
	}
	return a.sortTasks(ctx, key)
}

func (a *app) sortTasks(ctx context.Context, key store.SortKey) error {
	if err := a.store.Sort(key); err != nil {
		return err
	}
	if err := a.save(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Sorted tasks by %s\n", key)
	fmt.Fprintln(a.out, components.TaskTable(a.store.All()))
	return nil
}

func (a *app) runStatus(args []string) error {
	all := a.store.All()
	pending := a.store.Pending()
	pendingTime := 0
	for _, t := range pending {
		pendingTime += t.Duration
	}

	fmt.Fprintln(a.out, "timebox Status")
	fmt.Fprintln(a.out, "==============")
	fmt.Fprintf(a.out, "Total Tasks:     %d / %d\n", len(all), a.store.Capacity())
	fmt.Fprintf(a.out, "Pending:         %d\n", len(pending))
	fmt.Fprintf(a.out, "Completed:       %d\n", len(all)-len(pending))
	fmt.Fprintf(a.out, "Pending Time:    %d seconds\n", pendingTime)
	fmt.Fprintf(a.out, "Max Concurrency: %d\n", a.cfg.MaxConcurrency)

	if len(pending) > 0 {
		fmt.Fprintln(a.out, "\nNext Pending Tasks:")
		for i, t := range pending {
			if i >= 5 {
				break
			}
			fmt.Fprintf(a.out, "  - #%d %s (%s, %ds)\n", t.ID, t.Description, t.Priority, t.Duration)
		}
	}
	return nil
}

func (a *app) runRuns(ctx context.Context, args []string) error {
	fs := a.newFlagSet("runs")
	limit := fs.Int("limit", 10, "Number of runs to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runs, err := a.db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.out, "No runs recorded yet.")
		return nil
	}

	fmt.Fprintf(a.out, "%-8s  %-10s  %-9s  %-5s  %-19s  %s\n", "ID", "MODE", "COMPLETED", "WAVES", "STARTED", "ELAPSED")
	fmt.Fprintln(a.out, strings.Repeat("-", 70))
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		done := fmt.Sprintf("%d/%d", r.Completed, r.Selected)
		if r.Interrupted {
			done += "*"
		}
		if r.Failed > 0 {
			done += "!"
		}
		fmt.Fprintf(a.out, "%-8s  %-10s  %-9s  %-5d  %-19s  %s\n",
			id, r.Mode, done, r.Waves, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Elapsed.Round(100*time.Millisecond))
	}
	return nil
}

func (a *app) runSnapshot(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: timebox snapshot export|import [path]")
	}
	path := a.cfg.SnapshotPath
	if len(args) > 1 {
		path = args[1]
	}

	switch args[0] {
	case "export":
		if err := a.db.ExportSnapshot(ctx, path); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Exported %d task(s) to %s\n", a.store.Len(), path)
		return nil
	case "import":
		if err := a.db.ImportSnapshot(ctx, path); err != nil {
			return err
		}
		if err := a.reload(ctx); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Imported %d task(s) from %s\n", a.store.Len(), path)
		return nil
	default:
		return fmt.Errorf("unknown snapshot command: %s", args[0])
	}
}

func (a *app) runMCP(ctx context.Context, args []string) error {
	s := mcp.NewServer(a.store, a.db, mcp.Options{
		MaxConcurrency: a.cfg.MaxConcurrency,
		Logger:         a.logger,
		Work:           workload,
	})
	a.logger.Info("serving mcp on stdio")
	return mcp.Serve(s)
}
