package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/trajcut/trajcut-agent/internal/project"
	"github.com/trajcut/trajcut-agent/internal/store"
)

//go:embed icon.png
var iconBytes []byte

const refreshInterval = 2 * time.Second

// SessionSource is the part of the editing session the tray reads.
type SessionSource interface {
	Snapshot() project.SessionView
}

// JobSource lists recent service round trips.
type JobSource interface {
	ListJobs(ctx context.Context, limit int) ([]*store.Job, error)
}

type Tray struct {
	session SessionSource
	jobs    JobSource
	logger  *slog.Logger
	apiURL  string

	statusItem  *systray.MenuItem
	projectItem *systray.MenuItem
	lastJobItem *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Session SessionSource
	Jobs    JobSource
	Logger  *slog.Logger
	APIURL  string
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		session: cfg.Session,
		jobs:    cfg.Jobs,
		logger:  cfg.Logger,
		apiURL:  cfg.APIURL,
		onQuit:  cfg.OnQuit,
		stop:    make(chan struct{}),
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Trajcut")
	systray.SetTooltip("Trajcut Agent " + t.apiURL)

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.projectItem = systray.AddMenuItem("No project open", "Open project")
	t.projectItem.Disable()

	t.lastJobItem = systray.AddMenuItem("No service calls yet", "Last stabilization service call")
	t.lastJobItem.Disable()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Trajcut Agent")

	go func() {
		for {
			select {
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-t.stop:
				return
			}
		}
	}()

	go t.refreshLoop()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	t.refresh()
	for {
		select {
		case <-ticker.C:
			t.refresh()
		case <-t.stop:
			return
		}
	}
}

func (t *Tray) refresh() {
	var jobs []*store.Job
	if t.jobs != nil {
		var err error
		jobs, err = t.jobs.ListJobs(context.Background(), 10)
		if err != nil {
			t.logger.Warn("tray failed to list jobs", "error", err)
		}
	}
	lines := Describe(t.session.Snapshot(), jobs, time.Now())

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(lines.Status)
	t.projectItem.SetTitle(lines.Project)
	t.lastJobItem.SetTitle(lines.LastJob)
}

// MenuLines are the tray's read-only menu titles.
type MenuLines struct {
	Status  string
	Project string
	LastJob string
}

// Describe renders a session snapshot and recent jobs, newest first, as
// menu titles.
func Describe(snap project.SessionView, jobs []*store.Job, now time.Time) MenuLines {
	lines := MenuLines{
		Status:  "Status: Idle",
		Project: "No project open",
		LastJob: "No service calls yet",
	}

	for _, j := range jobs {
		if j.Status == store.JobStatusRunning {
			lines.Status = "Status: Busy (" + j.Type + ")"
			break
		}
	}

	if snap.Project != "" {
		lines.Project = fmt.Sprintf("%s: %s, %s picked",
			snap.Project,
			pluralize(len(snap.Library), "clip"),
			humanize.Comma(int64(len(snap.Picked))))
	}

	if len(jobs) > 0 {
		j := jobs[0]
		lines.LastJob = fmt.Sprintf("Last: %s %s %s", j.Type, j.Status, humanize.RelTime(j.UpdatedAt, now, "ago", "from now"))
	}
	return lines
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

func (t *Tray) Quit() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	systray.Quit()
}
