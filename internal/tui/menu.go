package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dbbackup/internal/backup"
	"dbbackup/internal/catalog"
	"dbbackup/internal/config"
	"dbbackup/internal/database"
	"dbbackup/internal/logger"
	"dbbackup/internal/progress"
	"dbbackup/internal/restore"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			Padding(0, 1)

	menuStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Padding(0, 1)
)

// menuChoice is one entry of the main menu, bound to spec.md §6's
// operator-facing operations.
type menuChoice struct {
	label string
	desc  string
}

var menuChoices = []menuChoice{
	{"Full Backup", "pg_basebackup snapshot of the whole cluster"},
	{"Incremental Backup", "WAL segments since the latest full backup"},
	{"Snapshot Backup", "pg_dump of a single database"},
	{"List Backups", "show catalog entries"},
	{"Restore Full", "restore the latest full backup"},
	{"Restore Incremental", "restore full + incrementals"},
	{"Restore Point-In-Time", "restore up to a target timestamp"},
	{"Restore Snapshot", "pg_restore a snapshot backup"},
	{"List Snapshot Contents", "pg_restore --list on a snapshot"},
	{"Database Status", "connectivity and version check"},
	{"Quit", ""},
}

// MenuModel is the top-level bubbletea model for the interactive menu.
type MenuModel struct {
	config   *config.Config
	logger   logger.Logger
	ctx      context.Context
	cursor   int
	reporter *progress.DetailedReporter
	spinner  spinner.Model
	busy     bool
	result   string
	errMsg   string
	quitting bool
}

type operationDoneMsg struct {
	summary string
	err     error
}

func NewMenuModel(cfg *config.Config, log logger.Logger) MenuModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = progressStyle

	return MenuModel{
		config:   cfg,
		logger:   log,
		ctx:      context.Background(),
		reporter: progress.NewDetailedReporter(progress.NewNullIndicator(), log),
		spinner:  s,
	}
}

func (m MenuModel) Init() tea.Cmd {
	return nil
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			m.result, m.errMsg = "", ""

		case "down", "j":
			if m.cursor < len(menuChoices)-1 {
				m.cursor++
			}
			m.result, m.errMsg = "", ""

		case "enter":
			return m.runSelected()
		}

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case operationDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.result = ""
		} else {
			m.result = msg.summary
			m.errMsg = ""
		}
	}

	return m, nil
}

func (m MenuModel) View() string {
	if m.quitting {
		return "\n  Bye.\n"
	}

	var s strings.Builder
	s.WriteString("\n")
	s.WriteString(titleStyle.Render("dbbackup — interactive menu"))
	s.WriteString("\n\n")

	if m.busy {
		s.WriteString(fmt.Sprintf("  %s running %s...\n\n", m.spinner.View(), menuChoices[m.cursor].label))
		return s.String()
	}

	for i, choice := range menuChoices {
		cursor := "  "
		line := fmt.Sprintf("%s  %s", choice.label, infoStyle.Render(choice.desc))
		if i == m.cursor {
			cursor = "> "
			line = selectedStyle.Render(line)
		}
		s.WriteString(menuStyle.Render(cursor+line) + "\n")
	}

	s.WriteString("\n")
	if m.result != "" {
		s.WriteString(successStyle.Render("✓ "+m.result) + "\n")
	}
	if m.errMsg != "" {
		s.WriteString(errorStyle.Render("✗ "+m.errMsg) + "\n")
	}

	s.WriteString(detailStyle.Render("\n↑/↓: navigate • enter: run • q: quit\n"))
	return s.String()
}

// runSelected dispatches the highlighted menu choice. The operation runs
// synchronously inside its own command, batched with the spinner's tick;
// bubbletea runs each command in a goroutine, so the spinner keeps
// repainting while the blocking work runs.
func (m MenuModel) runSelected() (tea.Model, tea.Cmd) {
	choice := menuChoices[m.cursor]
	if choice.label == "Quit" {
		m.quitting = true
		return m, tea.Quit
	}

	m.busy = true
	m.result, m.errMsg = "", ""

	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		summary, err := m.dispatch(choice.label)
		return operationDoneMsg{summary: summary, err: err}
	})
}

func (m MenuModel) dispatch(label string) (string, error) {
	switch label {
	case "Full Backup":
		return m.runBackup(func(e *backup.Engine) (catalog.Record, error) { return e.Full(m.ctx) })
	case "Incremental Backup":
		return m.runBackup(func(e *backup.Engine) (catalog.Record, error) { return e.Incremental(m.ctx) })
	case "Snapshot Backup":
		return m.runBackup(func(e *backup.Engine) (catalog.Record, error) { return e.Snapshot(m.ctx) })
	case "List Backups":
		return m.listBackups()
	case "Restore Full":
		return m.restoreFull()
	case "Restore Incremental":
		return m.restoreIncremental()
	case "Restore Point-In-Time":
		return m.restorePointInTime()
	case "Restore Snapshot":
		return m.restoreSnapshot()
	case "List Snapshot Contents":
		return m.listSnapshotContents()
	case "Database Status":
		return m.status()
	default:
		return "", fmt.Errorf("unknown menu choice %q", label)
	}
}

func (m MenuModel) connect() (database.Database, error) {
	db, err := database.New(m.config, m.logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(m.ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func (m MenuModel) catalog() (*catalog.Catalog, error) {
	return catalog.Load(m.config.BackupDir, m.logger)
}

func (m MenuModel) runBackup(op func(*backup.Engine) (catalog.Record, error)) (string, error) {
	db, err := m.connect()
	if err != nil {
		return "", err
	}
	defer db.Close()

	cat, err := m.catalog()
	if err != nil {
		return "", err
	}

	engine := backup.New(m.config, m.logger, db, cat, nil)
	record, err := op(engine)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s backup %s complete (%s)", record.Kind, record.ID, record.BackupPath), nil
}

func (m MenuModel) listBackups() (string, error) {
	cat, err := m.catalog()
	if err != nil {
		return "", err
	}

	records := cat.All()
	if len(records) == 0 {
		return "catalog is empty", nil
	}

	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "%s  %-12s %-9s %s\n", r.ID, r.Kind, r.Status, r.StartTime.Format(time.RFC3339))
	}
	return b.String(), nil
}

func (m MenuModel) restoreFull() (string, error) {
	cat, err := m.catalog()
	if err != nil {
		return "", err
	}
	full, ok := cat.LatestFull()
	if !ok {
		return "", fmt.Errorf("no full backup in catalog")
	}

	db, err := m.connect()
	if err != nil {
		return "", err
	}
	defer db.Close()

	engine := restore.New(m.config, m.logger, db)
	rec, err := engine.Full(m.ctx, full, m.targetDir())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("restored full backup %s into %s", full.ID, rec.TargetDir), nil
}

func (m MenuModel) restoreIncremental() (string, error) {
	cat, err := m.catalog()
	if err != nil {
		return "", err
	}
	full, ok := cat.LatestFull()
	if !ok {
		return "", fmt.Errorf("no full backup in catalog")
	}
	incrementals := cat.IncrementalsSince(full.ID)

	db, err := m.connect()
	if err != nil {
		return "", err
	}
	defer db.Close()

	engine := restore.New(m.config, m.logger, db)
	rec, err := engine.Incremental(m.ctx, full, incrementals, m.targetDir())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("restored %s + %d incrementals into %s", full.ID, len(incrementals), rec.TargetDir), nil
}

func (m MenuModel) restorePointInTime() (string, error) {
	cat, err := m.catalog()
	if err != nil {
		return "", err
	}
	full, ok := cat.LatestFull()
	if !ok {
		return "", fmt.Errorf("no full backup in catalog")
	}
	incrementals := cat.IncrementalsSince(full.ID)

	db, err := m.connect()
	if err != nil {
		return "", err
	}
	defer db.Close()

	engine := restore.New(m.config, m.logger, db)
	rec, err := engine.PointInTime(m.ctx, full, incrementals, m.targetDir(), time.Now())
	if err != nil {
		return "", err
	}
	pit := "unknown"
	if rec.PointInTime != nil {
		pit = rec.PointInTime.Format(time.RFC3339)
	}
	return fmt.Sprintf("restored %s up to %s into %s", full.ID, pit, rec.TargetDir), nil
}

func (m MenuModel) restoreSnapshot() (string, error) {
	cat, err := m.catalog()
	if err != nil {
		return "", err
	}
	snapshot, ok := latestSnapshot(cat)
	if !ok {
		return "", fmt.Errorf("no snapshot backup in catalog")
	}

	db, err := m.connect()
	if err != nil {
		return "", err
	}
	defer db.Close()

	engine := restore.New(m.config, m.logger, db)
	rec, err := engine.Snapshot(m.ctx, snapshot, m.targetDir())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("restored snapshot %s into %s", snapshot.ID, rec.TargetDir), nil
}

func (m MenuModel) listSnapshotContents() (string, error) {
	cat, err := m.catalog()
	if err != nil {
		return "", err
	}
	snapshot, ok := latestSnapshot(cat)
	if !ok {
		return "", fmt.Errorf("no snapshot backup in catalog")
	}

	db, err := m.connect()
	if err != nil {
		return "", err
	}
	defer db.Close()

	engine := restore.New(m.config, m.logger, db)
	return engine.ListSnapshotContents(m.ctx, snapshot)
}

func (m MenuModel) status() (string, error) {
	db, err := m.connect()
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := db.Ping(m.ctx); err != nil {
		return "", err
	}
	version, err := db.GetVersion(m.ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("connected to %s:%d — %s", m.config.Host, m.config.Port, version), nil
}

func (m MenuModel) targetDir() string {
	return m.config.BackupDir + "/restore-" + time.Now().Format("20060102-150405")
}

func latestSnapshot(cat *catalog.Catalog) (catalog.Record, bool) {
	var best catalog.Record
	found := false
	for _, r := range cat.All() {
		if r.Kind != catalog.KindSnapshot {
			continue
		}
		if !found || r.StartTime.After(best.StartTime) {
			best = r
			found = true
		}
	}
	return best, found
}

// RunInteractiveMenu launches the bubbletea program for the main menu.
func RunInteractiveMenu(cfg *config.Config, log logger.Logger) error {
	m := NewMenuModel(cfg, log)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
