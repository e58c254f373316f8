package main

/*------------------------------------------------------------------
 *
 * Purpose:	"plugctl watch" — a live terminal dashboard of the fleet,
 *		polling the control socket's "list"/"info" commands.
 *
 * Description:	asokapy's interactive.py is a curses table refreshed on
 *		a timer; this is its bubbletea/lipgloss descendant, styled
 *		after guiperry-HASHER's ui.go (header/footer bars, a
 *		bordered content box, a tea.Tick poll loop) since the
 *		teacher repo has no TUI of its own to generalize.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hpavctl/plugd/internal/plug"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const watchPollInterval = 2 * time.Second

var (
	watchHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#000000")).
				Background(lipgloss.Color("#FFFF00")).
				Bold(true).
				Padding(0, 1)

	watchFooterStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color("#4B5563")).
				Padding(0, 1)

	watchTableStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	watchOnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399")).Bold(true)
	watchOffStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

type watchRow struct {
	mac   string
	alias string
	info  plug.DeviceInfo
}

type watchModel struct {
	socketPath string
	rows       []watchRow
	err        error
	width      int
	height     int
}

type watchTickMsg struct{}

type watchDataMsg struct {
	rows []watchRow
	err  error
}

type watchToggleMsg struct {
	err error
}

func runWatch(socketPath string) error {
	m := watchModel{socketPath: socketPath, width: 80, height: 24}

	p := tea.NewProgram(m)
	_, err := p.Run()

	return err
}

func (m watchModel) Init() tea.Cmd {
	return m.poll()
}

func (m watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		rows, err := fetchRows(m.socketPath)

		return watchDataMsg{rows: rows, err: err}
	}
}

func fetchRows(socketPath string) ([]watchRow, error) {
	listResp, err := call(socketPath, plug.ControlRequest{Cmd: "list"})
	if err != nil {
		return nil, err
	}

	rows := make([]watchRow, 0, len(listResp.List))

	for _, e := range listResp.List {
		infoResp, err := call(socketPath, plug.ControlRequest{Cmd: "info", MAC: e.MAC})
		if err != nil {
			rows = append(rows, watchRow{mac: e.MAC, alias: e.Alias})

			continue
		}

		rows = append(rows, watchRow{mac: e.MAC, alias: e.Alias, info: *infoResp.Info})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].mac < rows[j].mac })

	return rows, nil
}

// toggle commands row's device on or off, flipping its last-observed
// state — the direct functional descendant of interactive.py's numeric
// key handler, which maps a digit to a row and calls device_on/device_off.
func (m watchModel) toggle(row watchRow) tea.Cmd {
	return func() tea.Msg {
		cmd := "on"
		if row.info.IsOnKnown && row.info.IsOn {
			cmd = "off"
		}

		_, err := call(m.socketPath, plug.ControlRequest{Cmd: cmd, MAC: row.mac})

		return watchToggleMsg{err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
			idx := int(msg.String()[0] - '0')
			if idx < len(m.rows) {
				return m, m.toggle(m.rows[idx])
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case watchDataMsg:
		m.rows = msg.rows
		m.err = msg.err

		return m, tea.Tick(watchPollInterval, func(time.Time) tea.Msg { return watchTickMsg{} })
	case watchTickMsg:
		return m, m.poll()
	case watchToggleMsg:
		m.err = msg.err

		return m, m.poll()
	}

	return m, nil
}

func (m watchModel) View() string {
	if m.width < 20 {
		m.width = 20
	}

	header := watchHeaderStyle.Width(m.width).Render(fmt.Sprintf(" plugctl watch — %d device(s)", len(m.rows)))
	footer := watchFooterStyle.Width(m.width).Render(" q to quit   0-9 toggle device on/off")

	var body strings.Builder

	if m.err != nil {
		body.WriteString(watchErrorStyle.Render(m.err.Error()))
	} else {
		fmt.Fprintf(&body, "%-3s %-18s %-12s %-10s %-8s %7s\n", "#", "MAC", "ALIAS", "STATE", "POWER", "WATTS")
		body.WriteString(strings.Repeat("─", m.width-6) + "\n")

		for i, r := range m.rows {
			powerCell := watchOffStyle.Render("unknown")
			if r.info.IsOnKnown {
				if r.info.IsOn {
					powerCell = watchOnStyle.Render("on")
				} else {
					powerCell = watchOffStyle.Render("off")
				}
			}

			wattsCell := ""
			if r.info.PowerKnown {
				wattsCell = fmt.Sprintf("%.1f", r.info.Power)
			}

			idxCell := ""
			if i < 10 {
				idxCell = fmt.Sprintf("%d", i)
			}

			fmt.Fprintf(&body, "%-3s %-18s %-12s %-10s %-8s %7s\n", idxCell, r.mac, r.alias, r.info.State, powerCell, wattsCell)
		}
	}

	table := watchTableStyle.Width(m.width - 4).Render(body.String())

	return lipgloss.JoinVertical(lipgloss.Left, header, table, footer)
}
