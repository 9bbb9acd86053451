// Package tui provides a terminal user interface for pianist
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tylerforesthauser/pianist-sub000/pkg/convert"
	"github.com/tylerforesthauser/pianist-sub000/pkg/score"
)

var (
	ivory    = lipgloss.Color("#FFFFF0")
	brass    = lipgloss.Color("#E1C16E")
	felt     = lipgloss.Color("#1E6B40")
	charcoal = lipgloss.Color("#2B2B2B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ivory).
			Background(charcoal).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(ivory).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(brass).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(brass).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#39FF14")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(felt).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateConverting
	StateResult
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	FromFormat  string
	ToFormat    string
	Normalize   bool
}

var menuItems = []MenuItem{
	{Title: "JSON → MIDI", Description: "Render a composition document to a Standard MIDI File", FromFormat: "json", ToFormat: "midi"},
	{Title: "MIDI → JSON", Description: "Import a MIDI file into a composition document", FromFormat: "midi", ToFormat: "json"},
	{Title: "Normalize pedals", Description: "Repair degenerate sustain-pedal patterns in a document", FromFormat: "json", ToFormat: "json", Normalize: true},
	{Title: "Exit", Description: "Exit the application"},
}

// Model represents the TUI model
type Model struct {
	state        State
	menuIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	outputFile   string
	conversion   MenuItem
	err          error
	width        int
	height       int
}

// conversionDoneMsg signals conversion completion
type conversionDoneMsg struct {
	outputFile string
	err        error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New() Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".json", ".mid", ".midi"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(brass)

	return Model{
		state:      StateMenu,
		menuIndex:  0,
		filePicker: fp,
		spinner:    s,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle file picker state first - it needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.state = StateConverting
			return m, tea.Batch(m.spinner.Tick, m.performConversion())
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case conversionDoneMsg:
		m.state = StateResult
		m.outputFile = msg.outputFile
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		if m.menuIndex == len(menuItems)-1 {
			return m, tea.Quit
		}
		m.conversion = menuItems[m.menuIndex]
		m.state = StateFilePicker

		switch m.conversion.FromFormat {
		case "json":
			m.filePicker.AllowedTypes = []string{".json"}
		case "midi":
			m.filePicker.AllowedTypes = []string{".mid", ".midi"}
		}

		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.selectedFile = ""
		m.outputFile = ""
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) performConversion() tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(m.selectedFile)
		if err != nil {
			return conversionDoneMsg{err: err}
		}

		var result []byte
		var outputExt string
		opts := convert.DefaultOptions()

		switch {
		case m.conversion.Normalize:
			result, err = convert.NormalizeJSON(data, score.DefaultPedalConfig())
			outputExt = ".normalized.json"
		case m.conversion.ToFormat == "midi":
			result, err = convert.JSONToMIDI(data, opts)
			outputExt = ".mid"
		default:
			result, err = convert.MIDIToJSON(data, opts)
			outputExt = ".json"
		}

		if err != nil {
			return conversionDoneMsg{err: err}
		}

		base := strings.TrimSuffix(m.selectedFile, filepath.Ext(m.selectedFile))
		outputFile := base + outputExt

		if err := convert.WriteFileAtomic(outputFile, result); err != nil {
			return conversionDoneMsg{err: err}
		}

		return conversionDoneMsg{outputFile: outputFile}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateConverting:
		s.WriteString(m.viewConverting())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT OPERATION "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(brass).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf(" SELECT %s FILE ", strings.ToUpper(m.conversion.FromFormat))))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewConverting() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" CONVERTING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Converting %s...\n", m.spinner.View(), filepath.Base(m.selectedFile)))
	s.WriteString(statusStyle.Render(fmt.Sprintf("  %s → %s", m.conversion.FromFormat, m.conversion.ToFormat)))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Conversion failed: %s", m.err.Error())))
	} else {
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Conversion complete!"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Input:  %s\n", filepath.Base(m.selectedFile)))
		s.WriteString(fmt.Sprintf("Output: %s", filepath.Base(m.outputFile)))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ____  ___    _    _   _ ___ ____ _____
  |  _ \|_ _|  / \  | \ | |_ _/ ___|_   _|
  | |_) || |  / _ \ |  \| || |\___ \ | |
  |  __/ | | / ___ \| |\  || | ___) || |
  |_|   |___/_/   \_\_| \_|___|____/ |_|
`
	return lipgloss.NewStyle().Foreground(ivory).Render(logo)
}

// Run starts the TUI application
func Run() error {
	p := tea.NewProgram(New(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
