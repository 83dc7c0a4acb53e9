package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/mcom/apartment"
	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/wasmclass"
)

const maxEventRows = 12

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#444444"))
)

type modelState int

const (
	stateSelectMethod modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	handle   com.Shared[wasmclass.Invoker]
	host     *host
	events   <-chan apartment.Event
	result   string
	mode     string
	inputs   []textinput.Model
	rows     []table.Row
	table    table.Model
	selected int
	focusIdx int
	state    modelState
}

type eventMsg apartment.Event

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(h *host, handle com.Shared[wasmclass.Invoker], mode string, events <-chan apartment.Event) *interactiveModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Event", Width: 8},
			{Title: "Apt", Width: 4},
			{Title: "Kind", Width: 4},
			{Title: "Cookie", Width: 10},
			{Title: "Status", Width: 22},
		}),
		table.WithHeight(maxEventRows),
	)
	return &interactiveModel{
		host:   h,
		handle: handle,
		mode:   mode,
		events: events,
		table:  t,
		state:  stateSelectMethod,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.waitForEvent
}

func (m *interactiveModel) waitForEvent() tea.Msg {
	e, ok := <-m.events
	if !ok {
		return nil
	}
	return eventMsg(e)
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectMethod && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectMethod && m.selected < len(m.host.methods)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectMethod:
				if len(m.host.methods) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectMethod
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}
		}

	case eventMsg:
		m.addEvent(apartment.Event(msg))
		return m, m.waitForEvent

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) addEvent(e apartment.Event) {
	cookie := ""
	if e.Cookie != 0 {
		cookie = fmt.Sprintf("%#x", e.Cookie)
	}
	kind := ""
	if e.Kind != 0 {
		kind = e.Kind.String()
	}
	m.rows = append(m.rows, table.Row{
		e.Type.String(),
		strconv.FormatUint(e.Apartment, 10),
		kind,
		cookie,
		e.Status.Name(),
	})
	if len(m.rows) > maxEventRows {
		m.rows = m.rows[len(m.rows)-maxEventRows:]
	}
	m.table.SetRows(m.rows)
}

func (m *interactiveModel) prepareInputs() {
	meth := m.host.methods[m.selected]
	m.inputs = make([]textinput.Model, len(meth.Params))
	for i, p := range meth.Params {
		ti := textinput.New()
		ti.Placeholder = witTypeStr(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callMethod runs on a bubbletea goroutine: it enters the MTA and reaches
// the guest through the shared handle, so the call is marshaled into the
// home STA.
func (m *interactiveModel) callMethod() tea.Msg {
	meth := m.host.methods[m.selected]
	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		v, err := convertArg(input.Value(), meth.Params[i])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("arg%d: %w", i, err)}
		}
		args[i] = v
	}

	ctx, _, err := apartment.EnterMTA(context.Background(), m.host.rt)
	if err != nil {
		return callResultMsg{err: err}
	}
	defer apartment.Uninitialize(ctx)

	inv, err := m.handle.Resolve(ctx)
	if err != nil {
		return callResultMsg{err: err}
	}
	defer inv.Release()

	out, err := inv.Get().Invoke(ctx, meth.Name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: fmt.Sprintf("%v", out)}
}

func convertArg(value string, t wit.Type) (any, error) {
	switch t.(type) {
	case wit.S32:
		v, err := strconv.ParseInt(value, 10, 32)
		return int32(v), err
	case wit.S64:
		return strconv.ParseInt(value, 10, 64)
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		return float32(v), err
	case wit.F64:
		return strconv.ParseFloat(value, 64)
	default:
		return nil, fmt.Errorf("unsupported parameter type %s", witTypeStr(t))
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mcom"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("apartment %d, shared via %s", m.host.home.ID(), m.mode))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMethod:
		b.WriteString("Select a method to call from a worker:\n\n")
		for i, meth := range m.host.methods {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatMethod(meth)))
			} else {
				b.WriteString("  " + formatMethod(meth))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		meth := m.host.methods[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(meth.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(witTypeStr(meth.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		meth := m.host.methods[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(meth.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	b.WriteString("\n\n")
	b.WriteString(tableStyle.Render(m.table.View()))
	return b.String()
}

func formatMethod(meth wasmclass.Method) string {
	params := make([]string, len(meth.Params))
	for i, p := range meth.Params {
		params[i] = typeStyle.Render(witTypeStr(p))
	}
	results := make([]string, len(meth.Results))
	for i, r := range meth.Results {
		results[i] = typeStyle.Render(witTypeStr(r))
	}
	s := funcStyle.Render(meth.Name) + "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		s += " -> " + strings.Join(results, ", ")
	}
	return s
}

func witTypeStr(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// runInteractive owns the home STA on the calling goroutine and pumps it
// while the TUI runs on another.
func runInteractive(opts options, log *zap.Logger) error {
	h, err := newHost(opts, log)
	if err != nil {
		return err
	}
	defer h.Close()

	events := make(chan apartment.Event, 256)
	cancel := h.rt.Subscribe(apartment.ObserverFunc(func(e apartment.Event) {
		select {
		case events <- e:
		default:
		}
	}))
	defer cancel()

	obj, err := com.CoCreate[wasmclass.Invoker](h.ctx, &clsidGuest, nil)
	if err != nil {
		return fmt.Errorf("create guest: %w", err)
	}
	defer obj.Release()

	handle, err := share(h.ctx, opts.share, obj)
	if err != nil {
		return fmt.Errorf("share guest: %w", err)
	}
	defer handle.Release()

	p := tea.NewProgram(newInteractiveModel(h, handle, opts.share, events), tea.WithAltScreen())
	return h.home.PumpUntil(h.ctx, func() error {
		_, err := p.Run()
		return err
	})
}
