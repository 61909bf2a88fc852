package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-multivalue/config"
	"github.com/wippyai/wasm-multivalue/env"
	"github.com/wippyai/wasm-multivalue/guest"
	"github.com/wippyai/wasm-multivalue/runtime"
)

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
)

type modelState int

const (
	stateSelectSource modelState = iota
	stateSelectFunc
	stateInputArgs
	stateShowResult
)

// source is one guest the picker can load: an embedded demo or the file
// given on the command line.
type source struct {
	name        string
	description string
	load        func(ctx context.Context, rt *runtime.Runtime) (*runtime.Module, error)
}

type interactiveModel struct {
	err      error
	cfg      *config.Config
	logger   *zap.Logger
	rt       *runtime.Runtime
	module   *runtime.Module
	output   string
	result   string
	sources  []source
	exports  []runtime.Export
	inputs   []textinput.Model
	source   int
	selected int
	focusIdx int
	state    modelState
}

type loadedMsg struct {
	err     error
	mod     *runtime.Module
	exports []runtime.Export
}

type callResultMsg struct {
	err    error
	output string
	result string
}

func newInteractiveModel(cfg *config.Config, logger *zap.Logger, rt *runtime.Runtime, sources []source) *interactiveModel {
	m := &interactiveModel{
		cfg:     cfg,
		logger:  logger,
		rt:      rt,
		sources: sources,
		state:   stateSelectSource,
	}
	for i, s := range sources {
		if s.name == cfg.Demo {
			m.source = i
		}
	}
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	if len(m.sources) == 1 {
		return m.loadModule
	}
	return nil
}

func (m *interactiveModel) loadModule() tea.Msg {
	mod, err := m.sources[m.source].load(context.Background(), m.rt)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{mod: mod, exports: mod.Exports()}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateInputArgs && msg.String() != "ctrl+c" && msg.String() != "enter" &&
			msg.String() != "tab" && msg.String() != "esc" {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			switch m.state {
			case stateSelectSource:
				if m.source > 0 {
					m.source--
				}
			case stateSelectFunc:
				if m.selected > 0 {
					m.selected--
				}
			}

		case "down", "j":
			switch m.state {
			case stateSelectSource:
				if m.source < len(m.sources)-1 {
					m.source++
				}
			case stateSelectFunc:
				if m.selected < len(m.exports)-1 {
					m.selected++
				}
			}

		case "enter":
			switch m.state {
			case stateSelectSource:
				return m, m.loadModule

			case stateSelectFunc:
				if len(m.exports) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.resetResult()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateSelectFunc:
				if len(m.sources) > 1 {
					m.state = stateSelectSource
					m.module = nil
					m.exports = nil
					m.selected = 0
				}
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.resetResult()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.module = msg.mod
		m.exports = msg.exports
		m.selected = 0
		m.state = stateSelectFunc

	case callResultMsg:
		m.output = msg.output
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

func (m *interactiveModel) resetResult() {
	m.output = ""
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	exp := m.exports[m.selected]
	m.inputs = make([]textinput.Model, len(exp.Params))
	for i, p := range exp.Params {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callFunction runs the selected export in a fresh instance so a captured
// import error does not block later calls.
func (m *interactiveModel) callFunction() tea.Msg {
	ctx := context.Background()
	if m.module == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}

	exp := m.exports[m.selected]
	args := make([]uint64, len(m.inputs))
	for i, input := range m.inputs {
		v, err := parseArg(input.Value(), exp.Params[i])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("arg%d: %w", i, err)}
		}
		args[i] = v
	}

	if timeout := m.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var out bytes.Buffer
	e := env.New(env.WithLogger(m.logger), env.WithLogDiscarded(m.cfg.LogDiscarded))
	reg, err := newRegistry(e, m.cfg, &out)
	if err != nil {
		return callResultMsg{err: err}
	}

	inst, err := m.module.Instantiate(ctx, reg)
	if err != nil {
		return callResultMsg{err: err}
	}
	defer inst.Close(ctx)

	results, err := inst.Call(ctx, exp.Name, args...)
	if err == nil {
		err = inst.Err()
	}
	msg := callResultMsg{output: out.String(), err: err}
	if err == nil {
		msg.result = formatResults(exp.Results, results)
	}
	return msg
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Multivalue Runner"))
	if m.state != stateSelectSource {
		b.WriteString(" ")
		b.WriteString(m.sources[m.source].name)
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectSource:
		b.WriteString("Select a guest:\n\n")
		for i, s := range m.sources {
			line := funcStyle.Render(s.name)
			if s.description != "" {
				line += "  " + helpStyle.Render(s.description)
			}
			if i == m.source {
				b.WriteString(selectedStyle.Render("> " + s.name))
				if s.description != "" {
					b.WriteString("  " + helpStyle.Render(s.description))
				}
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter load • q quit"))

	case stateSelectFunc:
		if len(m.exports) == 0 {
			b.WriteString("Module exports no functions.\n\n")
			b.WriteString(helpStyle.Render("esc back • q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, exp := range m.exports {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + exp.String()))
			} else {
				b.WriteString("  " + formatExport(exp))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • esc back • q quit"))

	case stateInputArgs:
		exp := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(exp.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(exp.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		exp := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(exp.Name)))
		if m.output != "" {
			b.WriteString(m.output)
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatExport(exp runtime.Export) string {
	types := func(ts []api.ValueType) string {
		names := make([]string, len(ts))
		for i, t := range ts {
			names[i] = typeStyle.Render(api.ValueTypeName(t))
		}
		return "(" + strings.Join(names, ", ") + ")"
	}
	return funcStyle.Render(exp.Name) + types(exp.Params) + " -> " + types(exp.Results)
}

func interactiveSources(opts options) []source {
	switch {
	case opts.wasmFile != "":
		return []source{{
			name: opts.wasmFile,
			load: func(ctx context.Context, rt *runtime.Runtime) (*runtime.Module, error) {
				return rt.LoadFile(ctx, opts.wasmFile)
			},
		}}
	case opts.watFile != "":
		return []source{{
			name: opts.watFile,
			load: func(ctx context.Context, rt *runtime.Runtime) (*runtime.Module, error) {
				data, err := os.ReadFile(opts.watFile)
				if err != nil {
					return nil, err
				}
				return rt.LoadWAT(ctx, string(data))
			},
		}}
	}

	names := guest.Names()
	sources := make([]source, len(names))
	for i, name := range names {
		sources[i] = source{
			name:        name,
			description: guest.Describe(name),
			load: func(ctx context.Context, rt *runtime.Runtime) (*runtime.Module, error) {
				bin, err := guest.Compile(name)
				if err != nil {
					return nil, err
				}
				return rt.LoadWASM(ctx, bin)
			},
		}
	}
	return sources
}

func runInteractive(cfg *config.Config, opts options, logger *zap.Logger) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal on stdout")
	}

	ctx := context.Background()
	rt, err := runtime.New(ctx, cfg.Runtime())
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	sources := interactiveSources(opts)
	logger.Debug("starting interactive mode", zap.Int("sources", len(sources)))

	// Logs would corrupt the alternate screen.
	installLogger(zap.NewNop())

	p := tea.NewProgram(newInteractiveModel(cfg, zap.NewNop(), rt, sources), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
