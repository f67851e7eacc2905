// Package tui is the terminal front end: it holds the authenticated user's
// todo list as local state, re-fetching the full list after every successful
// mutation rather than merging optimistically.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"tickbox/internal/client"
)

type todosMsg []client.Todo

type mutatedMsg struct{}

type createdMsg struct{}

type errMsg struct{ err error }

type api interface {
	List(ctx context.Context) ([]client.Todo, error)
	Create(ctx context.Context, title, description string) (client.Todo, error)
	Update(ctx context.Context, id string, patch client.Patch) (client.Todo, error)
	Delete(ctx context.Context, id string) error
}

type Model struct {
	api  api
	user client.User

	todos   []client.Todo
	cursor  int
	loading bool

	// adding is true while the inline create form is open; submitting locks
	// it until the in-flight create resolves, so a rapid double enter cannot
	// submit twice.
	adding     bool
	submitting bool
	titleInput textinput.Model
	descInput  textinput.Model
	focusDesc  bool

	status  string
	spinner spinner.Model
}

func New(apiClient api, user client.User) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Title"
	ti.CharLimit = 200

	di := textinput.New()
	di.Prompt = "> "
	di.Placeholder = "Description (optional)"
	di.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		api:        apiClient,
		user:       user,
		loading:    true,
		titleInput: ti,
		descInput:  di,
		spinner:    sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchTodos(), m.spinner.Tick)
}

func (m Model) fetchTodos() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		todos, err := m.api.List(ctx)
		if err != nil {
			return errMsg{err}
		}
		return todosMsg(todos)
	}
}

func (m Model) createTodo(title, description string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := m.api.Create(ctx, title, description); err != nil {
			return errMsg{err}
		}
		return createdMsg{}
	}
}

func (m Model) toggleTodo(todo client.Todo) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		completed := !todo.Completed
		if _, err := m.api.Update(ctx, todo.ID, client.Patch{Completed: &completed}); err != nil {
			return errMsg{err}
		}
		return mutatedMsg{}
	}
}

func (m Model) deleteTodo(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.api.Delete(ctx, id); err != nil {
			return errMsg{err}
		}
		return mutatedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case todosMsg:
		m.todos = msg
		m.loading = false
		if m.cursor >= len(m.todos) {
			m.cursor = len(m.todos) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case createdMsg:
		m.submitting = false
		m.adding = false
		m.titleInput.SetValue("")
		m.descInput.SetValue("")
		m.focusDesc = false
		return m, m.fetchTodos()

	case mutatedMsg:
		return m, m.fetchTodos()

	case errMsg:
		// Prior state stays intact; the failure is only surfaced.
		m.submitting = false
		m.loading = false
		m.status = msg.err.Error()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		return m.updateList(msg)
	}

	return m, nil
}

func (m Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.submitting {
			return m, nil
		}
		m.adding = false
		m.titleInput.SetValue("")
		m.descInput.SetValue("")
		m.focusDesc = false
		return m, nil

	case "tab":
		m.focusDesc = !m.focusDesc
		if m.focusDesc {
			m.titleInput.Blur()
			return m, m.descInput.Focus()
		}
		m.descInput.Blur()
		return m, m.titleInput.Focus()

	case "enter":
		if m.submitting {
			return m, nil
		}
		title := strings.TrimSpace(m.titleInput.Value())
		if title == "" {
			m.status = "Title is required"
			return m, nil
		}
		m.submitting = true
		m.status = ""
		return m, m.createTodo(title, strings.TrimSpace(m.descInput.Value()))
	}

	if m.submitting {
		return m, nil
	}
	var cmd tea.Cmd
	if m.focusDesc {
		m.descInput, cmd = m.descInput.Update(msg)
	} else {
		m.titleInput, cmd = m.titleInput.Update(msg)
	}
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.todos)-1 {
			m.cursor++
		}
		return m, nil

	case "a":
		m.adding = true
		m.status = ""
		m.focusDesc = false
		m.descInput.Blur()
		return m, m.titleInput.Focus()

	case "r":
		m.status = ""
		return m, m.fetchTodos()

	case " ", "enter":
		if len(m.todos) == 0 {
			return m, nil
		}
		m.status = ""
		return m, m.toggleTodo(m.todos[m.cursor])

	case "d", "x":
		if len(m.todos) == 0 {
			return m, nil
		}
		m.status = ""
		return m, m.deleteTodo(m.todos[m.cursor].ID)
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	done := 0
	for _, t := range m.todos {
		if t.Completed {
			done++
		}
	}
	b.WriteString(fmt.Sprintf("%s  %s\n", titleStyle.Render("My Todos"), mutedStyle.Render(m.user.Name)))
	b.WriteString(fmt.Sprintf("%s %d  %s %d\n\n",
		successStyle.Render("✔"), done,
		pendingStyle.Render("•"), len(m.todos)-done,
	))

	switch {
	case m.loading:
		b.WriteString(m.spinner.View() + " Loading...\n")
	case len(m.todos) == 0:
		b.WriteString(mutedStyle.Render("No todos yet. Press a to create your first one.") + "\n")
	default:
		now := time.Now()
		for i, t := range m.todos {
			b.WriteString(renderTodo(t, i == m.cursor, now) + "\n")
		}
	}

	if m.adding {
		b.WriteString("\n" + titleStyle.Render("Add New Todo") + "\n")
		b.WriteString(m.titleInput.View() + "\n")
		b.WriteString(m.descInput.View() + "\n")
		if m.submitting {
			b.WriteString(m.spinner.View() + " Adding...\n")
		} else {
			b.WriteString(helpStyle.Render("enter save · tab switch field · esc cancel") + "\n")
		}
	}

	if m.status != "" {
		b.WriteString("\n" + errorStyle.Render("✖ "+m.status) + "\n")
	}

	if !m.adding {
		b.WriteString("\n" + helpStyle.Render("a add · space toggle · d delete · r refresh · q quit") + "\n")
	}

	return b.String()
}

func renderTodo(t client.Todo, selected bool, now time.Time) string {
	box := mutedStyle.Render(boxUnchecked)
	text := t.Title
	if t.Completed {
		box = successStyle.Render(boxChecked)
		text = doneStyle.Render(text)
	} else if selected {
		text = selectedStyle.Render(text)
	}

	prefix := "  "
	if selected {
		prefix = selectedStyle.Render("> ")
	}

	line := fmt.Sprintf("%s%s %s %s", prefix, box, text, mutedStyle.Render(relativeTime(t.CreatedAt, now)))
	if t.Description != "" {
		line += "\n" + mutedStyle.Render("      "+t.Description)
	}
	return line
}
