package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"planrag/internal/chunkid"
	"planrag/internal/domain"
	"planrag/internal/modelloader"
	"planrag/internal/service"
	"planrag/internal/summarizer"
)

// SearchPort is the TUI-facing subset of the plan service.
type SearchPort interface {
	Search(ctx context.Context, req service.SearchRequest) ([]domain.QueryResult, error)
	ModelState() modelloader.State
}

type searchDoneMsg struct {
	query   string
	keyword bool
	results []domain.QueryResult
	err     error
}

// Model is the Bubble Tea model for the query interface.
type Model struct {
	ctx       context.Context
	service   SearchPort
	planID    string
	k         int
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.QueryResult
	header    string
	status    string
	cursor    int
	keyword   bool
	searching bool
	ready     bool
	lastQuery string
}

// New creates a model. Searches run under ctx; planID, when set, restricts
// every search to one plan.
func New(ctx context.Context, svc SearchPort, header, planID string, k int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Search plans and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		service:  svc,
		planID:   planID,
		k:        k,
		input:    ti,
		viewport: viewport.New(0, 0),
		header:   header,
		status:   "Ready. Tab toggles semantic/keyword search.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) search(q string) tea.Cmd {
	req := service.SearchRequest{Text: q, K: m.k, Keyword: m.keyword, PlanID: m.planID}
	ctx, svc := m.ctx, m.service
	return func() tea.Msg {
		res, err := svc.Search(ctx, req)
		return searchDoneMsg{query: q, keyword: req.Keyword, results: res, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		// header, mode line, status and one spacer
		reserved := 4 + qh
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil

	case searchDoneMsg:
		m.searching = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q (%s)", len(msg.results), msg.query, modeName(msg.keyword))
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.searching {
				return m, nil
			}
			m.searching = true
			m.status = "Searching..."
			return m, m.search(q)
		case "tab":
			m.keyword = !m.keyword
			m.status = "Mode: " + modeName(m.keyword)
			return m, nil
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
			}
			return m, nil
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
			}
			return m, nil
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("planrag") + "  " + dimStyle.Render(m.header)
	mode := dimStyle.Render("mode: " + modeName(m.keyword) + "  model: " + string(m.service.ModelState()))
	if m.planID != "" {
		mode += dimStyle.Render("  plan: " + m.planID)
	}
	return header + "\n" + mode + "\n" +
		resultBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status)
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s  %s  score=%.3f",
		m.cursor+1, len(m.results), r.Entity.DocumentID, chunkid.Reference(r.Entity.ID), r.Score)
	return title + "\n\n" + highlightBestSentence(r.Entity.Text, m.lastQuery)
}

func modeName(keyword bool) string {
	if keyword {
		return "keyword"
	}
	return "semantic"
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func highlightBestSentence(text, query string) string {
	sentences, best := summarizer.BestSentence(text, query)
	if len(sentences) == 0 {
		return text
	}
	if best >= 0 {
		sentences[best] = highlightStyle.Render(sentences[best])
	}
	return strings.Join(sentences, " ")
}
