package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragpipe/internal/synthesis"
)

// QueryPort is the TUI-facing subset of the pipeline.
type QueryPort interface {
	Query(ctx context.Context, query string) (synthesis.Response, error)
}

// quitWords are typed commands that end the session, in addition to the
// usual control keys.
var quitWords = map[string]bool{"quit": true, "exit": true, "q": true}

// Model is the Bubble Tea model for the interactive query loop.
type Model struct {
	pipeline  QueryPort
	input     textinput.Model
	viewport  viewport.Model
	response  synthesis.Response
	summary   string
	status    string
	cursor    int // -1 shows the answer, >= 0 an evidence segment
	ready     bool
	answered  bool
	lastQuery string
}

// New creates a new TUI model instance.
func New(pipeline QueryPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (quit to exit)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{pipeline: pipeline, input: ti, viewport: vp, summary: summary, cursor: -1, status: "Index loaded. Ask away."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around answer and query boxes
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = maxInt(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				break
			}
			if quitWords[strings.ToLower(q)] {
				return m, tea.Quit
			}
			m.status = "Thinking..."
			resp, err := m.pipeline.Query(context.Background(), q)
			if err != nil {
				m.status = "Error: " + err.Error()
				m.response = resp
				m.answered = false
			} else {
				m.status = fmt.Sprintf("Answer for %q  (up/down cycles evidence)", q)
				m.response = resp
				m.answered = true
				m.cursor = -1
				m.lastQuery = q
			}
			m.input.SetValue("")
			m.viewport.SetContent(m.renderCurrent())
			return m, nil
		case "down":
			if m.answered && len(m.response.Evidence) > 0 {
				m.cursor++
				if m.cursor >= len(m.response.Evidence) {
					m.cursor = -1
				}
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if m.answered && len(m.response.Evidence) > 0 {
				m.cursor--
				if m.cursor < -1 {
					m.cursor = len(m.response.Evidence) - 1
				}
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and the current answer or evidence segment.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ragpipe")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	answer := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + answer + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if !m.answered {
		return "No answer yet."
	}
	if m.cursor < 0 {
		return lipgloss.NewStyle().Bold(true).Render("Answer") + "\n\n" + m.response.Answer
	}
	e := m.response.Evidence[m.cursor]
	title := fmt.Sprintf("Evidence %d/%d  source=%s  score=%.3f",
		m.cursor+1, len(m.response.Evidence), e.Segment.Source, e.Score)
	body := highlightBestSentence(e.Segment.Text, m.lastQuery)
	return title + "\n\n" + body
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
