package tui

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/jask/dexnav/internal/fetch"
	"github.com/jask/dexnav/internal/navigator"
)

const minCardWidth = 36

func (a *App) View() string {
	if a.quitting {
		return ""
	}
	sections := []string{a.renderHeader(), a.renderBody()}
	if a.prompt {
		sections = append(sections, a.input.View())
	}
	if a.status != "" {
		sections = append(sections, statusStyle.Render(a.status))
	}
	sections = append(sections, a.help.View(a.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (a *App) renderHeader() string {
	title := titleStyle.Render("dexnav")
	meta := fmt.Sprintf("#%d  range %s  gen %d", a.state.CurrentID, a.nav.Range(), a.state.Generation)
	if a.opts.BaseURL != "" {
		meta += "  " + a.opts.BaseURL
	}
	return title + "  " + mutedStyle.Render(meta) + "\n"
}

func (a *App) renderBody() string {
	switch a.state.Phase {
	case navigator.PhaseLoading:
		return a.card(cardStyle, fmt.Sprintf("%s loading #%d...", a.spin.View(), a.state.CurrentID))
	case navigator.PhaseLoaded:
		if a.state.Entity != nil {
			return a.card(cardStyle, renderEntity(*a.state.Entity))
		}
	case navigator.PhaseFailed:
		return a.card(errorCardStyle, renderFailure(a.state))
	}
	return a.card(cardStyle, mutedStyle.Render("starting..."))
}

func (a *App) card(style lipgloss.Style, body string) string {
	width := minCardWidth
	if a.width > width+4 {
		width = min(a.width-4, 60)
	}
	return style.Width(width).Render(body)
}

func renderEntity(e fetch.Entity) string {
	image := mutedStyle.Render("no image")
	if e.HasImage() {
		image = valueStyle.Render(e.ImageRef)
	}
	rows := []string{
		nameStyle.Render(titleCase(e.Name)) + "  " + mutedStyle.Render(fmt.Sprintf("#%d", e.ID)),
		"",
		field("height", fmt.Sprintf("%.1f m", e.HeightMetres())),
		field("weight", fmt.Sprintf("%.1f kg", e.WeightKilograms())),
		field("image", image),
	}
	return strings.Join(rows, "\n")
}

func renderFailure(st navigator.State) string {
	rows := []string{
		errorStyle.Render(fmt.Sprintf("could not load #%d", st.CurrentID)),
		"",
		valueStyle.Render(st.Err),
		"",
		hintStyle.Render(recoveryHint(st)),
	}
	return strings.Join(rows, "\n")
}

// recoveryHint suggests the key most likely to get the user out of a
// failure. Navigation away always works, so every hint mentions it.
func recoveryHint(st navigator.State) string {
	switch st.ErrKind {
	case fetch.KindTimeout:
		return "The server is slow. Press r to retry or ←/→ to move on."
	case fetch.KindTransport:
		return "Check your connection, then press r to retry."
	case fetch.KindDecode:
		return "The server sent something unexpected. Press ←/→ to browse elsewhere."
	case fetch.KindHTTPStatus:
		if st.StatusCode == http.StatusNotFound {
			return "Nothing exists at this id. Press ←/→ to return to the range."
		}
		return "The server refused the request. Press r to retry or ←/→ to move on."
	}
	return "Press r to retry or ←/→ to move on."
}

func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
