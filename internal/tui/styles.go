package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/silkyclouds/Autokong/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	focusStyle   = panelStyle.BorderForeground(lipgloss.Color("62"))
)

func statusStyle(s models.RunStatus) lipgloss.Style {
	switch s {
	case models.StatusOK:
		return okStyle
	case models.StatusError:
		return errorStyle
	case models.StatusRunning:
		return runningStyle
	default:
		return mutedStyle
	}
}
