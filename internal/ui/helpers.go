package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/selfpatch/sovdtui/internal/sovd"
)

func (m *Model) updateDetailViewport() {
	m.detailViewport.SetContent(m.renderDetail())
}

func (m Model) renderDetail() string {
	if m.snapshot.LoadingDetails {
		return m.theme.mutedStyle().Render(m.spin.View() + " loading details")
	}
	detail := m.snapshot.Selected
	if detail == nil {
		return m.theme.mutedStyle().Render("select an entity")
	}

	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render(detail.Name))
	b.WriteString("\n")
	b.WriteString(m.theme.mutedStyle().Render(string(detail.Type) + " · " + detail.ID))
	b.WriteString("\n\n")

	if detail.Description != "" {
		b.WriteString(m.theme.textStyle().Render(detail.Description))
		b.WriteString("\n\n")
	}
	if detail.Status != "" {
		b.WriteString(m.detailField("status", detail.Status))
	}
	if detail.Version != "" {
		b.WriteString(m.detailField("version", detail.Version))
	}
	if m.snapshot.Refreshing {
		b.WriteString(m.theme.mutedStyle().Render(m.spin.View() + " refreshing"))
		b.WriteString("\n")
	}

	if len(detail.Topics) > 0 {
		b.WriteString("\n")
		b.WriteString(m.theme.titleStyle().Render("Topics"))
		b.WriteString("\n")
		for _, topic := range detail.Topics {
			writable := ""
			if topic.Writable {
				writable = " (writable)"
			}
			b.WriteString(fmt.Sprintf("  %s  %s%s\n",
				m.theme.textStyle().Render(topic.Name),
				m.theme.mutedStyle().Render(topic.MessageType),
				writable))
			if len(topic.Latest) > 0 {
				b.WriteString(m.theme.mutedStyle().Render("    " + sovd.FormatValue(topic.Latest)))
				b.WriteString("\n")
			}
		}
	}

	if len(detail.Operations) > 0 {
		b.WriteString("\n")
		b.WriteString(m.theme.titleStyle().Render("Operations"))
		b.WriteString("\n")
		for _, op := range detail.Operations {
			b.WriteString(fmt.Sprintf("  %s  %s\n",
				m.theme.textStyle().Render(op.Name),
				m.theme.mutedStyle().Render(op.Kind)))
		}
	}
	return b.String()
}

func (m Model) detailField(name, value string) string {
	return fmt.Sprintf("%s %s\n",
		m.theme.mutedStyle().Render(name+":"),
		m.theme.textStyle().Render(value))
}

// saveBulkData writes a downloaded blob next to the user's downloads,
// falling back to the working directory. Returns the written path.
func saveBulkData(entityID string, bulk *sovd.BulkData) (string, error) {
	name := bulk.Filename
	if name == "" {
		name = entityID + ".bin"
	}
	name = filepath.Base(name) // never let the server pick directories

	dir := "."
	if home, err := os.UserHomeDir(); err == nil {
		downloads := filepath.Join(home, "Downloads")
		if info, err := os.Stat(downloads); err == nil && info.IsDir() {
			dir = downloads
		}
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bulk.Data, 0o644); err != nil {
		return "", fmt.Errorf("save bulk data: %w", err)
	}
	return path, nil
}
