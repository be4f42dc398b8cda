package ports

import (
	"context"

	"synthctl/domain/panel"
)

// PanelSource reads a raw long-format panel from an external source
// (spreadsheet, CSV export, cached provider download).
type PanelSource interface {
	ReadPanel(ctx context.Context) (*panel.Panel, error)
}
