package excel

import (
	"context"
	"encoding/csv"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"synthctl/domain/core"
	"synthctl/domain/panel"
	"synthctl/internal/errors"
	"synthctl/ports"
)

// Expected header columns besides the outcome columns
const (
	colDate   = "date"
	colEntity = "entity"
	colPost   = "post_treatment"
)

// PanelReader reads a long-format panel from an xlsx or csv file. One
// row per (date, entity), columns: date, entity, post_treatment, and
// one column per outcome.
type PanelReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewPanelReader creates a reader, inferring the file type from the extension
func NewPanelReader(filePath string) *PanelReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &PanelReader{filePath: filePath, fileType: fileType}
}

// ReadPanel reads the full panel into memory
func (r *PanelReader) ReadPanel(ctx context.Context) (*panel.Panel, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.ConfigInvalidf("panel file not found: %s", r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.ShapeMismatchf("panel file %s has no data rows", r.filePath)
	}

	p, err := parsePanel(rows)
	if err != nil {
		return nil, err
	}
	log.Printf("[PanelReader] read %d observations from %s", len(p.Rows), r.filePath)
	return p, nil
}

func (r *PanelReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open panel file %s", r.filePath)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read panel sheet")
	}
	return rows, nil
}

func (r *PanelReader) readCSVRows() ([][]string, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open panel file %s", r.filePath)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read panel CSV")
	}
	return rows, nil
}

// parsePanel converts raw rows into the domain panel. The first row is
// the header; every non-reserved column becomes an outcome.
func parsePanel(rows [][]string) (*panel.Panel, error) {
	header := rows[0]
	dateIdx, entityIdx, postIdx := -1, -1, -1
	outcomes := make(map[int]core.OutcomeKey)
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case colDate:
			dateIdx = i
		case colEntity:
			entityIdx = i
		case colPost:
			postIdx = i
		default:
			outcomes[i] = core.OutcomeKey(strings.TrimSpace(name))
		}
	}
	if dateIdx < 0 || entityIdx < 0 || postIdx < 0 {
		return nil, errors.ShapeMismatchf("panel header must contain %s, %s and %s columns", colDate, colEntity, colPost)
	}
	if len(outcomes) == 0 {
		return nil, errors.ShapeMismatch("panel header has no outcome columns")
	}

	p := &panel.Panel{}
	for rowNum, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		if len(row) <= dateIdx || len(row) <= entityIdx || len(row) <= postIdx {
			return nil, errors.ShapeMismatchf("panel row %d is shorter than the header", rowNum+2)
		}

		date, err := parseDate(row[dateIdx])
		if err != nil {
			return nil, errors.ShapeMismatchf("panel row %d has invalid date %q", rowNum+2, row[dateIdx])
		}
		post, err := strconv.ParseBool(strings.TrimSpace(row[postIdx]))
		if err != nil {
			return nil, errors.ShapeMismatchf("panel row %d has invalid post_treatment %q", rowNum+2, row[postIdx])
		}

		values := make(map[core.OutcomeKey]float64)
		for idx, key := range outcomes {
			if idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
				// missing values stay absent; the builder decides if that is fatal
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
			if err != nil {
				return nil, errors.ShapeMismatchf("panel row %d has non-numeric %s value %q", rowNum+2, key, row[idx])
			}
			values[key] = v
		}

		p.Append(panel.Observation{
			Date:          date,
			Entity:        core.EntityCode(strings.TrimSpace(row[entityIdx])),
			Values:        values,
			PostTreatment: post,
		})
	}
	return p, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02", "2006-01", "01-02-06", "2006/01/02"} {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.UTC(), nil
		}
	}
	return time.Time{}, errors.InvalidInput("unparseable date")
}

// Ensure PanelReader implements the panel source contract
var _ ports.PanelSource = (*PanelReader)(nil)
