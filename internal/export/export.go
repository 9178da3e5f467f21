// Package export renders the complete audit trail for compliance review,
// as JSON for tooling or as a spreadsheet for human reviewers.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sunfield-ops/solarledger/internal/model"
	"github.com/sunfield-ops/solarledger/internal/store"
)

// Trail is the full exported audit trail.
type Trail struct {
	ExportedAt time.Time          `json:"exported_at"`
	Stats      *model.LedgerStats `json:"statistics"`
	Components []ComponentTrail   `json:"components"`
}

// ComponentTrail is one component's complete version history.
type ComponentTrail struct {
	Identity model.ComponentIdentity `json:"identity"`
	Versions []model.Version         `json:"versions"`
}

// Build assembles the audit trail from the store.
func Build(ctx context.Context, st store.Store) (*Trail, error) {
	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, err
	}

	refs, err := st.Identities(ctx)
	if err != nil {
		return nil, err
	}

	trail := &Trail{
		ExportedAt: time.Now().UTC(),
		Stats:      stats,
	}
	for _, ref := range refs {
		history, err := st.History(ctx, ref.Identity.Key)
		if err != nil {
			return nil, err
		}
		trail.Components = append(trail.Components, ComponentTrail{
			Identity: ref.Identity,
			Versions: history,
		})
	}
	return trail, nil
}

// WriteJSON writes the trail as indented JSON.
func (t *Trail) WriteJSON(path string) error {
	buf, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal trail")
	}
	buf = append(buf, '\n')
	return eris.Wrapf(os.WriteFile(path, buf, 0o644), "export: write %s", path)
}

var xlsxHeader = []string{
	"supplier", "product_code", "version", "valid_from", "valid_to",
	"effective_to", "source_file", "extracted_at", "supersedes",
	"superseded_by", "conflict", "appended_at", "fields",
}

// WriteXLSX writes the trail as a spreadsheet, one row per version.
func (t *Trail) WriteXLSX(path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("audit trail")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().Value = h
	}

	for _, c := range t.Components {
		for _, v := range c.Versions {
			row := sheet.AddRow()
			row.AddCell().Value = v.Identity.Supplier
			row.AddCell().Value = v.Identity.ProductCode
			row.AddCell().SetInt(v.Number)
			row.AddCell().Value = v.ValidFrom.Format(time.RFC3339)
			row.AddCell().Value = v.ValidTo.Format(time.RFC3339)
			row.AddCell().Value = formatOptTime(v.EffectiveTo)
			row.AddCell().Value = v.SourceFile
			row.AddCell().Value = v.ExtractedAt.Format(time.RFC3339)
			row.AddCell().Value = formatOptInt(v.Supersedes)
			row.AddCell().Value = formatOptInt(v.SupersededBy)
			row.AddCell().SetBool(v.Conflict)
			row.AddCell().Value = v.AppendedAt.Format(time.RFC3339)

			fieldsJSON, err := json.Marshal(v.Fields)
			if err != nil {
				return eris.Wrap(err, "export: marshal fields")
			}
			row.AddCell().Value = string(fieldsJSON)
		}
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatOptInt(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%d", *n)
}
