// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admin

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/google/renameio/v2"
)

const exportTimeLayout = "02-01-2006 15:04:05"

var exportHeader = []string{
	"Name",
	"Company Name",
	"Personal Phone",
	"Company Phone",
	"Address",
	"OTP Verified",
	"Capture Method",
	"Created At",
	"Updated At",
	"Visiting Card URL",
}

// ExportFilename is the default export name for day.
func ExportFilename(day time.Time) string {
	return fmt.Sprintf("visitors-data-%s.csv", day.Format("2006-01-02"))
}

// WriteCSV writes records with a header row. Timestamps are rendered in loc.
func WriteCSV(w io.Writer, records []Visitor, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, v := range records {
		verified := "No"
		if v.OTPVerified {
			verified = "Yes"
		}
		row := []string{
			v.Name,
			v.CompanyName,
			v.PersonalPhoneNumber,
			v.CompanyPhoneNumber,
			v.Address,
			verified,
			v.CaptureMethod,
			exportTime(v.CreatedAt, loc),
			exportTime(v.UpdatedAt, loc),
			v.VisitingCardImageURL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(exportTimeLayout)
}

// ExportFile writes records to dir/visitors-data-<day>.csv. The file is
// fsynced and renamed into place, so readers never see a partial export.
func ExportFile(ctx context.Context, dir string, records []Visitor, now time.Time) (string, error) {
	logger := log.WithComponentFromContext(ctx, "admin")
	path := filepath.Join(dir, ExportFilename(now))

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("create pending export file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending export file")
		}
	}()

	if err := WriteCSV(pendingFile, records, now.Location()); err != nil {
		return "", fmt.Errorf("write export data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace export file: %w", err)
	}

	logger.Info().
		Str(log.FieldEvent, "admin.export").
		Str(log.FieldPath, path).
		Int("records", len(records)).
		Msg("visitor export written")
	return path, nil
}
