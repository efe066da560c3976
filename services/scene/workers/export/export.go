// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export is the one worker that runs in-process: it renders a
// case report from the current snapshot. The ML-backed workers
// (reconstruction, reasoning, profile, imagegen) run out of process and
// only their contract lives in the workers package.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
	"github.com/AleutianAI/CaseTrace/services/scene/queue"
	"github.com/AleutianAI/CaseTrace/services/scene/store"
	"github.com/AleutianAI/CaseTrace/services/scene/workers"
)

// SnapshotSource is the slice of the store the worker reads.
type SnapshotSource interface {
	GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error)
	GetSnapshot(ctx context.Context, caseID uuid.UUID) (*models.SceneSnapshot, error)
}

// Worker renders case reports into the output directory. Supported
// formats are json and html; pdf needs the external render service and
// is rejected as fatal here.
type Worker struct {
	source SnapshotSource
	dir    string
	logger *slog.Logger
}

// New builds the worker. dir is created on first use.
func New(source SnapshotSource, dir string, logger *slog.Logger) (*Worker, error) {
	if source == nil {
		return nil, errors.New("snapshot source must not be nil")
	}
	if dir == "" {
		return nil, errors.New("output directory must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{source: source, dir: dir, logger: logger}, nil
}

// Type implements workers.Worker.
func (w *Worker) Type() models.JobType { return models.JobTypeExport }

// Execute renders the report and returns the commit payload fields.
//
// Outputs:
//
//	any - models.ExportReportPayload with Format and AssetKey set.
//	error - Fatal for bad input or unsupported format, Retryable for I/O.
func (w *Worker) Execute(ctx context.Context, msg *queue.JobMessage, report workers.ProgressFunc) (any, error) {
	in := &models.ExportInput{}
	if len(msg.Input) > 0 {
		if err := json.Unmarshal(msg.Input, in); err != nil {
			return nil, workers.Fatal(fmt.Errorf("decode export input: %w", err))
		}
	}
	if in.CaseID == "" {
		in.CaseID = msg.CaseID.String()
	}
	if in.Format == "" {
		in.Format = "json"
	}
	if err := in.Validate(); err != nil {
		return nil, workers.Fatal(err)
	}
	if in.Format == "pdf" {
		return nil, workers.Fatal(errors.New("pdf export requires the render service"))
	}
	caseID, err := uuid.Parse(in.CaseID)
	if err != nil {
		return nil, workers.Fatal(fmt.Errorf("bad case id %q: %w", in.CaseID, err))
	}

	c, err := w.source.GetCase(ctx, caseID)
	if err != nil {
		return nil, workers.Fatal(err)
	}
	report(10)

	snap, err := w.source.GetSnapshot(ctx, caseID)
	if err != nil {
		// A case with no scene-mutating commits has no snapshot yet; the
		// report is just empty.
		if !errors.Is(err, store.ErrNotFound) {
			return nil, workers.Retryable(err)
		}
		snap = nil
	}
	report(50)

	body, err := w.render(in.Format, c, snap)
	if err != nil {
		return nil, workers.Fatal(err)
	}
	report(80)

	assetKey, err := w.write(caseID, in.Format, body)
	if err != nil {
		return nil, workers.Retryable(err)
	}
	report(100)

	w.logger.Info("report exported", "case_id", caseID, "format", in.Format, "asset_key", assetKey)
	return models.ExportReportPayload{Format: in.Format, AssetKey: assetKey}, nil
}

type reportData struct {
	Case        *models.Case
	Snapshot    *models.SceneSnapshot
	GeneratedAt time.Time
}

func (w *Worker) render(format string, c *models.Case, snap *models.SceneSnapshot) ([]byte, error) {
	data := reportData{Case: c, Snapshot: snap, GeneratedAt: time.Now().UTC()}
	switch format {
	case "json":
		return json.MarshalIndent(data, "", "  ")
	case "html":
		var buf bytes.Buffer
		if err := reportTemplate.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render html report: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (w *Worker) write(caseID uuid.UUID, format string, body []byte) (string, error) {
	dir := filepath.Join(w.dir, caseID.String())
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	name := fmt.Sprintf("report-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0640); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return filepath.Join(caseID.String(), name), nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Case report: {{.Case.Title}}</title></head>
<body>
<h1>{{.Case.Title}}</h1>
<p>{{.Case.Description}}</p>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 UTC"}}{{if .Snapshot}}, snapshot commit {{.Snapshot.CommitID}}{{end}}</p>
{{if and .Snapshot .Snapshot.Scenegraph}}
<h2>Objects ({{len .Snapshot.Scenegraph.Objects}})</h2>
<table border="1">
<tr><th>Label</th><th>Type</th><th>State</th><th>Confidence</th></tr>
{{range .Snapshot.Scenegraph.Objects}}
<tr><td>{{.Label}}</td><td>{{.Type}}</td><td>{{.State}}</td><td>{{printf "%.2f" .Confidence}}</td></tr>
{{end}}
</table>
<h2>Evidence ({{len .Snapshot.Scenegraph.Evidence}})</h2>
<ul>
{{range .Snapshot.Scenegraph.Evidence}}
<li><strong>{{.Title}}</strong> ({{printf "%.2f" .Confidence}}): {{.Description}}</li>
{{end}}
</ul>
{{end}}
</body>
</html>
`))
