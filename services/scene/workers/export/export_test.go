// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
	"github.com/AleutianAI/CaseTrace/services/scene/queue"
	storagebadger "github.com/AleutianAI/CaseTrace/services/scene/storage/badger"
	"github.com/AleutianAI/CaseTrace/services/scene/store"
	"github.com/AleutianAI/CaseTrace/services/scene/workers"
)

func newFixture(t *testing.T) (*Worker, *store.Store, string) {
	t.Helper()
	db, err := storagebadger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := store.New(db, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	w, err := New(st, dir, nil)
	require.NoError(t, err)
	return w, st, dir
}

func seedCase(t *testing.T, st *store.Store) *models.Case {
	t.Helper()
	c := models.NewCase("Apartment 4B", "Scene walkthrough")
	require.NoError(t, st.CreateCase(context.Background(), c))

	sg := models.NewEmptySceneGraph()
	sg.Objects = append(sg.Objects, models.SceneObject{
		ID:         "obj-knife",
		Type:       models.ObjectTypeEvidenceItem,
		Label:      "kitchen knife",
		Pose:       models.NewDefaultPose(),
		State:      models.ObjectStateVisible,
		Confidence: 0.92,
	})
	require.NoError(t, st.UpsertSnapshot(context.Background(), &models.SceneSnapshot{
		CaseID:     c.ID,
		Scenegraph: sg,
		UpdatedAt:  time.Now().UTC(),
	}))
	return c
}

func exportMsg(t *testing.T, c *models.Case, format string) *queue.JobMessage {
	t.Helper()
	j, err := models.NewJob(c.ID, models.JobTypeExport, &models.ExportInput{
		CaseID: c.ID.String(),
		Format: format,
	})
	require.NoError(t, err)
	return queue.NewJobMessage(j)
}

func TestExecuteJSONReport(t *testing.T) {
	w, st, dir := newFixture(t)
	c := seedCase(t, st)

	var percents []int
	out, err := w.Execute(context.Background(), exportMsg(t, c, "json"), func(p int) {
		percents = append(percents, p)
	})
	require.NoError(t, err)

	payload, ok := out.(models.ExportReportPayload)
	require.True(t, ok)
	assert.Equal(t, "json", payload.Format)
	assert.NotEmpty(t, payload.AssetKey)
	assert.Equal(t, 100, percents[len(percents)-1])

	body, err := os.ReadFile(filepath.Join(dir, payload.AssetKey))
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(body, &data))
	assert.Contains(t, data, "Case")
	assert.Contains(t, data, "Snapshot")
}

func TestExecuteHTMLReport(t *testing.T) {
	w, st, dir := newFixture(t)
	c := seedCase(t, st)

	out, err := w.Execute(context.Background(), exportMsg(t, c, "html"), func(int) {})
	require.NoError(t, err)

	payload := out.(models.ExportReportPayload)
	body, err := os.ReadFile(filepath.Join(dir, payload.AssetKey))
	require.NoError(t, err)
	assert.Contains(t, string(body), "Apartment 4B")
	assert.Contains(t, string(body), "kitchen knife")
}

func TestExecutePDFIsFatal(t *testing.T) {
	w, st, _ := newFixture(t)
	c := seedCase(t, st)

	_, err := w.Execute(context.Background(), exportMsg(t, c, "pdf"), func(int) {})
	require.Error(t, err)
	assert.False(t, workers.IsRetryable(err))
}

func TestExecuteUnknownCaseIsFatal(t *testing.T) {
	w, _, _ := newFixture(t)

	j, err := models.NewJob(uuid.New(), models.JobTypeExport, nil)
	require.NoError(t, err)

	_, err = w.Execute(context.Background(), queue.NewJobMessage(j), func(int) {})
	require.Error(t, err)
	assert.False(t, workers.IsRetryable(err))
}

func TestExecuteBadInputIsFatal(t *testing.T) {
	w, st, _ := newFixture(t)
	c := seedCase(t, st)

	j, err := models.NewJob(c.ID, models.JobTypeExport, nil)
	require.NoError(t, err)
	msg := queue.NewJobMessage(j)
	msg.Input = json.RawMessage(`{"format":"docx"}`)

	_, err = w.Execute(context.Background(), msg, func(int) {})
	require.Error(t, err)
	assert.False(t, workers.IsRetryable(err))
}
