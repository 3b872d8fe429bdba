package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/parley/pkg/audit"
	"github.com/pario-ai/parley/pkg/models"
)

func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRedactCmdStdin(t *testing.T) {
	out, _, err := run(t, newRedactCmd(), "call 91234567 or mail a@b.com\n")
	require.NoError(t, err)
	assert.Equal(t, "call [MASKED_PHONE] or mail [MASKED_EMAIL]\n", out)
}

func TestRedactCmdArgsWithCounts(t *testing.T) {
	out, errOut, err := run(t, newRedactCmd(), "", "--counts", "NRIC", "S1234567D")
	require.NoError(t, err)
	assert.Equal(t, "NRIC [MASKED_NRIC]\n", out)
	assert.Contains(t, errOut, "nric")
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "No PII found.\n", formatCounts(nil))
	out := formatCounts(map[string]int{"phone": 2, "email": 1})
	assert.Less(t, strings.Index(out, "email"), strings.Index(out, "phone"))
}

func writeAuditConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")
	cfgPath := filepath.Join(dir, "parley.yaml")
	content := fmt.Sprintf("audit:\n  driver: sqlite\n  db_path: %s\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath, dbPath
}

func seedAudit(t *testing.T, dbPath string, recs ...models.AuditRecord) {
	t.Helper()
	s, err := audit.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	for _, r := range recs {
		require.NoError(t, s.Append(context.Background(), r))
	}
}

func TestAuditCommands(t *testing.T) {
	cfgPath, dbPath := writeAuditConfig(t)
	conv := "conv-1"
	now := time.Now().UTC()
	seedAudit(t, dbPath,
		models.AuditRecord{ID: "old-record", PromptMasked: "old", ResponseMasked: "r", CreatedAt: now.AddDate(0, 0, -30)},
		models.AuditRecord{ID: "new-record", ConversationID: &conv, PromptMasked: "hi [MASKED_EMAIL]", ResponseMasked: "r", CreatedAt: now},
	)

	out, _, err := run(t, newAuditCmd(), "", "search", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "old-record")
	assert.Contains(t, out, "new-record")

	out, _, err = run(t, newAuditCmd(), "", "search", "-c", cfgPath, "--conversation", "conv-1")
	require.NoError(t, err)
	assert.NotContains(t, out, "old-record")

	out, _, err = run(t, newAuditCmd(), "", "show", "-c", cfgPath, "new-record")
	require.NoError(t, err)
	assert.Contains(t, out, "hi [MASKED_EMAIL]")

	out, _, err = run(t, newAuditCmd(), "", "stats", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, now.Format(time.DateOnly))

	_, _, err = run(t, newAuditCmd(), "", "cleanup", "-c", cfgPath, "--older-than", "240h")
	assert.Error(t, err, "cleanup requires --yes")

	out, _, err = run(t, newAuditCmd(), "", "cleanup", "-c", cfgPath, "--older-than", "240h", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 audit records.")
}
