package server

import (
	"context"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/minedient/elerp/internal/config"
	"github.com/minedient/elerp/internal/protocol"
	"github.com/minedient/elerp/internal/protocol/frame"
	"github.com/minedient/elerp/internal/resources"
	"github.com/minedient/elerp/internal/session"
	"github.com/minedient/elerp/internal/store"
)

const testResourceJSON = `{
	"subjects": [{"name": "Mathematics", "cname": "數學"}, {"name": "English", "cname": "英文"}],
	"forms": [{"name": "Form 1", "cname": "中一"}, {"name": "Form 2", "cname": "中二"}],
	"classes": ["1A", "1B", "2A"]
}`

type harness struct {
	srv   *Server
	store *store.Store
	conn  net.Conn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	resPath := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(resPath, []byte(testResourceJSON), 0o644))
	res, err := resources.Load(resPath)
	require.NoError(t, err)

	st, err := store.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.EnsureSchema(context.Background()))

	cfg := config.DefaultServerConfig()
	cfg.WorksheetDir = filepath.Join(dir, "worksheets")

	srv, err := New(cfg, st, res, zerolog.Nop())
	require.NoError(t, err)

	serverConn, clientConn := net.Pipe()
	sess := session.New(serverConn, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	srv.registerHandlers(ctx, sess)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		clientConn.Close()
		<-done
	})
	return &harness{srv: srv, store: st, conn: clientConn}
}

func (h *harness) roundTrip(t *testing.T, kind protocol.Kind, command string, body any) *protocol.Envelope {
	t.Helper()
	payload, err := protocol.Marshal(&protocol.Envelope{Kind: kind, Command: command, Body: body})
	require.NoError(t, err)
	require.NoError(t, h.conn.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, frame.Send(h.conn, payload))

	reply, err := frame.Recv(h.conn)
	require.NoError(t, err)
	env, err := protocol.Unmarshal(reply)
	require.NoError(t, err)
	return env
}

func (h *harness) requireStatus(t *testing.T, env *protocol.Envelope, kind protocol.Kind, status protocol.Status) {
	t.Helper()
	require.Equal(t, kind, env.Kind)
	got, ok := env.BodyStatus()
	require.True(t, ok, "body is not a status: %#v", env.Body)
	require.Equal(t, status, got)
}

func TestTestConnection(t *testing.T) {
	h := newHarness(t)
	env := h.roundTrip(t, protocol.Get, "testConnection", nil)
	require.Equal(t, protocol.OK, env.Kind)
}

func TestCheckVersion(t *testing.T) {
	h := newHarness(t)
	env := h.roundTrip(t, protocol.Get, "checkVersion", nil)
	require.Equal(t, protocol.OK, env.Kind)
	v, ok := env.BodyString()
	require.True(t, ok)
	require.Equal(t, Version, v)
}

func TestGlobalData(t *testing.T) {
	h := newHarness(t)
	env := h.roundTrip(t, protocol.Get, "globalData", nil)
	require.Equal(t, protocol.OK, env.Kind)

	// The raw resource JSON travels as a string body and is unwrapped
	// back into structure on decode.
	body := env.BodyMap()
	subjects, ok := body["subjects"].([]any)
	require.True(t, ok, "subjects missing: %#v", env.Body)
	require.Len(t, subjects, 2)
	classes, ok := body["classes"].([]any)
	require.True(t, ok)
	require.Len(t, classes, 3)
}

func TestUnknownCommandKeepsSessionAlive(t *testing.T) {
	h := newHarness(t)
	env := h.roundTrip(t, protocol.Get, "doesNotExist", nil)
	h.requireStatus(t, env, protocol.Err, protocol.StatusInvalidRequest)

	env = h.roundTrip(t, protocol.Get, "testConnection", nil)
	require.Equal(t, protocol.OK, env.Kind)
}

func uploadBody(fileData []byte, name string) map[string]any {
	return map[string]any{
		"fileData":     base64.StdEncoding.EncodeToString(fileData),
		"name":         name,
		"description":  "drill",
		"creationDate": "2026-01-05 09:00:00",
		"form":         0,
		"subject":      0,
	}
}

func TestUploadWorksheet(t *testing.T) {
	h := newHarness(t)
	content := []byte("%PDF-1.4 worksheet body")

	env := h.roundTrip(t, protocol.Post, "uploadWorksheet", uploadBody(content, "F1_Math_01.pdf"))
	h.requireStatus(t, env, protocol.OK, protocol.StatusSuccess)

	stored, err := os.ReadFile(filepath.Join(h.srv.cfg.WorksheetDir, "F1_Math_01.pdf"))
	require.NoError(t, err)
	require.Equal(t, content, stored)

	n, err := h.store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	env = h.roundTrip(t, protocol.Get, "totalWorksheets", nil)
	require.Equal(t, protocol.OK, env.Kind)
	require.Equal(t, float64(1), env.Body)
}

func TestUploadValidation(t *testing.T) {
	h := newHarness(t)

	body := uploadBody([]byte("x"), "ws.pdf")
	delete(body, "fileData")
	env := h.roundTrip(t, protocol.Post, "uploadWorksheet", body)
	h.requireStatus(t, env, protocol.Err, protocol.StatusEmptyParameter)

	body = uploadBody([]byte("x"), "ws.pdf")
	body["form"] = 99
	env = h.roundTrip(t, protocol.Post, "uploadWorksheet", body)
	h.requireStatus(t, env, protocol.Err, protocol.StatusInvalidParameter)

	body = uploadBody(nil, "ws.pdf")
	body["fileData"] = "not*base64*"
	env = h.roundTrip(t, protocol.Post, "uploadWorksheet", body)
	h.requireStatus(t, env, protocol.Err, protocol.StatusUploadFailed)
}

func TestUploadStripsPathTraversal(t *testing.T) {
	h := newHarness(t)
	env := h.roundTrip(t, protocol.Post, "uploadWorksheet", uploadBody([]byte("x"), "../../escape.pdf"))
	h.requireStatus(t, env, protocol.OK, protocol.StatusSuccess)

	_, err := os.Stat(filepath.Join(h.srv.cfg.WorksheetDir, "escape.pdf"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(h.srv.cfg.WorksheetDir, "..", "..", "escape.pdf"))
	require.True(t, os.IsNotExist(err))
}

func TestRegisterUsage(t *testing.T) {
	h := newHarness(t)
	content := []byte("worksheet payload")
	env := h.roundTrip(t, protocol.Post, "uploadWorksheet", uploadBody(content, "F1_Math_02.pdf"))
	h.requireStatus(t, env, protocol.OK, protocol.StatusSuccess)

	env = h.roundTrip(t, protocol.Post, "registerUsage", map[string]any{
		"worksheet":  "F1_Math_02.pdf",
		"class":      "1A",
		"teacher":    "Chan Tai Man",
		"section":    "A",
		"subTeacher": "",
	})
	require.Equal(t, protocol.OK, env.Kind)

	encoded, ok := env.BodyString()
	require.True(t, ok, "body is not a string: %#v", env.Body)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.Equal(t, content, raw)

	// The usage row lands after the file bytes go out.
	require.Eventually(t, func() bool {
		records, err := h.store.Records(context.Background())
		return err == nil && len(records) == 1
	}, 2*time.Second, 20*time.Millisecond)

	details, err := h.store.UsageDetails(context.Background())
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, "1A", details[0].Class)
	require.Equal(t, "A", details[0].Section)
}

func TestRegisterUsageUnknownWorksheet(t *testing.T) {
	h := newHarness(t)
	env := h.roundTrip(t, protocol.Post, "registerUsage", map[string]any{
		"worksheet": "nope.pdf",
		"class":     "1A",
		"teacher":   "Chan",
	})
	h.requireStatus(t, env, protocol.Err, protocol.StatusInvalidParameter)
}

func TestUnusedWorksheets(t *testing.T) {
	h := newHarness(t)
	env := h.roundTrip(t, protocol.Get, "unusedWorksheets", map[string]any{"class": " "})
	h.requireStatus(t, env, protocol.Err, protocol.StatusEmptyParameter)

	res := h.roundTrip(t, protocol.Post, "uploadWorksheet", uploadBody([]byte("x"), "F1_Math_03.pdf"))
	h.requireStatus(t, res, protocol.OK, protocol.StatusSuccess)

	env = h.roundTrip(t, protocol.Get, "unusedWorksheets", map[string]any{"class": "1A"})
	require.Equal(t, protocol.OK, env.Kind)
	rows, ok := env.Body.([]any)
	require.True(t, ok, "body is not a list: %#v", env.Body)
	require.Len(t, rows, 1)
}

func TestRecentViews(t *testing.T) {
	h := newHarness(t)
	res := h.roundTrip(t, protocol.Post, "uploadWorksheet", uploadBody([]byte("x"), "F1_Math_04.pdf"))
	h.requireStatus(t, res, protocol.OK, protocol.StatusSuccess)

	env := h.roundTrip(t, protocol.Get, "recentUploaded", nil)
	require.Equal(t, protocol.OK, env.Kind)
	rows, ok := env.Body.([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	first, ok := rows[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "F1_Math_04.pdf", first["name"])

	env = h.roundTrip(t, protocol.Get, "recentUsage", nil)
	require.Equal(t, protocol.OK, env.Kind)
	rows, ok = env.Body.([]any)
	require.True(t, ok)
	require.Empty(t, rows)
}
