package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minedient/elerp/internal/protocol"
	"github.com/minedient/elerp/internal/session"
	"github.com/minedient/elerp/internal/store"
)

// recentLimit is how many rows the recentUsage/recentUploaded views
// carry.
const recentLimit = 15

// registerHandlers wires every command the protocol serves into the
// session's dispatch engine, plus a default handler so an unknown
// command gets an ERROR reply instead of killing the session.
func (s *Server) registerHandlers(ctx context.Context, sess *session.Session) {
	exec := sess.Executor()
	log := s.log.With().Str("session", sess.ID()).Logger()

	exec.OnMessage(protocol.Get, "testConnection", func(map[string]any) error {
		log.Info().Msg("test request received")
		return sess.Reply(protocol.OK, nil)
	})

	exec.OnMessage(protocol.Get, "checkVersion", func(map[string]any) error {
		log.Info().Msg("version request received")
		return sess.Reply(protocol.OK, Version)
	})

	exec.OnMessage(protocol.Get, "globalData", func(map[string]any) error {
		log.Info().Msg("global data request received")
		return sess.Reply(protocol.OK, s.res.Raw())
	})

	exec.OnMessage(protocol.Get, "recentUsage", func(map[string]any) error {
		log.Info().Msg("recent usage request received")
		records, err := s.store.LatestRecords(ctx, recentLimit)
		if err != nil {
			return s.replyFailure(sess, err)
		}
		return s.replyJSON(sess, records)
	})

	exec.OnMessage(protocol.Get, "recentUploaded", func(map[string]any) error {
		log.Info().Msg("recent uploaded request received")
		uploads, err := s.store.LatestUploads(ctx, recentLimit)
		if err != nil {
			return s.replyFailure(sess, err)
		}
		return s.replyJSON(sess, uploads)
	})

	exec.OnMessage(protocol.Get, "unusedWorksheets", func(body map[string]any) error {
		class, _ := body["class"].(string)
		log.Info().Str("class", class).Msg("unused worksheets request received")
		if strings.TrimSpace(class) == "" {
			return sess.ReplyStatus(protocol.Err, protocol.StatusEmptyParameter)
		}
		unused, err := s.store.UnusedWorksheetsForClass(ctx, class)
		if err != nil {
			return s.replyFailure(sess, err)
		}
		return s.replyJSON(sess, unused)
	})

	exec.OnMessage(protocol.Post, "uploadWorksheet", func(body map[string]any) error {
		log.Info().Msg("upload request received")
		return s.handleUpload(ctx, sess, body)
	})

	exec.OnMessage(protocol.Post, "registerUsage", func(body map[string]any) error {
		log.Info().Msg("register usage request received")
		return s.handleRegisterUsage(ctx, sess, body)
	})

	exec.OnMessage(protocol.Get, "totalWorksheets", func(map[string]any) error {
		log.Info().Msg("total worksheets request received")
		return sess.Reply(protocol.OK, s.count.Load())
	})

	exec.SetDefault(func(env *protocol.Envelope) error {
		log.Warn().
			Str("kind", string(env.Kind)).
			Str("command", env.Command).
			Msg("unrecognized command")
		return sess.ReplyStatus(protocol.Err, protocol.StatusInvalidRequest)
	})
}

// replyJSON pre-serializes a payload and sends it as a string body; the
// receiver's codec unwraps it back into structure.
func (s *Server) replyJSON(sess *session.Session, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return sess.Reply(protocol.OK, string(body))
}

// replyFailure reports a store/filesystem failure to the client without
// ending the session.
func (s *Server) replyFailure(sess *session.Session, err error) error {
	if sendErr := sess.ReplyStatus(protocol.Err, protocol.StatusInvalidRequest); sendErr != nil {
		return sendErr
	}
	return err
}

// handleUpload validates the upload request, writes the file under the
// worksheet directory and records it. Validation failures map to
// specific status tags so the client can explain them.
func (s *Server) handleUpload(ctx context.Context, sess *session.Session, body map[string]any) error {
	fileData, _ := body["fileData"].(string)
	name, _ := body["name"].(string)
	description, _ := body["description"].(string)
	creationDate, _ := body["creationDate"].(string)
	formIdx, formOK := intAttr(body, "form")
	subjectIdx, subjectOK := intAttr(body, "subject")

	if fileData == "" || name == "" || !formOK || !subjectOK {
		return sess.ReplyStatus(protocol.Err, protocol.StatusEmptyParameter)
	}

	form, ok := s.res.Form(formIdx)
	if !ok {
		return sess.ReplyStatus(protocol.Err, protocol.StatusInvalidParameter)
	}
	subject, ok := s.res.Subject(subjectIdx)
	if !ok {
		return sess.ReplyStatus(protocol.Err, protocol.StatusInvalidParameter)
	}

	raw, err := base64.StdEncoding.DecodeString(fileData)
	if err != nil {
		s.log.Error().Err(err).Str("name", name).Msg("upload payload is not valid base64")
		return sess.ReplyStatus(protocol.Err, protocol.StatusUploadFailed)
	}

	if err := os.MkdirAll(s.cfg.WorksheetDir, 0o755); err != nil {
		s.log.Error().Err(err).Msg("worksheet directory unavailable")
		return sess.ReplyStatus(protocol.Err, protocol.StatusUploadFailed)
	}
	// filepath.Base guards against a path-traversing name.
	path := filepath.Join(s.cfg.WorksheetDir, filepath.Base(name))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("worksheet write failed")
		return sess.ReplyStatus(protocol.Err, protocol.StatusUploadFailed)
	}

	_, err = s.store.InsertWorksheetAndPath(ctx, store.Worksheet{
		Name:        name,
		Description: description,
		UploadDate:  creationDate,
		Subject:     subject.Name,
		Form:        form.Name,
	}, path)
	if err != nil {
		s.log.Error().Err(err).Str("name", name).Msg("worksheet insert failed")
		return sess.ReplyStatus(protocol.Err, protocol.StatusUploadFailed)
	}

	if n, err := s.store.Count(ctx); err == nil {
		s.count.Store(n)
	}
	s.log.Info().Str("name", name).Str("form", form.Name).Str("subject", subject.Name).Msg("worksheet stored")
	return sess.ReplyStatus(protocol.OK, protocol.StatusSuccess)
}

// handleRegisterUsage replies with the worksheet's file bytes, then
// records the usage and its class supplement.
func (s *Server) handleRegisterUsage(ctx context.Context, sess *session.Session, body map[string]any) error {
	worksheet, _ := body["worksheet"].(string)
	class, _ := body["class"].(string)
	teacher, _ := body["teacher"].(string)
	section, _ := body["section"].(string)
	subTeacher, _ := body["subTeacher"].(string)

	if worksheet == "" || class == "" || teacher == "" {
		return sess.ReplyStatus(protocol.Err, protocol.StatusEmptyParameter)
	}

	sheetID, err := s.store.WorksheetID(ctx, worksheet)
	if err != nil {
		s.log.Warn().Err(err).Str("worksheet", worksheet).Msg("usage for unknown worksheet")
		return sess.ReplyStatus(protocol.Err, protocol.StatusInvalidParameter)
	}
	path, err := s.store.WorksheetFilePath(ctx, sheetID)
	if err != nil {
		return s.replyFailure(sess, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("worksheet file unreadable")
		return s.replyFailure(sess, err)
	}

	if err := sess.Reply(protocol.OK, raw); err != nil {
		return err
	}
	s.log.Info().Str("worksheet", worksheet).Str("class", class).Msg("worksheet sent, recording usage")

	recordID, err := s.store.RegisterUse(ctx, sheetID, class, teacher)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return s.store.RegisterClassRecord(ctx, recordID, section, subTeacher)
}

// intAttr reads a numeric body value; decoded JSON numbers arrive as
// float64.
func intAttr(body map[string]any, key string) (int, bool) {
	switch v := body[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}
