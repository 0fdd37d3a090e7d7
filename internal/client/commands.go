package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minedient/elerp/internal/protocol"
)

// GlobalData mirrors the server's resource file.
type GlobalData struct {
	Subjects []NamedEntry `json:"subjects"`
	Forms    []NamedEntry `json:"forms"`
	Classes  []string     `json:"classes"`
}

type NamedEntry struct {
	Name  string `json:"name"`
	CName string `json:"cname"`
}

// RecentUsage is one row of the server's recent-usage view.
type RecentUsage struct {
	Teacher   string `json:"teacher"`
	Class     string `json:"class"`
	Worksheet string `json:"worksheet"`
	UseDate   string `json:"useDate"`
}

// RecentUpload is one row of the server's recent-uploads view.
type RecentUpload struct {
	Name       string `json:"name"`
	Subject    string `json:"subject"`
	Form       string `json:"form"`
	LastUpdate string `json:"lastUpdate"`
}

// UnusedWorksheet is one row of the unused-worksheets view.
type UnusedWorksheet struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
	Form        string `json:"form"`
}

// TestConnection verifies the session with the cheapest round trip.
func (c *Client) TestConnection() error {
	reply, err := c.request(protocol.Get, "testConnection", nil)
	if err != nil {
		return err
	}
	if reply.Kind != protocol.OK {
		return fmt.Errorf("client: connection test failed: %s", string(reply.Kind))
	}
	c.log.Info().Msg("connection test successful")
	return nil
}

// ServerVersion asks the server for its protocol version string.
func (c *Client) ServerVersion() (string, error) {
	reply, err := c.request(protocol.Get, "checkVersion", nil)
	if err != nil {
		return "", err
	}
	version, ok := reply.BodyString()
	if !ok {
		return "", fmt.Errorf("client: checkVersion reply carries no version string")
	}
	return version, nil
}

// GlobalData fetches the subjects/forms/classes lists.
func (c *Client) GlobalData() (*GlobalData, error) {
	reply, err := c.request(protocol.Get, "globalData", nil)
	if err != nil {
		return nil, err
	}
	var data GlobalData
	if err := rebind(reply.Body, &data); err != nil {
		return nil, fmt.Errorf("client: globalData reply: %w", err)
	}
	return &data, nil
}

// RecentUsage fetches the latest usage records.
func (c *Client) RecentUsage() ([]RecentUsage, error) {
	reply, err := c.request(protocol.Get, "recentUsage", nil)
	if err != nil {
		return nil, err
	}
	var rows []RecentUsage
	if err := rebind(reply.Body, &rows); err != nil {
		return nil, fmt.Errorf("client: recentUsage reply: %w", err)
	}
	return rows, nil
}

// RecentUploaded fetches the latest uploaded worksheets.
func (c *Client) RecentUploaded() ([]RecentUpload, error) {
	reply, err := c.request(protocol.Get, "recentUploaded", nil)
	if err != nil {
		return nil, err
	}
	var rows []RecentUpload
	if err := rebind(reply.Body, &rows); err != nil {
		return nil, fmt.Errorf("client: recentUploaded reply: %w", err)
	}
	return rows, nil
}

// UnusedWorksheets lists worksheets the class has not used yet.
func (c *Client) UnusedWorksheets(class string) ([]UnusedWorksheet, error) {
	reply, err := c.request(protocol.Get, "unusedWorksheets", map[string]any{"class": class})
	if err != nil {
		return nil, err
	}
	var rows []UnusedWorksheet
	if err := rebind(reply.Body, &rows); err != nil {
		return nil, fmt.Errorf("client: unusedWorksheets reply: %w", err)
	}
	return rows, nil
}

// UploadWorksheet reads the file at path and sends it to the server.
// The returned status is the server's verdict; an error means the
// exchange itself failed.
func (c *Client) UploadWorksheet(path string, formIdx, subjectIdx int, description string) (protocol.Status, error) {
	name := filepath.Base(path)
	if !CheckFileName(name) {
		return "", fmt.Errorf("client: file name %q violates the Tier_Subject_Serial_Title convention", name)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("client: read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	reply, err := c.request(protocol.Post, "uploadWorksheet", map[string]any{
		"fileData":     raw,
		"form":         formIdx,
		"subject":      subjectIdx,
		"name":         name,
		"description":  description,
		"creationDate": info.ModTime().Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return "", err
	}
	status, ok := reply.BodyStatus()
	if !ok {
		return "", fmt.Errorf("client: uploadWorksheet reply carries no status")
	}
	c.log.Info().Str("name", name).Str("status", string(status)).Msg("upload finished")
	return status, nil
}

// RegisterUsage records that a worksheet is used by a class and saves
// the returned file under downloadDir.
func (c *Client) RegisterUsage(worksheet, class, teacher, section, subTeacher, downloadDir string) (string, error) {
	reply, err := c.request(protocol.Post, "registerUsage", map[string]any{
		"worksheet":  worksheet,
		"class":      class,
		"teacher":    teacher,
		"section":    section,
		"subTeacher": subTeacher,
	})
	if err != nil {
		return "", err
	}
	if reply.Kind != protocol.OK {
		status, _ := reply.BodyStatus()
		return "", fmt.Errorf("client: registerUsage rejected: %s", string(status))
	}
	encoded, ok := reply.BodyString()
	if !ok {
		return "", fmt.Errorf("client: registerUsage reply carries no file data")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("client: worksheet payload is not valid base64: %w", err)
	}

	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(downloadDir, filepath.Base(worksheet))
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		return "", fmt.Errorf("client: save worksheet: %w", err)
	}
	c.log.Info().Str("worksheet", worksheet).Str("path", out).Msg("worksheet saved")
	return out, nil
}

// TotalWorksheets fetches the server's worksheet count.
func (c *Client) TotalWorksheets() (int64, error) {
	reply, err := c.request(protocol.Get, "totalWorksheets", nil)
	if err != nil {
		return 0, err
	}
	n, ok := reply.Body.(float64)
	if !ok {
		return 0, fmt.Errorf("client: totalWorksheets reply carries no count")
	}
	return int64(n), nil
}

// rebind converts a decoded body back into a typed shape.
func rebind(body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
