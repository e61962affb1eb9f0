package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/models"
	"gopkg.in/yaml.v3"
)

// ReportConfig records what a batch was run with
type ReportConfig struct {
	ModelType     string   `yaml:"modeltype"`
	Model         string   `yaml:"model"`
	CaptionType   string   `yaml:"captiontype"`
	CaptionLength string   `yaml:"captionlength"`
	Prompt        string   `yaml:"prompt"`
	ExtraOptions  []string `yaml:"extraoptions,omitempty"`
	Timestamp     string   `yaml:"timestamp"`
}

// ReportItem is one outcome of the batch
type ReportItem struct {
	Image     string `yaml:"image"`
	Status    string `yaml:"status"`
	Caption   string `yaml:"caption,omitempty"`
	ErrorKind string `yaml:"errorkind,omitempty"`
	Message   string `yaml:"message,omitempty"`
	Attempts  int    `yaml:"attempts,omitempty"`
}

// Report is the YAML document written after a batch run
type Report struct {
	RunID   string             `yaml:"runid"`
	Status  string             `yaml:"status"`
	Config  ReportConfig       `yaml:"config"`
	Summary captioning.Summary `yaml:"summary"`
	Results []ReportItem       `yaml:"results"`
}

// NewReport builds a report from a finished batch
func NewReport(settings *models.CaptionSettings, result captioning.BatchResult) Report {
	r := Report{
		RunID:   result.RunID,
		Status:  string(result.Status),
		Summary: result.Summary(),
		Results: make([]ReportItem, 0, len(result.Outcomes)),
	}
	if settings != nil {
		r.Config = ReportConfig{
			ModelType:     string(settings.Endpoint.ModelType),
			Model:         settings.Endpoint.Model,
			CaptionType:   settings.Caption.CaptionType,
			CaptionLength: settings.Caption.CaptionLength,
			Prompt:        captioning.BuildPrompt(settings.Caption),
			ExtraOptions:  settings.Caption.ExtraOptions,
		}
	}
	r.Config.Timestamp = time.Now().Format("2006-01-02_15-04-05")

	for _, o := range result.Outcomes {
		r.Results = append(r.Results, ReportItem{
			Image:     o.ImageName,
			Status:    string(o.Status),
			Caption:   o.Caption,
			ErrorKind: string(o.ErrorKind),
			Message:   o.Message,
			Attempts:  o.Attempts,
		})
	}
	return r
}

// SaveYAML writes the report to path, creating parent directories
func (r Report) SaveYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
