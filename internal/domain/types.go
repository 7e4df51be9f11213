package domain

// OutputFormat selects the transcript file written for each source file.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "txt"
	OutputFormatSRT  OutputFormat = "srt"
	OutputFormatVTT  OutputFormat = "vtt"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir      string       `json:"outputDir"`
	OutputFormat   OutputFormat `json:"outputFormat"`
	Language       string       `json:"language"`
	Model          string       `json:"model"`
	Specialization string       `json:"specialization,omitempty"`
	Diarize        bool         `json:"diarize"`
	SmartFormat    bool         `json:"smartFormat"`
	Workers        int          `json:"workers"`
}

// BatchSettings snapshots the settings that shape one batch run.
func (s Settings) BatchSettings() BatchSettings {
	return BatchSettings{
		OutputFormat: s.OutputFormat,
		OutputDir:    s.OutputDir,
		Language:     s.Language,
		Diarize:      s.Diarize,
		SmartFormat:  s.SmartFormat,
		Workers:      s.Workers,
	}
}

// ModelOption describes one selectable speech model preset.
type ModelOption struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Specializations map[string]string `json:"specializations,omitempty"`
	Selected        bool              `json:"selected"`
}

// ActiveBatch is the batch currently occupying the single run slot.
type ActiveBatch struct {
	ID              string      `json:"id"`
	Status          BatchStatus `json:"status"`
	CancelRequested bool        `json:"cancelRequested"`
}
