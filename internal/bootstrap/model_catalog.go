package bootstrap

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/transcribe"
)

// GetModels returns the hosted speech models with the configured one marked.
func (a *App) GetModels() []domain.ModelOption {
	selected := transcribe.DefaultModel
	if settings, err := a.loadSettingsForModelCatalog(); err == nil {
		selected = settings.Model
	}
	return modelOptions(selected)
}

// SelectModel stores model and specialization in settings.
func (a *App) SelectModel(modelID, specialization string) (domain.Settings, error) {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return domain.Settings{}, fmt.Errorf("model id is required")
	}

	model, found := transcribe.LookupModel(id)
	if !found {
		return domain.Settings{}, fmt.Errorf("unknown model id: %s", id)
	}

	spec := strings.ToLower(strings.TrimSpace(specialization))
	if spec == "" {
		spec = transcribe.GeneralSpecialization
	}
	if _, ok := model.Specializations[spec]; !ok {
		return domain.Settings{}, fmt.Errorf("model %s has no %q specialization", model.ID, spec)
	}

	settings, err := a.loadSettingsForModelCatalog()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings.Model = model.ID
	settings.Specialization = spec
	if err := a.Store.Save(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(settings)
	return settings, nil
}

func modelOptions(selected string) []domain.ModelOption {
	return lo.Map(transcribe.Models, func(m transcribe.SpeechModel, _ int) domain.ModelOption {
		return domain.ModelOption{
			ID:              m.ID,
			Name:            m.Name,
			Description:     m.Description,
			Specializations: lo.Assign(m.Specializations),
			Selected:        m.ID == selected,
		}
	})
}

func (a *App) loadSettingsForModelCatalog() (domain.Settings, error) {
	if a.Store == nil {
		return domain.Settings{}, fmt.Errorf("settings store is not configured")
	}
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, err
	}
	return normalizeSettings(settings), nil
}
