package control

import (
	"context"

	"github.com/c360/vibstreams/configstore"
	"github.com/c360/vibstreams/errors"
)

// ListProjects returns an owner's projects ordered by name.
func (p *Plane) ListProjects(owner string) ([]configstore.Project, error) {
	return p.deps.Config.ListProjects(owner)
}

// GetProject loads one project with models and channels.
func (p *Plane) GetProject(owner, name string) (*configstore.Project, error) {
	return p.deps.Config.GetProject(owner, name)
}

// CreateProject stores a new project and publishes the new epoch.
// ConfigConflict on duplicate names or tags.
func (p *Plane) CreateProject(ctx context.Context, project *configstore.Project) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.deps.Config.CreateProject(project); err != nil {
		return err
	}
	return p.rebuildLocked(ctx)
}

// RenameProject renames a project. Recordings keep their original
// project name; filename numbering stays per original name.
func (p *Plane) RenameProject(ctx context.Context, owner, oldName, newName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.deps.Config.RenameProject(owner, oldName, newName); err != nil {
		return err
	}
	return p.rebuildLocked(ctx)
}

// DeleteProject removes a project with its models, channels, and
// settings. Open recordings for its models are closed first.
func (p *Plane) DeleteProject(ctx context.Context, owner, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	project, err := p.deps.Config.GetProject(owner, name)
	if err != nil {
		return err
	}
	for _, m := range project.Models {
		rec, err := p.deps.Recordings.FindOpen(project.Name, m.Name)
		if err != nil {
			continue
		}
		if err := p.stopRecordingLocked(ctx, rec.ID); err != nil {
			return err
		}
	}

	if err := p.deps.Config.DeleteProject(owner, name); err != nil {
		return err
	}
	return p.rebuildLocked(ctx)
}

// AddTag binds a new model (and its bus tag) to a project.
func (p *Plane) AddTag(ctx context.Context, owner, projectName string, model *configstore.Model) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.deps.Config.AddModel(owner, projectName, model); err != nil {
		return err
	}
	return p.rebuildLocked(ctx)
}

// EditTag renames a model's bus tag, rewriting persisted frame topics
// in the same transaction.
func (p *Plane) EditTag(ctx context.Context, owner, projectName, modelName, newTag string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.deps.Config.RenameTag(owner, projectName, modelName, newTag); err != nil {
		return err
	}
	return p.rebuildLocked(ctx)
}

// DeleteTag removes a model. An open recording on the model is closed
// first.
func (p *Plane) DeleteTag(ctx context.Context, owner, projectName, modelName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec, err := p.deps.Recordings.FindOpen(projectName, modelName); err == nil {
		if err := p.stopRecordingLocked(ctx, rec.ID); err != nil {
			return err
		}
	}
	if err := p.deps.Config.DeleteModel(owner, projectName, modelName); err != nil {
		return err
	}
	return p.rebuildLocked(ctx)
}

// UpdateChannel upserts one channel's calibration. No epoch bump: the
// binding table does not carry calibration, processors pick it up at
// subscribe time.
func (p *Plane) UpdateChannel(owner, projectName, modelName string, ch configstore.Channel) error {
	return p.deps.Config.UpdateChannel(owner, projectName, modelName, ch)
}

// UpdateFFTSettings validates and stores FFT settings; invalid
// settings leave the previous values current.
func (p *Plane) UpdateFFTSettings(owner, projectName string, s configstore.FFTSettings) error {
	return p.deps.Config.SaveFFTSettings(owner, projectName, s)
}

// UpdateTabularSettings validates and stores tabular settings.
func (p *Plane) UpdateTabularSettings(owner, projectName string, s configstore.TabularSettings) error {
	return p.deps.Config.SaveTabularSettings(owner, projectName, s)
}

// GetFFTSettings returns the latest stored FFT settings, defaults when
// none were saved.
func (p *Plane) GetFFTSettings(owner, projectName string) (configstore.FFTSettings, error) {
	return p.deps.Config.LatestFFTSettings(owner, projectName)
}

// GetTabularSettings returns the latest stored tabular settings.
func (p *Plane) GetTabularSettings(owner, projectName string) (configstore.TabularSettings, error) {
	return p.deps.Config.LatestTabularSettings(owner, projectName)
}

// findModel resolves a model by name within a project.
func (p *Plane) findModel(owner, projectName, modelName string) (*configstore.Project, *configstore.Model, error) {
	project, err := p.deps.Config.GetProject(owner, projectName)
	if err != nil {
		return nil, nil, err
	}
	for i := range project.Models {
		if project.Models[i].Name == modelName {
			return project, &project.Models[i], nil
		}
	}
	return nil, nil, errors.WrapInvalid(errors.ErrUnknownTag,
		"ControlPlane", "findModel", "model "+modelName+" not in project "+projectName)
}
