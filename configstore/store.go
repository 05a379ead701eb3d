package configstore

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/c360/vibstreams/errors"
)

// OpenDB opens (or creates) the configuration database and migrates
// the schema. The recording store migrates its own tables on the same
// handle.
func OpenDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, errors.WrapFatal(err, "ConfigStore", "OpenDB", "open database")
	}
	if err := db.AutoMigrate(&Project{}, &Model{}, &Channel{}, &SettingsRecord{}); err != nil {
		return nil, errors.WrapFatal(err, "ConfigStore", "OpenDB", "migrate schema")
	}
	return db, nil
}

// Store provides CRUD over projects, models, channels, and settings.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over an opened database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components sharing the database.
func (s *Store) DB() *gorm.DB { return s.db }

// validateModel checks the channel layout before a model is written.
// ChannelCount follows the acquisition hardware's fixed configurations
// and every channel's placement direction must be set.
func validateModel(m *Model) error {
	switch m.ChannelCount {
	case 4, 8, 10:
	default:
		return fmt.Errorf("model %q: channel count %d not one of 4, 8, 10", m.Name, m.ChannelCount)
	}
	if len(m.Channels) != m.ChannelCount {
		return fmt.Errorf("model %q: %d channels for channel count %d",
			m.Name, len(m.Channels), m.ChannelCount)
	}
	for _, ch := range m.Channels {
		if ch.AngleDirection != AngleLeft && ch.AngleDirection != AngleRight {
			return fmt.Errorf("model %q channel %d: angle direction %q not one of left, right",
				m.Name, ch.Index, ch.AngleDirection)
		}
	}
	return nil
}

// CreateProject inserts a project with its models and channels.
// Returns ConfigConflict when the (owner, name) pair or any (owner,
// tag) binding already exists.
func (s *Store) CreateProject(p *Project) error {
	for i := range p.Models {
		p.Models[i].Owner = p.Owner
		if err := validateModel(&p.Models[i]); err != nil {
			return errors.WrapInvalid(err, "ConfigStore", "CreateProject", "validate model")
		}
	}
	if err := s.db.Create(p).Error; err != nil {
		if isDuplicate(err) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: project %q owner %q", errors.ErrConfigConflict, p.Name, p.Owner),
				"ConfigStore", "CreateProject", "insert project")
		}
		return errors.Wrap(err, "ConfigStore", "CreateProject", "insert project")
	}
	return nil
}

// GetProject loads a project by (owner, name) with its models and
// channels.
func (s *Store) GetProject(owner, name string) (*Project, error) {
	var p Project
	err := s.db.Preload("Models.Channels").
		Where("owner = ? AND name = ?", owner, name).
		First(&p).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q owner %q", errors.ErrProjectNotFound, name, owner),
				"ConfigStore", "GetProject", "load project")
		}
		return nil, errors.Wrap(err, "ConfigStore", "GetProject", "load project")
	}
	return &p, nil
}

// ListProjects returns every project for an owner, models and channels
// included.
func (s *Store) ListProjects(owner string) ([]Project, error) {
	var projects []Project
	err := s.db.Preload("Models.Channels").
		Where("owner = ?", owner).
		Order("name").
		Find(&projects).Error
	if err != nil {
		return nil, errors.Wrap(err, "ConfigStore", "ListProjects", "load projects")
	}
	return projects, nil
}

// AllProjects returns every project across owners with models and
// channels loaded. The control plane rebuilds the router's tag
// snapshot from this view.
func (s *Store) AllProjects() ([]Project, error) {
	var projects []Project
	err := s.db.Preload("Models.Channels").
		Order("owner, name").
		Find(&projects).Error
	if err != nil {
		return nil, errors.Wrap(err, "ConfigStore", "AllProjects", "load projects")
	}
	return projects, nil
}

// RenameProject changes a project's name. ConfigConflict when the new
// name is taken.
func (s *Store) RenameProject(owner, oldName, newName string) error {
	res := s.db.Model(&Project{}).
		Where("owner = ? AND name = ?", owner, oldName).
		Update("name", newName)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: project %q owner %q", errors.ErrConfigConflict, newName, owner),
				"ConfigStore", "RenameProject", "rename project")
		}
		return errors.Wrap(res.Error, "ConfigStore", "RenameProject", "rename project")
	}
	if res.RowsAffected == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q owner %q", errors.ErrProjectNotFound, oldName, owner),
			"ConfigStore", "RenameProject", "locate project")
	}
	return nil
}

// DeleteProject removes a project with its models, channels, and
// settings rows.
func (s *Store) DeleteProject(owner, name string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var p Project
		if err := tx.Where("owner = ? AND name = ?", owner, name).First(&p).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.WrapInvalid(
					fmt.Errorf("%w: %q owner %q", errors.ErrProjectNotFound, name, owner),
					"ConfigStore", "DeleteProject", "locate project")
			}
			return errors.Wrap(err, "ConfigStore", "DeleteProject", "locate project")
		}

		var modelIDs []uint
		if err := tx.Model(&Model{}).Where("project_id = ?", p.ID).
			Pluck("id", &modelIDs).Error; err != nil {
			return errors.Wrap(err, "ConfigStore", "DeleteProject", "load model ids")
		}
		if len(modelIDs) > 0 {
			if err := tx.Where("model_id IN ?", modelIDs).Delete(&Channel{}).Error; err != nil {
				return errors.Wrap(err, "ConfigStore", "DeleteProject", "delete channels")
			}
		}
		if err := tx.Where("project_id = ?", p.ID).Delete(&Model{}).Error; err != nil {
			return errors.Wrap(err, "ConfigStore", "DeleteProject", "delete models")
		}
		if err := tx.Where("project_id = ?", p.ID).Delete(&SettingsRecord{}).Error; err != nil {
			return errors.Wrap(err, "ConfigStore", "DeleteProject", "delete settings")
		}
		if err := tx.Delete(&p).Error; err != nil {
			return errors.Wrap(err, "ConfigStore", "DeleteProject", "delete project")
		}
		return nil
	})
}

// AddModel attaches a model (with channels) to an existing project.
func (s *Store) AddModel(owner, projectName string, m *Model) error {
	if err := validateModel(m); err != nil {
		return errors.WrapInvalid(err, "ConfigStore", "AddModel", "validate model")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var p Project
		if err := tx.Where("owner = ? AND name = ?", owner, projectName).First(&p).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.WrapInvalid(
					fmt.Errorf("%w: %q owner %q", errors.ErrProjectNotFound, projectName, owner),
					"ConfigStore", "AddModel", "locate project")
			}
			return errors.Wrap(err, "ConfigStore", "AddModel", "locate project")
		}
		m.ProjectID = p.ID
		m.Owner = owner
		if err := tx.Create(m).Error; err != nil {
			if isDuplicate(err) {
				return errors.WrapInvalid(
					fmt.Errorf("%w: tag %q owner %q", errors.ErrConfigConflict, m.Tag, owner),
					"ConfigStore", "AddModel", "insert model")
			}
			return errors.Wrap(err, "ConfigStore", "AddModel", "insert model")
		}
		return nil
	})
}

// DeleteModel removes a model and its channels.
func (s *Store) DeleteModel(owner, projectName, modelName string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		m, err := findModel(tx, owner, projectName, modelName)
		if err != nil {
			return err
		}
		if err := tx.Where("model_id = ?", m.ID).Delete(&Channel{}).Error; err != nil {
			return errors.Wrap(err, "ConfigStore", "DeleteModel", "delete channels")
		}
		if err := tx.Delete(m).Error; err != nil {
			return errors.Wrap(err, "ConfigStore", "DeleteModel", "delete model")
		}
		return nil
	})
}

// RenameTag changes a model's tag binding and rewrites the topic on
// every persisted frame that carried the old tag, in one transaction.
func (s *Store) RenameTag(owner, projectName, modelName, newTag string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		m, err := findModel(tx, owner, projectName, modelName)
		if err != nil {
			return err
		}
		oldTag := m.Tag
		if oldTag == newTag {
			return nil
		}

		if err := tx.Model(m).Update("tag", newTag).Error; err != nil {
			if isDuplicate(err) {
				return errors.WrapInvalid(
					fmt.Errorf("%w: tag %q owner %q", errors.ErrConfigConflict, newTag, owner),
					"ConfigStore", "RenameTag", "update tag")
			}
			return errors.Wrap(err, "ConfigStore", "RenameTag", "update tag")
		}

		// Persisted frames reference the tag as their topic. The
		// recording store shares this database. Tags are only unique
		// per owner, so the rewrite is scoped to this model's own
		// recordings rather than matching the topic string globally.
		if tx.Migrator().HasTable("frame_records") {
			recordings := tx.Session(&gorm.Session{NewDB: true}).
				Table("recordings").Select("id").
				Where("project = ? AND model = ?", projectName, modelName)
			if err := tx.Table("frame_records").
				Where("topic = ? AND recording_id IN (?)", oldTag, recordings).
				Update("topic", newTag).Error; err != nil {
				return errors.Wrap(err, "ConfigStore", "RenameTag", "rewrite frame topics")
			}
		}
		return nil
	})
}

// UpdateChannel replaces a channel's calibration values.
func (s *Store) UpdateChannel(owner, projectName, modelName string, ch Channel) error {
	if ch.AngleDirection != AngleLeft && ch.AngleDirection != AngleRight {
		return errors.WrapInvalid(
			fmt.Errorf("channel %d: angle direction %q not one of left, right", ch.Index, ch.AngleDirection),
			"ConfigStore", "UpdateChannel", "validate channel")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		m, err := findModel(tx, owner, projectName, modelName)
		if err != nil {
			return err
		}
		res := tx.Model(&Channel{}).
			Where("model_id = ? AND `index` = ?", m.ID, ch.Index).
			Updates(map[string]any{
				"name":             ch.Name,
				"correction_value": ch.CorrectionValue,
				"gain":             ch.Gain,
				"sensitivity":      ch.Sensitivity,
				"unit":             ch.Unit,
				"angle":            ch.Angle,
				"angle_direction":  ch.AngleDirection,
				"shaft":            ch.Shaft,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "ConfigStore", "UpdateChannel", "update channel")
		}
		if res.RowsAffected == 0 {
			ch.ModelID = m.ID
			if err := tx.Create(&ch).Error; err != nil {
				return errors.Wrap(err, "ConfigStore", "UpdateChannel", "insert channel")
			}
		}
		return nil
	})
}

// ResolveTag returns the project and model bound to a tag for any
// owner, or ProjectNotFound.
func (s *Store) ResolveTag(tag string) (*Project, *Model, error) {
	var m Model
	err := s.db.Preload("Channels").Where("tag = ?", tag).First(&m).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errors.WrapInvalid(
				fmt.Errorf("%w: tag %q", errors.ErrUnknownTag, tag),
				"ConfigStore", "ResolveTag", "locate tag")
		}
		return nil, nil, errors.Wrap(err, "ConfigStore", "ResolveTag", "locate tag")
	}

	var p Project
	if err := s.db.First(&p, m.ProjectID).Error; err != nil {
		return nil, nil, errors.Wrap(err, "ConfigStore", "ResolveTag", "load project")
	}
	return &p, &m, nil
}

func findModel(tx *gorm.DB, owner, projectName, modelName string) (*Model, error) {
	var p Project
	if err := tx.Where("owner = ? AND name = ?", owner, projectName).First(&p).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q owner %q", errors.ErrProjectNotFound, projectName, owner),
				"ConfigStore", "findModel", "locate project")
		}
		return nil, errors.Wrap(err, "ConfigStore", "findModel", "locate project")
	}
	var m Model
	if err := tx.Where("project_id = ? AND name = ?", p.ID, modelName).First(&m).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: model %q in project %q", errors.ErrProjectNotFound, modelName, projectName),
				"ConfigStore", "findModel", "locate model")
		}
		return nil, errors.Wrap(err, "ConfigStore", "findModel", "locate model")
	}
	return &m, nil
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
