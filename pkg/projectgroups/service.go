package projectgroups

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// maxProjectName is the width of the projects.name column
const maxProjectName = 150

// ErrProjectsOutOfSync is returned when the member projects of a group no
// longer pair up with its annotators.
var ErrProjectsOutOfSync = fmt.Errorf("%w: projects of the group were added or removed individually", store.ErrConflict)

// Links are the link tables of a group. A nil list leaves the stored
// rows as they are.
type Links struct {
	Administrators  []uint
	Annotators      []uint
	Tasks           []uint
	Relations       []uint
	CDBSearchFilter []uint
}

// Service propagates group settings to member projects
type Service struct {
	logger *zap.Logger
}

// NewService creates a new project group service
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// Sync writes the links of a saved group and, when the group creates
// associated projects, creates or refreshes one project per annotator.
// st is normally the transaction the group row was written in.
func (s *Service) Sync(st store.Store, groupID uint, links Links) ([]model.Project, error) {
	if err := setLinks(st.ProjectGroups(), groupID, links); err != nil {
		return nil, err
	}
	g, err := st.ProjectGroups().GetFull(groupID)
	if err != nil {
		return nil, err
	}
	if !g.CreateAssociatedProjects {
		return nil, nil
	}

	existing, err := st.ProjectGroups().Projects(groupID)
	if err != nil {
		return nil, err
	}
	// projects are created in annotator id order, so the two lists pair
	// up by position
	if len(existing) > 0 && len(existing) != len(g.Annotators) {
		return nil, fmt.Errorf("group %q has %d projects for %d annotators: %w",
			g.Name, len(existing), len(g.Annotators), ErrProjectsOutOfSync)
	}

	admins := userIDs(g.Administrators)
	tasks := make([]uint, 0, len(g.Tasks))
	for _, t := range g.Tasks {
		tasks = append(tasks, t.ID)
	}
	relations := make([]uint, 0, len(g.Relations))
	for _, r := range g.Relations {
		relations = append(relations, r.ID)
	}
	filters := make([]uint, 0, len(g.CDBSearchFilter))
	for _, c := range g.CDBSearchFilter {
		filters = append(filters, c.ID)
	}

	out := make([]model.Project, 0, len(g.Annotators))
	for i, annotator := range g.Annotators {
		p := model.NewProject("", 0)
		if len(existing) > 0 {
			p = &existing[i]
		}
		g.ApplyTo(p)
		p.Name = g.MemberProjectName(annotator.Username)
		if len(p.Name) > maxProjectName {
			return nil, &model.ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("project name %q is longer than %d characters", p.Name, maxProjectName),
			}
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}

		created := p.ID == 0
		if created {
			err = st.Projects().Create(p)
		} else {
			err = st.Projects().Update(p)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save project %q: %w", p.Name, err)
		}

		members := append(append([]uint{}, admins...), annotator.ID)
		if err := st.Projects().SetMembers(p.ID, members); err != nil {
			return nil, err
		}
		if err := st.Projects().SetTasks(p.ID, tasks); err != nil {
			return nil, err
		}
		if err := st.Projects().SetRelations(p.ID, relations); err != nil {
			return nil, err
		}
		if err := st.Projects().SetCDBSearchFilter(p.ID, filters); err != nil {
			return nil, err
		}
		s.logger.Debug("synced group project",
			zap.Uint("group", g.ID),
			zap.Uint("project", p.ID),
			zap.String("annotator", annotator.Username),
			zap.Bool("created", created),
		)
		out = append(out, *p)
	}
	s.logger.Info("synced project group", zap.Uint("group", g.ID), zap.Int("projects", len(out)))
	return out, nil
}

func setLinks(groups store.ProjectGroupsStore, groupID uint, links Links) error {
	sets := []struct {
		ids []uint
		set func(uint, []uint) error
	}{
		{links.Administrators, groups.SetAdministrators},
		{links.Annotators, groups.SetAnnotators},
		{links.Tasks, groups.SetTasks},
		{links.Relations, groups.SetRelations},
		{links.CDBSearchFilter, groups.SetCDBSearchFilter},
	}
	for _, s := range sets {
		if s.ids == nil {
			continue
		}
		if err := s.set(groupID, s.ids); err != nil {
			return err
		}
	}
	return nil
}

func userIDs(users []model.User) []uint {
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
