package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/annotation"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/jobs"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// TaskCalculateMetrics names the background task building a report
const TaskCalculateMetrics = "calculate_metrics"

type calculatePayload struct {
	MetricsID uint `json:"metrics_id"`
}

// Service queues, builds and removes metrics reports
type Service struct {
	store       store.Store
	media       media.Root
	exports     *export.Service
	annotations *annotation.Service
	jobs        *jobs.Runner
	logger      *zap.Logger
}

// NewService creates a new metrics service and registers its task
// handler with runner.
func NewService(
	st store.Store,
	root media.Root,
	exports *export.Service,
	annotations *annotation.Service,
	runner *jobs.Runner,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, media: root, exports: exports, annotations: annotations, jobs: runner, logger: logger}
	runner.Register(TaskCalculateMetrics, s.handleCalculate)
	return s
}

// Submit records a queued report over the projects and enqueues its
// calculation. An empty name is replaced by a generated one.
func (s *Service) Submit(ctx context.Context, projectIDs []uint, reportName string) (*model.ProjectMetrics, error) {
	if len(projectIDs) == 0 {
		return nil, &model.ValidationError{Field: "projects", Message: "at least one project is required"}
	}
	st := s.store.WithContext(ctx)
	for _, id := range projectIDs {
		if _, err := st.Projects().Get(id); err != nil {
			return nil, fmt.Errorf("project %d: %w", id, err)
		}
	}
	name := GenerateReportName(projectIDs, reportName, time.Now())

	pm := &model.ProjectMetrics{
		ReportName:          reportName,
		ReportNameGenerated: name,
		Status:              model.MetricsStatusQueued,
	}
	err := st.Transaction(func(tx store.Store) error {
		if err := tx.Metrics().Create(pm); err != nil {
			return err
		}
		return tx.Metrics().SetProjects(pm.ID, projectIDs)
	})
	if err != nil {
		return nil, err
	}

	task, err := s.jobs.Enqueue(ctx, jobs.QueueMetrics, TaskCalculateMetrics, calculatePayload{MetricsID: pm.ID})
	if err != nil {
		_ = st.Metrics().Delete(pm.ID)
		return nil, err
	}
	pm.TaskID = task.ID
	if err := st.Metrics().Update(pm); err != nil {
		return nil, err
	}
	s.logger.Info("queued metrics report", zap.Uint("metrics", pm.ID), zap.String("report", name))
	return pm, nil
}

// GenerateReportName returns reportName, or a name derived from the
// project ids and the time when it is empty.
func GenerateReportName(projectIDs []uint, reportName string, now time.Time) string {
	if strings.TrimSpace(reportName) != "" {
		return media.SafeName(strings.TrimSpace(reportName))
	}
	ids := make([]string, 0, len(projectIDs))
	for _, id := range projectIDs {
		ids = append(ids, fmt.Sprint(id))
	}
	return fmt.Sprintf("metrics_%s-%s", strings.Join(ids, "_"), now.Format("2006_01_02__15_04_05"))
}

func (s *Service) handleCalculate(ctx context.Context, task *model.Task) error {
	var p calculatePayload
	if err := jobs.Decode(task, &p); err != nil {
		return err
	}
	return s.CalculateMetrics(ctx, p.MetricsID)
}

// CalculateMetrics builds the report of a queued ProjectMetrics row and
// writes it to <media_root>/<report name>.json. The first project's model
// scores the annotations; reports are still written when it cannot be
// loaded, without model statistics.
func (s *Service) CalculateMetrics(ctx context.Context, metricsID uint) error {
	st := s.store.WithContext(ctx)
	pm, err := st.Metrics().GetFull(metricsID)
	if err != nil {
		return fmt.Errorf("metrics %d: %w", metricsID, err)
	}
	if err := st.Metrics().SetStatus(pm.ID, model.MetricsStatusRunning, ""); err != nil {
		return err
	}

	ref, err := s.calculate(ctx, pm)
	if err != nil {
		if serr := st.Metrics().SetStatus(pm.ID, model.MetricsStatusFailed, err.Error()); serr != nil {
			s.logger.Error("failed to record metrics failure", zap.Uint("metrics", pm.ID), zap.Error(serr))
		}
		return err
	}

	pm.Report = ref
	pm.Status = model.MetricsStatusComplete
	pm.Error = ""
	if err := st.Metrics().Update(pm); err != nil {
		return err
	}
	s.logger.Info("finished calculating metrics",
		zap.Uint("metrics", pm.ID), zap.String("report", pm.ReportNameGenerated))
	return nil
}

func (s *Service) calculate(ctx context.Context, pm *model.ProjectMetrics) (string, error) {
	if len(pm.Projects) == 0 {
		return "", errors.New("metrics report has no projects")
	}
	st := s.store.WithContext(ctx)
	ids := make([]uint, 0, len(pm.Projects))
	filters := map[uint][]string{}
	for _, p := range pm.Projects {
		ids = append(ids, p.ID)
		cuis, err := s.annotations.ProjectCUIFilter(&p)
		if err != nil {
			return "", err
		}
		filters[p.ID] = cuis
	}

	first, err := st.Projects().GetFull(ids[0])
	if err != nil {
		return "", err
	}
	var cat *nlp.CAT
	if models := s.annotations.Models(); models != nil {
		cat, err = models.GetMedCAT(ctx, first)
		if err != nil {
			s.logger.Warn("calculating metrics without a model", zap.Uint("project", first.ID), zap.Error(err))
			cat = nil
		}
	}

	exp, err := s.exports.RetrieveProjectData(ctx, ids, export.Options{WithText: true, WithDocName: true})
	if err != nil {
		return "", err
	}
	report := BuildReport(exp, cat, filters)
	data, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	ref := pm.ReportNameGenerated + ".json"
	if _, err := s.media.WriteFile(ref, data); err != nil {
		return "", fmt.Errorf("failed to write metrics report: %w", err)
	}
	return ref, nil
}

// Load returns a completed report
func (s *Service) Load(ctx context.Context, metricsID uint) (*model.ProjectMetrics, json.RawMessage, error) {
	pm, err := s.store.WithContext(ctx).Metrics().GetFull(metricsID)
	if err != nil {
		return nil, nil, err
	}
	if pm.Status != model.MetricsStatusComplete || pm.Report == "" {
		return pm, nil, &model.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("metrics report %d is %s", pm.ID, pm.Status),
		}
	}
	data, err := os.ReadFile(s.media.Path(pm.Report))
	if err != nil {
		return pm, nil, fmt.Errorf("failed to read metrics report: %w", err)
	}
	return pm, json.RawMessage(data), nil
}

// Delete removes a report with its file, and its task if it has not run
func (s *Service) Delete(ctx context.Context, metricsID uint) error {
	st := s.store.WithContext(ctx)
	pm, err := st.Metrics().Get(metricsID)
	if err != nil {
		return err
	}
	if pm.Status == model.MetricsStatusRunning {
		return &model.ValidationError{Field: "status", Message: "cannot delete a running metrics report"}
	}
	if pm.TaskID != "" {
		if err := st.Tasks().Delete(pm.TaskID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if err := st.Metrics().Delete(pm.ID); err != nil {
		return err
	}
	if err := s.media.Remove(pm.Report); err != nil {
		s.logger.Warn("failed to remove metrics report", zap.String("file", pm.Report), zap.Error(err))
	}
	return nil
}
