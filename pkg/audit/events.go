package audit

import (
	"fmt"
	"strconv"
	"strings"
)

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func severity(success bool) Severity {
	if success {
		return SeverityInfo
	}
	return SeverityWarning
}

func withError(msg, errMsg string) string {
	if errMsg != "" {
		return msg + ": " + errMsg
	}
	return msg
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

// AuthenticateEvent represents an authentication audit event
type AuthenticateEvent struct {
	Username          string
	ClientIP          string
	AuthenticatorName string
	Success           bool
	ErrorMessage      string
}

func (e AuthenticateEvent) MessageID() string {
	return "authn"
}

func (e AuthenticateEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s successfully authenticated with authenticator %s", e.Username, e.AuthenticatorName)
	}
	return withError(fmt.Sprintf("%s failed to authenticate with authenticator %s", e.Username, e.AuthenticatorName), e.ErrorMessage)
}

func (e AuthenticateEvent) Severity() Severity {
	return severity(e.Success)
}

func (e AuthenticateEvent) Facility() int {
	return FacilityAuthPriv
}

func (e AuthenticateEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDAuth: {
			"authenticator": e.AuthenticatorName,
			"user":          e.Username,
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
		SDIDAction: {
			"operation": "authenticate",
			"result":    result(e.Success),
		},
	}
}

// SubmitDocumentEvent is logged when an annotator submits a document
type SubmitDocumentEvent struct {
	Username     string
	ClientIP     string
	ProjectID    uint
	DocumentID   uint
	Trained      bool
	Success      bool
	ErrorMessage string
}

func (e SubmitDocumentEvent) MessageID() string {
	return "submit"
}

func (e SubmitDocumentEvent) Message() string {
	if e.Success {
		msg := fmt.Sprintf("%s submitted document %d of project %d", e.Username, e.DocumentID, e.ProjectID)
		if e.Trained {
			msg += " and trained the project model"
		}
		return msg
	}
	return withError(fmt.Sprintf("%s failed to submit document %d of project %d", e.Username, e.DocumentID, e.ProjectID), e.ErrorMessage)
}

func (e SubmitDocumentEvent) Severity() Severity {
	return severity(e.Success)
}

func (e SubmitDocumentEvent) Facility() int {
	return FacilityAuth
}

func (e SubmitDocumentEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDAuth: {
			"user": e.Username,
		},
		SDIDSubject: {
			"project":  strconv.FormatUint(uint64(e.ProjectID), 10),
			"document": strconv.FormatUint(uint64(e.DocumentID), 10),
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
		SDIDAction: {
			"operation": "submit",
			"trained":   strconv.FormatBool(e.Trained),
			"result":    result(e.Success),
		},
	}
}

// SaveModelEvent is logged when the cached model of a project is written to disk
type SaveModelEvent struct {
	Username     string
	ClientIP     string
	ProjectID    uint
	Success      bool
	ErrorMessage string
}

func (e SaveModelEvent) MessageID() string {
	return "save-model"
}

func (e SaveModelEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s saved the model of project %d", e.Username, e.ProjectID)
	}
	return withError(fmt.Sprintf("%s failed to save the model of project %d", e.Username, e.ProjectID), e.ErrorMessage)
}

func (e SaveModelEvent) Severity() Severity {
	return severity(e.Success)
}

func (e SaveModelEvent) Facility() int {
	return FacilityAuth
}

func (e SaveModelEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDAuth: {
			"user": e.Username,
		},
		SDIDSubject: {
			"project": strconv.FormatUint(uint64(e.ProjectID), 10),
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
		SDIDAction: {
			"operation": "save-model",
			"result":    result(e.Success),
		},
	}
}

// Kinds of bulk transfer
const (
	KindAnnotations = "annotations"
	KindDeployment  = "deployment"
)

// ExportEvent is logged when projects are exported
type ExportEvent struct {
	Username     string
	ClientIP     string
	Kind         string
	ProjectIDs   []uint
	Success      bool
	ErrorMessage string
}

func (e ExportEvent) MessageID() string {
	return "export"
}

func (e ExportEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s exported %s of projects %s", e.Username, e.Kind, joinIDs(e.ProjectIDs))
	}
	return withError(fmt.Sprintf("%s failed to export %s of projects %s", e.Username, e.Kind, joinIDs(e.ProjectIDs)), e.ErrorMessage)
}

func (e ExportEvent) Severity() Severity {
	return severity(e.Success)
}

func (e ExportEvent) Facility() int {
	return FacilityAuthPriv
}

func (e ExportEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDAuth: {
			"user": e.Username,
		},
		SDIDSubject: {
			"projects": joinIDs(e.ProjectIDs),
			"kind":     e.Kind,
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
		SDIDAction: {
			"operation": "export",
			"result":    result(e.Success),
		},
	}
}

// ImportEvent is logged when an annotation export or a deployment is uploaded
type ImportEvent struct {
	Username     string
	ClientIP     string
	Kind         string
	Projects     int
	Success      bool
	ErrorMessage string
}

func (e ImportEvent) MessageID() string {
	return "import"
}

func (e ImportEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s imported %d project(s) from a %s upload", e.Username, e.Projects, e.Kind)
	}
	return withError(fmt.Sprintf("%s failed to import a %s upload", e.Username, e.Kind), e.ErrorMessage)
}

func (e ImportEvent) Severity() Severity {
	return severity(e.Success)
}

func (e ImportEvent) Facility() int {
	return FacilityAuthPriv
}

func (e ImportEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDAuth: {
			"user": e.Username,
		},
		SDIDSubject: {
			"kind":     e.Kind,
			"projects": strconv.Itoa(e.Projects),
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
		SDIDAction: {
			"operation": "import",
			"result":    result(e.Success),
		},
	}
}

// MetricsEvent is logged when a metrics report is requested or deleted
type MetricsEvent struct {
	Username     string
	ClientIP     string
	Operation    string
	ReportID     uint
	ProjectIDs   []uint
	Success      bool
	ErrorMessage string
}

func (e MetricsEvent) MessageID() string {
	return "metrics"
}

func (e MetricsEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s ran %s on metrics report %d", e.Username, e.Operation, e.ReportID)
	}
	return withError(fmt.Sprintf("%s failed to %s metrics report %d", e.Username, e.Operation, e.ReportID), e.ErrorMessage)
}

func (e MetricsEvent) Severity() Severity {
	return severity(e.Success)
}

func (e MetricsEvent) Facility() int {
	return FacilityAuth
}

func (e MetricsEvent) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDAuth: {
			"user": e.Username,
		},
		SDIDSubject: {
			"report": strconv.FormatUint(uint64(e.ReportID), 10),
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
		SDIDAction: {
			"operation": e.Operation,
			"result":    result(e.Success),
		},
	}
	if len(e.ProjectIDs) > 0 {
		sd[SDIDSubject]["projects"] = joinIDs(e.ProjectIDs)
	}
	return sd
}
