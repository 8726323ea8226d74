package export

import "time"

// TimeFormat is the timestamp layout of annotation exports
const TimeFormat = "2006-01-02:15:04:05-0700"

// Export is the annotation export of one or more projects
type Export struct {
	Projects []Project `json:"projects"`
}

// Project is one exported project
type Project struct {
	Name      string     `json:"name"`
	ID        uint       `json:"id"`
	CUIs      string     `json:"cuis"`
	TUIs      string     `json:"tuis"`
	Documents []Document `json:"documents"`
}

// Document is an exported document with its annotations
type Document struct {
	ID           uint         `json:"id"`
	Name         string       `json:"name,omitempty"`
	Text         string       `json:"text,omitempty"`
	LastModified string       `json:"last_modified"`
	Annotations  []Annotation `json:"annotations"`
	Relations    []Relation   `json:"relations"`
}

// Annotation is an exported annotated entity
type Annotation struct {
	ID              uint               `json:"id"`
	User            string             `json:"user"`
	CUI             string             `json:"cui"`
	Value           string             `json:"value"`
	Start           int                `json:"start"`
	End             int                `json:"end"`
	Validated       bool               `json:"validated"`
	Correct         bool               `json:"correct"`
	Deleted         bool               `json:"deleted"`
	Alternative     bool               `json:"alternative"`
	Killed          bool               `json:"killed"`
	Irrelevant      bool               `json:"irrelevant"`
	ManuallyCreated bool               `json:"manually_created"`
	Acc             float64            `json:"acc"`
	Comment         string             `json:"comment"`
	CreateTime      string             `json:"create_time"`
	LastModified    string             `json:"last_modified"`
	MetaAnns        map[string]MetaAnn `json:"meta_anns"`
}

// MetaAnn is the exported value of one meta task of an annotation
type MetaAnn struct {
	Name      string  `json:"name"`
	Value     string  `json:"value"`
	Acc       float64 `json:"acc"`
	Validated bool    `json:"validated"`
}

// Relation is an exported entity relation. Both ends are identified by
// the start index of their annotation within the document.
type Relation struct {
	ID                  uint   `json:"id"`
	User                string `json:"user"`
	Relation            string `json:"relation"`
	StartEntity         uint   `json:"start_entity"`
	StartEntityCUI      string `json:"start_entity_cui"`
	StartEntityValue    string `json:"start_entity_value"`
	StartEntityStartIdx int    `json:"start_entity_start_idx"`
	StartEntityEndIdx   int    `json:"start_entity_end_idx"`
	EndEntity           uint   `json:"end_entity"`
	EndEntityCUI        string `json:"end_entity_cui"`
	EndEntityValue      string `json:"end_entity_value"`
	EndEntityStartIdx   int    `json:"end_entity_start_idx"`
	EndEntityEndIdx     int    `json:"end_entity_end_idx"`
	Validated           bool   `json:"validated"`
	CreateTime          string `json:"create_time"`
	LastModifiedTime    string `json:"last_modified_time"`
}

// FormatTime renders t in the export layout
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

// ParseTime reads an export timestamp, falling back to now when it is
// missing or malformed.
func ParseTime(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(TimeFormat, s); err == nil {
			return t
		}
	}
	return time.Now()
}

// AnnotationCount returns the number of annotations in the export
func (e *Export) AnnotationCount() int {
	n := 0
	for _, p := range e.Projects {
		for _, d := range p.Documents {
			n += len(d.Annotations)
		}
	}
	return n
}
