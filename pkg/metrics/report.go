package metrics

import (
	"math"
	"sort"
	"strings"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
)

// ReportTimeFormat is the timestamp layout of the annotation summary
const ReportTimeFormat = "2006-01-02 15:04:05.000000"

// maxExamples bounds the example values listed per CUI and outcome
const maxExamples = 10

// missing fills annotation summary columns an annotation has no value for
const missing = "-"

// Report is the content of a metrics report file
type Report struct {
	UserStats         []UserStat               `json:"user_stats"`
	ConceptSummary    []ConceptSummary         `json:"concept_summary"`
	AnnotationSummary []map[string]interface{} `json:"annotation_summary"`
	MetaAnnoSummary   interface{}              `json:"meta_anno_summary"`
}

// UserStat counts the annotations of one user
type UserStat struct {
	User  string `json:"user"`
	Count int    `json:"count"`
}

// ConceptSummary describes the correct annotations of one CUI. The model
// statistics are only set when a model was evaluated.
type ConceptSummary struct {
	CUI                  string   `json:"cui"`
	ConceptName          string   `json:"concept_name,omitempty"`
	Values               []string `json:"value"`
	ConceptCount         int      `json:"concept_count"`
	Variations           int      `json:"variations"`
	CountVariationsRatio float64  `json:"count_variations_ratio"`

	FPs        *int     `json:"fps,omitempty"`
	FNs        *int     `json:"fns,omitempty"`
	TPs        *int     `json:"tps,omitempty"`
	Precision  *float64 `json:"cui_prec,omitempty"`
	Recall     *float64 `json:"cui_rec,omitempty"`
	F1         *float64 `json:"cui_f1,omitempty"`
	FPExamples []string `json:"fp_examples,omitempty"`
	FNExamples []string `json:"fn_examples,omitempty"`
	TPExamples []string `json:"tp_examples,omitempty"`
}

// BuildReport summarises an annotation export. When cat is not nil it is
// run over the exported documents and its links are scored against the
// correct annotations, restricted per project to the CUIs in filters.
// Documents must be exported with their text for the model to be scored.
func BuildReport(exp *export.Export, cat *nlp.CAT, filters map[uint][]string) *Report {
	r := &Report{
		UserStats:         userStats(exp),
		ConceptSummary:    conceptSummary(exp, cat),
		AnnotationSummary: annotationSummary(exp, cat),
	}
	if cat != nil {
		applyStats(r.ConceptSummary, Evaluate(exp, cat, filters))
	}
	return r
}

func userStats(exp *export.Export) []UserStat {
	counts := map[string]int{}
	for _, p := range exp.Projects {
		for _, d := range p.Documents {
			for _, a := range d.Annotations {
				counts[a.User]++
			}
		}
	}
	out := make([]UserStat, 0, len(counts))
	for user, n := range counts {
		out = append(out, UserStat{User: user, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].User < out[j].User
	})
	return out
}

// isCorrect selects the annotations that count as ground truth
func isCorrect(a *export.Annotation) bool {
	return a.Validated && (a.Correct || a.Alternative)
}

func conceptSummary(exp *export.Export, cat *nlp.CAT) []ConceptSummary {
	values := map[string]map[string]bool{}
	counts := map[string]int{}
	for _, p := range exp.Projects {
		for _, d := range p.Documents {
			for i := range d.Annotations {
				a := &d.Annotations[i]
				if !isCorrect(a) {
					continue
				}
				if values[a.CUI] == nil {
					values[a.CUI] = map[string]bool{}
				}
				values[a.CUI][a.Value] = true
				counts[a.CUI]++
			}
		}
	}

	out := make([]ConceptSummary, 0, len(counts))
	for cui, n := range counts {
		vals := make([]string, 0, len(values[cui]))
		for v := range values[cui] {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		cs := ConceptSummary{
			CUI:                  cui,
			Values:               vals,
			ConceptCount:         n,
			Variations:           len(vals),
			CountVariationsRatio: round3(float64(n) / float64(len(vals))),
		}
		if cat != nil {
			cs.ConceptName = conceptName(cat, cui)
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConceptCount != out[j].ConceptCount {
			return out[i].ConceptCount > out[j].ConceptCount
		}
		return out[i].CUI < out[j].CUI
	})
	return out
}

func annotationSummary(exp *export.Export, cat *nlp.CAT) []map[string]interface{} {
	metaNames := map[string]bool{}
	for _, p := range exp.Projects {
		for _, d := range p.Documents {
			for _, a := range d.Annotations {
				for name := range a.MetaAnns {
					metaNames[name] = true
				}
			}
		}
	}

	var rows []map[string]interface{}
	for _, p := range exp.Projects {
		for _, d := range p.Documents {
			for _, a := range d.Annotations {
				row := map[string]interface{}{
					"project":          p.Name,
					"project_id":       p.ID,
					"document_name":    d.Name,
					"document_id":      d.ID,
					"id":               a.ID,
					"user":             a.User,
					"cui":              a.CUI,
					"value":            a.Value,
					"start":            a.Start,
					"end":              a.End,
					"validated":        a.Validated,
					"correct":          a.Correct,
					"deleted":          a.Deleted,
					"alternative":      a.Alternative,
					"killed":           a.Killed,
					"irrelevant":       a.Irrelevant,
					"manually_created": a.ManuallyCreated,
					"acc":              a.Acc,
					"comment":          orMissing(a.Comment),
					"create_time":      reportTime(a.CreateTime),
					"last_modified":    reportTime(a.LastModified),
				}
				if cat != nil {
					row["concept_name"] = orMissing(conceptName(cat, a.CUI))
				}
				for name := range metaNames {
					row[name] = missing
				}
				for name, m := range a.MetaAnns {
					row[name] = orMissing(m.Value)
				}
				rows = append(rows, row)
			}
		}
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return rows
}

func applyStats(summary []ConceptSummary, stats map[string]*CUIStats) {
	for i := range summary {
		s, ok := stats[summary[i].CUI]
		if !ok {
			s = &CUIStats{}
		}
		tps, fps, fns := s.TP, s.FP, s.FN
		prec, rec, f1 := s.Precision(), s.Recall(), s.F1()
		summary[i].TPs, summary[i].FPs, summary[i].FNs = &tps, &fps, &fns
		summary[i].Precision, summary[i].Recall, summary[i].F1 = &prec, &rec, &f1
		summary[i].TPExamples = s.TPExamples
		summary[i].FPExamples = s.FPExamples
		summary[i].FNExamples = s.FNExamples
	}
}

// conceptName returns the preferred name of cui, empty when unknown
func conceptName(cat *nlp.CAT, cui string) string {
	if info, ok := cat.CDB.Concept(cui); ok {
		return info.PrettyName
	}
	return ""
}

func reportTime(s string) string {
	if strings.TrimSpace(s) == "" {
		return missing
	}
	return export.ParseTime(s).Format(ReportTimeFormat)
}

func orMissing(s string) string {
	if s == "" {
		return missing
	}
	return s
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
