package metrics

import (
	"strings"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
)

// CUIStats scores the model links of one CUI against the annotations
type CUIStats struct {
	TP, FP, FN int

	TPExamples, FPExamples, FNExamples []string
}

// Precision is 0 when the model never linked the CUI
func (s *CUIStats) Precision() float64 {
	return ratio(s.TP, s.TP+s.FP)
}

// Recall is 0 when the CUI was never annotated
func (s *CUIStats) Recall() float64 {
	return ratio(s.TP, s.TP+s.FN)
}

// F1 is the harmonic mean of precision and recall
func (s *CUIStats) F1() float64 {
	p, r := s.Precision(), s.Recall()
	if p+r == 0 {
		return 0
	}
	return round3(2 * p * r / (p + r))
}

type spanKey struct {
	start, end int
	cui        string
}

// Evaluate runs cat over every exported document and compares its links
// with the correct annotations. A link matches when its span and CUI
// equal those of an annotation. Per project, only CUIs in that project's
// filter are scored; a project without filter, or with an empty one, is
// scored on every CUI. The filters map is keyed by exported project id.
func Evaluate(exp *export.Export, cat *nlp.CAT, filters map[uint][]string) map[string]*CUIStats {
	stats := map[string]*CUIStats{}
	get := func(cui string) *CUIStats {
		s, ok := stats[cui]
		if !ok {
			s = &CUIStats{}
			stats[cui] = s
		}
		return s
	}

	for _, p := range exp.Projects {
		allowed := cuiSet(filters[p.ID])
		if len(allowed) == 0 {
			allowed = cuiSet(splitCUIs(p.CUIs))
		}
		keep := func(cui string) bool {
			return len(allowed) == 0 || allowed[cui]
		}

		for _, d := range p.Documents {
			if d.Text == "" {
				continue
			}
			gold := map[spanKey]string{}
			for i := range d.Annotations {
				a := &d.Annotations[i]
				if isCorrect(a) && !a.Deleted && !a.Killed && keep(a.CUI) {
					gold[spanKey{a.Start, a.End, a.CUI}] = a.Value
				}
			}

			predicted := map[spanKey]bool{}
			for _, sp := range cat.Annotate(d.Text) {
				if !keep(sp.CUI) {
					continue
				}
				key := spanKey{sp.Start, sp.End, sp.CUI}
				if predicted[key] {
					continue
				}
				predicted[key] = true
				s := get(sp.CUI)
				if _, ok := gold[key]; ok {
					s.TP++
					s.TPExamples = addExample(s.TPExamples, sp.Text)
				} else {
					s.FP++
					s.FPExamples = addExample(s.FPExamples, sp.Text)
				}
			}
			for key, value := range gold {
				if !predicted[key] {
					s := get(key.cui)
					s.FN++
					s.FNExamples = addExample(s.FNExamples, value)
				}
			}
		}
	}
	return stats
}

func addExample(list []string, v string) []string {
	if len(list) >= maxExamples {
		return list
	}
	return append(list, v)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return round3(float64(n) / float64(d))
}

func cuiSet(cuis []string) map[string]bool {
	set := make(map[string]bool, len(cuis))
	for _, c := range cuis {
		set[c] = true
	}
	return set
}

func splitCUIs(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
