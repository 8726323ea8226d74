package annotation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
)

// ProjectCUIFilter returns the CUIs a project is restricted to: the comma
// separated cuis field merged with the JSON list in the cuis file. An empty
// result means the project is not restricted.
func (s *Service) ProjectCUIFilter(p *model.Project) ([]string, error) {
	set := map[string]bool{}
	for _, cui := range strings.Split(p.CUIs, ",") {
		if cui = strings.TrimSpace(cui); cui != "" {
			set[cui] = true
		}
	}

	if p.CUIsFile != "" {
		data, err := os.ReadFile(s.media.Path(p.CUIsFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read cuis file: %w", err)
		}
		var fromFile []string
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("failed to parse cuis file %s: %w", p.CUIsFile, err)
		}
		for _, cui := range fromFile {
			if cui = strings.TrimSpace(cui); cui != "" {
				set[cui] = true
			}
		}
	}
	return sortedKeys(set), nil
}

// ProjectTUIFilter returns the semantic type ids a project is restricted
// to, from its comma separated tuis field.
func ProjectTUIFilter(p *model.Project) []string {
	set := map[string]bool{}
	for _, tui := range strings.Split(p.TUIs, ",") {
		if tui = strings.TrimSpace(tui); tui != "" {
			set[tui] = true
		}
	}
	return sortedKeys(set)
}

// FilterTypes keeps the spans carrying one of tuis. An empty tuis keeps
// every span.
func FilterTypes(spans []nlp.Span, tuis []string) []nlp.Span {
	if len(tuis) == 0 {
		return spans
	}
	allowed := make(map[string]bool, len(tuis))
	for _, t := range tuis {
		allowed[t] = true
	}
	kept := make([]nlp.Span, 0, len(spans))
	for _, sp := range spans {
		for _, t := range sp.TypeIDs {
			if allowed[t] {
				kept = append(kept, sp)
				break
			}
		}
	}
	return kept
}

// ExpandConceptFilter adds every descendant of the given CUIs. A CDB
// without a hierarchy leaves the list as is.
func ExpandConceptFilter(cdb *nlp.CDB, cuis []string) []string {
	set := map[string]bool{}
	for _, cui := range cuis {
		set[cui] = true
		for _, child := range cdb.Descendants(cui) {
			set[child] = true
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
