package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

const (
	// DefaultMaxRows is the dataset size limit when none is configured
	DefaultMaxRows = 10000

	missingColumnsMsg = "Please make sure the uploaded file has a column with two columns:'name', 'text'. " +
		"The 'name' column are document IDs, and the 'text' column is the text you're " +
		"collecting annotations for"
	uniqueNamesMsg = "name column entries must be unique"
)

// Limits bounds what an uploaded dataset may contain
type Limits struct {
	MaxRows     int
	UniqueNames bool
}

// Row is one document of a dataset file
type Row struct {
	Name string
	Text string
}

var sanitiseTags = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`<br>`), "\n"},
	{regexp.MustCompile(`</?p>`), "\n"},
	{regexp.MustCompile(`<span(?:.*?)?>`), ""},
	{regexp.MustCompile(`</span>`), ""},
	{regexp.MustCompile(`<div (?:.*?)?>`), "\n"},
	{regexp.MustCompile(`</div>`), "\n"},
	{regexp.MustCompile(`</?html>`), ""},
	{regexp.MustCompile(`</?body>`), ""},
	{regexp.MustCompile(`</?head>`), ""},
}

// SanitiseInput turns the html markup pasted into documents into plain
// text line breaks.
func SanitiseInput(text string) string {
	for _, tag := range sanitiseTags {
		text = tag.re.ReplaceAllString(text, tag.repl)
	}
	return text
}

// ParseCSV reads the documents of a dataset file. Column names are
// matched case-insensitively and must include name and text; other
// columns are ignored.
func ParseCSV(r io.Reader, limits Limits) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &model.ValidationError{Field: "original_file", Message: missingColumnsMsg}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	nameCol, textCol := -1, -1
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		switch col {
		case "name":
			nameCol = i
		case "text":
			textCol = i
		}
	}
	if nameCol < 0 || textCol < 0 {
		return nil, &model.ValidationError{Field: "original_file", Message: missingColumnsMsg}
	}

	var rows []Row
	seen := map[string]bool{}
	duplicates := false
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &model.ValidationError{Field: "original_file", Message: err.Error()}
		}
		row := Row{Name: field(rec, nameCol), Text: SanitiseInput(field(rec, textCol))}
		if seen[row.Name] {
			duplicates = true
		}
		seen[row.Name] = true
		rows = append(rows, row)
	}

	if duplicates && limits.UniqueNames {
		return nil, &model.ValidationError{Field: "original_file", Message: uniqueNamesMsg}
	}
	maxRows := limits.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if len(rows) > maxRows {
		return nil, &model.ValidationError{
			Field: "original_file",
			Message: fmt.Sprintf("Attempting to upload a dataset with %d rows. The Max dataset size is set to"+
				" %d, please reduce the number of rows or contact the MedCATTrainer"+
				" administrator to increase the env var value:MAX_DATASET_SIZE", len(rows), maxRows),
		}
	}
	return rows, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

// WriteCSV writes rows as a dataset file with name and text columns
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "text"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write([]string{row.Name, row.Text}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
