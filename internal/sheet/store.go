package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/types"
)

// Column layout of the evaluation sheet. The call column (B) holds the
// display name and is the duplicate key.
var Headers = []string{
	"Manager",
	"Call",
	"Call date",
	"Reviewed at",
	"Greeting",
	"Needs analysis",
	"Presentation",
	"Closing",
	"Summary & next step",
	"Objection handling",
	"Speech",
	"Total score",
	"Transcription",
	"Comments",
}

const (
	colManager = iota
	colCall
	colCallDate
	colReviewedAt
	colFirstScore
)

const (
	colTotal         = colFirstScore + 7
	colTranscription = colTotal + 1
	colComments      = colTranscription + 1

	maxCellChars = 32767
)

var callDateRe = regexp.MustCompile(`(\d{4}[-._]\d{2}[-._]\d{2})|(\d{2}[-._]\d{2}[-._]\d{4})`)

var commentLabels = map[types.Category]string{
	types.CategoryGreeting:          "Greeting",
	types.CategoryNeedsAnalysis:     "Needs analysis",
	types.CategoryPresentation:      "Presentation",
	types.CategoryClosing:           "Closing",
	types.CategorySummary:           "Summary",
	types.CategoryObjectionHandling: "Objections",
	types.CategorySpeech:            "Speech",
}

// Store keeps evaluations in one sheet of an xlsx workbook. The file is
// reopened for every operation so edits made outside the service are seen;
// operations are serialized.
type Store struct {
	path  string
	sheet string
	now   func() time.Time
	log   *logger.Logger

	mu sync.Mutex
}

// Open makes sure the workbook and sheet exist.
func Open(path, sheet string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.New()
	}
	s := &Store{path: path, sheet: sheet, now: time.Now, log: log.Component("sheet")}
	if err := s.ensure(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		f := excelize.NewFile()
		defer f.Close()
		if err := f.SetSheetName(f.GetSheetName(0), s.sheet); err != nil {
			return fmt.Errorf("create workbook: %w", err)
		}
		if err := f.SaveAs(s.path); err != nil {
			return fmt.Errorf("create workbook: %w", err)
		}
		s.log.WithField("path", s.path).Info("created evaluation workbook")
		return nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	idx, err := f.GetSheetIndex(s.sheet)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	if idx >= 0 {
		return nil
	}
	if _, err := f.NewSheet(s.sheet); err != nil {
		return fmt.Errorf("add sheet %q: %w", s.sheet, err)
	}
	return f.Save()
}

// Lookup returns the location of the first row whose call column equals key.
func (s *Store) Lookup(ctx context.Context, key string) (types.Location, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Location{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows()
	if err != nil {
		return types.Location{}, false, err
	}
	for i, r := range rows {
		// row 1 holds the headers
		if i == 0 {
			continue
		}
		if colCall < len(r) && r[colCall] == key {
			return types.Location{Sheet: s.sheet, Row: i + 1}, true, nil
		}
	}
	return types.Location{}, false, nil
}

// Persist appends the evaluation, or rewrites job.OverwriteTarget in place.
func (s *Store) Persist(ctx context.Context, job types.Job, rec *types.EvaluationRecord) (types.Location, error) {
	if err := ctx.Err(); err != nil {
		return types.Location{}, fmt.Errorf("%w: %w", types.ErrPersist, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, err := s.write(job, rec)
	if err != nil {
		s.log.WithJob(job).WithError(err).Error("saving evaluation failed")
		return types.Location{}, fmt.Errorf("%w: %w", types.ErrPersist, err)
	}
	s.log.WithJob(job).WithField("location", loc.String()).Info("evaluation saved")
	return loc, nil
}

func (s *Store) write(job types.Job, rec *types.EvaluationRecord) (types.Location, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return types.Location{}, err
	}
	defer f.Close()

	sheet := s.sheet
	var row int
	if t := job.OverwriteTarget; t != nil {
		if t.Row < 2 {
			return types.Location{}, fmt.Errorf("invalid overwrite target %s", t)
		}
		if t.Sheet != "" {
			sheet = t.Sheet
		}
		row = t.Row
	} else {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return types.Location{}, err
		}
		if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == "" {
			header := make([]interface{}, len(Headers))
			for i, h := range Headers {
				header[i] = h
			}
			if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
				return types.Location{}, err
			}
			if len(rows) == 0 {
				rows = [][]string{Headers}
			}
		}
		row = len(rows) + 1
	}

	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return types.Location{}, err
	}
	values := s.rowValues(job, rec)
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return types.Location{}, err
	}
	if err := f.Save(); err != nil {
		return types.Location{}, err
	}
	return types.Location{Sheet: sheet, Row: row}, nil
}

func (s *Store) rowValues(job types.Job, rec *types.EvaluationRecord) []interface{} {
	now := s.now()
	callDate := callDateRe.FindString(job.DisplayName)
	if callDate == "" {
		callDate = now.Format("2006-01-02")
	}

	manager := strings.TrimSpace(rec.ManagerName)
	if manager == "" || strings.EqualFold(manager, "unknown") {
		manager = job.Submitter
	}
	if manager == "" {
		manager = "-"
	}

	transcription := rec.TranscriptionText
	if strings.TrimSpace(transcription) == "" {
		transcription = "Transcription not recognized"
	}

	values := []interface{}{
		manager,
		job.DisplayName,
		callDate,
		now.Format("2006-01-02 15:04:05"),
	}
	for _, c := range types.Categories {
		score, _ := rec.Score(c)
		if score.Applicable {
			values = append(values, score.Value)
		} else {
			values = append(values, "n/a")
		}
	}
	values = append(values, rec.TotalScore, clip(transcription), clip(commentDigest(rec)))
	return values
}

// commentDigest merges per-category comments and the overall summary.
func commentDigest(rec *types.EvaluationRecord) string {
	var lines []string
	for _, c := range types.Categories {
		_, comment := rec.Score(c)
		comment = strings.TrimSpace(comment)
		if comment == "" || comment == "None" || comment == "-" {
			continue
		}
		lines = append(lines, commentLabels[c]+": "+comment)
	}
	if s := strings.TrimSpace(rec.SummaryText); s != "" {
		lines = append(lines, "\nOVERALL: "+s)
	}
	return strings.Join(lines, "\n")
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxCellChars {
		return s
	}
	r := []rune(s)
	return string(r[:maxCellChars])
}

func (s *Store) rows() ([][]string, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetRows(s.sheet)
}

// Evaluation is one stored row, as read back for reporting.
type Evaluation struct {
	Row      int
	Manager  string
	Call     string
	CallDate string
	Scores   map[types.Category]types.Score
	Total    int
}

// Evaluations reads every data row of the sheet.
func (s *Store) Evaluations(ctx context.Context) ([]Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rows, err := s.rows()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read evaluations: %w", err)
	}

	var out []Evaluation
	for i, r := range rows {
		if i == 0 || len(r) <= colCall || r[colCall] == "" {
			continue
		}
		ev := Evaluation{
			Row:     i + 1,
			Manager: cellAt(r, colManager),
			Call:    r[colCall],
			Scores:  make(map[types.Category]types.Score, len(types.Categories)),
		}
		ev.CallDate = cellAt(r, colCallDate)
		for j, c := range types.Categories {
			ev.Scores[c] = parseScore(cellAt(r, colFirstScore+j))
		}
		ev.Total, _ = strconv.Atoi(strings.TrimSpace(cellAt(r, colTotal)))
		out = append(out, ev)
	}
	return out, nil
}

func cellAt(r []string, i int) string {
	if i < len(r) {
		return r[i]
	}
	return ""
}

func parseScore(v string) types.Score {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return types.NotApplicable
	}
	return types.Points(n)
}
