package results

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shaiso/sasflow/internal/domain"
)

// FileMode is the mode of a newly created sink.
const FileMode fs.FileMode = 0o644

// Header is the first line of every non-empty sink.
var Header = []string{"id", "Flow", "Predecessors", "Location", "Status", "Log location", "Details"}

// CSVRecorder appends ResultRows to a CSV file.
// It is safe for concurrent use.
type CSVRecorder struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewCSVRecorder creates a recorder for the file at path.
func NewCSVRecorder(path string, logger *slog.Logger) *CSVRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVRecorder{
		path:   path,
		logger: logger.With("sink", path),
	}
}

// Path returns the sink file path.
func (r *CSVRecorder) Path() string {
	return r.path
}

// Init prepares the sink for a run: creates its folder and, unless keep is
// set, truncates the file.
func (r *CSVRecorder) Init(keep bool) error {
	if !strings.EqualFold(filepath.Ext(r.path), ".csv") {
		return fmt.Errorf("%w: %s", ErrUnsupportedSink, r.path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrRecord, err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if !keep {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(r.path, flags, FileMode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecord, err)
	}
	return f.Close()
}

// Record appends row and sets row.ID to its sequence number.
//
// The whole file is read, the row is appended with id = rows + 1, and the
// table is written to a temp file that replaces the sink. A failed write
// leaves the previous content untouched.
func (r *CSVRecorder) Record(ctx context.Context, row *domain.ResultRow) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecord, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := ReadCSV(r.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecord, err)
	}

	row.ID = len(rows) + 1
	rows = append(rows, *row)

	if err := r.replace(rows); err != nil {
		return fmt.Errorf("%w: %v", ErrRecord, err)
	}

	r.logger.Debug("result recorded", "id", row.ID, "flow", row.Flow, "job", row.Location)
	return nil
}

// replace writes rows to a temp file next to the sink and renames it over
// the sink. The sink keeps its mode.
func (r *CSVRecorder) replace(rows []domain.ResultRow) error {
	mode := FileMode
	if info, err := os.Stat(r.path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}

	if err := WriteCSV(tmp, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}

// WriteCSV writes the header and rows. Nothing is written for no rows.
func WriteCSV(w io.Writer, rows []domain.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(toRecord(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads every row of a sink. A missing or empty file has no rows.
func ReadCSV(path string) ([]domain.ResultRow, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseCSV(f)
}

// ParseCSV parses a result table. The header line is optional.
func ParseCSV(rd io.Reader) ([]domain.ResultRow, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = len(Header)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSink, err)
	}

	if len(records) > 0 && records[0][0] == Header[0] {
		records = records[1:]
	}

	rows := make([]domain.ResultRow, 0, len(records))
	for i, rec := range records {
		row, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedSink, i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toRecord(row domain.ResultRow) []string {
	return []string{
		strconv.Itoa(row.ID),
		row.Flow,
		row.Predecessors,
		row.Location,
		row.Status.String(),
		row.LogLocation,
		row.Details,
	}
}

func fromRecord(rec []string) (domain.ResultRow, error) {
	id, err := strconv.Atoi(rec[0])
	if err != nil {
		return domain.ResultRow{}, fmt.Errorf("invalid id %q", rec[0])
	}
	return domain.ResultRow{
		ID:           id,
		Flow:         rec[1],
		Predecessors: rec[2],
		Location:     rec[3],
		Status:       domain.JobStatus(rec[4]),
		LogLocation:  rec[5],
		Details:      rec[6],
	}, nil
}
