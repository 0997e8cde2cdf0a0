package joblog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shaiso/sasflow/internal/sas"
)

// maxNameAttempts bounds the search for a free file name.
const maxNameAttempts = 1000

var nonWord = regexp.MustCompile(`\W`)

// LogFetcher reads a job log by its link href.
type LogFetcher interface {
	FetchLog(ctx context.Context, href, accessToken string) (*sas.Log, error)
}

// Persister writes job logs into a folder.
type Persister struct {
	folder      string
	fetcher     LogFetcher
	accessToken string
	now         func() time.Time
	logger      *slog.Logger
}

// Config configures a Persister.
type Config struct {
	Folder      string
	Fetcher     LogFetcher
	AccessToken string
	Now         func() time.Time // default: time.Now
	Logger      *slog.Logger
}

// New creates a new Persister.
func New(cfg Config) *Persister {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Persister{
		folder:      cfg.Folder,
		fetcher:     cfg.Fetcher,
		accessToken: cfg.AccessToken,
		now:         now,
		logger:      logger,
	}
}

// Folder returns the configured log folder.
func (p *Persister) Folder() string {
	return p.folder
}

// Prepare creates the log folder if it does not exist.
func (p *Persister) Prepare() error {
	if p.folder == "" {
		return ErrNoLogFolder
	}
	if err := os.MkdirAll(p.folder, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrLogWrite, err)
	}
	return nil
}

// Save fetches the log behind links and writes it to a new file.
//
// Returns the path of the written file. When links carry no GET "log" link
// nothing is written and Save returns "", nil.
func (p *Persister) Save(ctx context.Context, links []sas.Link, flow, location string) (string, error) {
	if p.folder == "" {
		return "", ErrNoLogFolder
	}

	link, err := FindLogLink(links)
	if errors.Is(err, ErrNoLogLink) {
		p.logger.Debug("no log available", "flow", flow, "job", location)
		return "", nil
	}

	log, err := p.fetcher.FetchLog(ctx, link.Href, p.accessToken)
	if err != nil {
		return "", fmt.Errorf("fetch log: %w", err)
	}

	return p.write(flow, location, FormatLog(log))
}

// write creates a uniquely named file with the given content.
func (p *Persister) write(flow, location, content string) (string, error) {
	var prev time.Time

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		ts := p.now()
		if !ts.After(prev) && !prev.IsZero() {
			ts = prev.Add(time.Nanosecond)
		}
		prev = ts

		path := filepath.Join(p.folder, FileName(flow, location, ts))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrLogWrite, err)
		}

		if _, err := f.WriteString(content); err != nil {
			f.Close()
			return "", fmt.Errorf("%w: %s: %v", ErrLogWrite, path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrLogWrite, path, err)
		}
		return path, nil
	}

	return "", fmt.Errorf("%w: no free file name for %s after %d attempts", ErrLogWrite, location, maxNameAttempts)
}

// FindLogLink returns the GET "log" link, or ErrNoLogLink.
func FindLogLink(links []sas.Link) (*sas.Link, error) {
	link := sas.FindLink(links, "log", "GET")
	if link == nil {
		return nil, ErrNoLogLink
	}
	return link, nil
}

// FileName builds {flow}_{sanitized location}_{timestamp}.log.
// The timestamp has nanosecond resolution.
func FileName(flow, location string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s%09d.log",
		flow,
		nonWord.ReplaceAllString(location, "_"),
		ts.Format("20060102150405"),
		ts.Nanosecond(),
	)
}

// FormatLog flattens log items into text, one line per item.
func FormatLog(log *sas.Log) string {
	if log == nil {
		return ""
	}
	lines := make([]string, len(log.Items))
	for i, item := range log.Items {
		lines[i] = item.Line
	}
	return strings.Join(lines, "\n")
}
