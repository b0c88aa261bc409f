// Package archive writes the dated per-run artifacts and sweeps old ones.
package archive

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"forecastbot/internal/types"
	"forecastbot/internal/utils"

	"github.com/gorilla/feeds"
)

const (
	DefaultPrefix = "filtered_forecast"
	dateLayout    = "2006-01-02"

	FormatCSV  = "csv"
	FormatAtom = "atom"
)

// Column maps an opportunity field to an archive header.
type Column struct {
	Field  string `toml:"field"`
	Header string `toml:"header"`
}

// APFSColumns is the archive schema used for DHS APFS listings.
var APFSColumns = []Column{
	{"ID", "APFS Number"},
	{"NAICS", "NAICS"},
	{"ORGANIZATION", "Component"},
	{"REQUIREMENTS_TITLE", "Title"},
	{"CONTRACT_TYPE", "Contract Type"},
	{"CONTRACT_VEHICLE", "Contract Vehicle"},
	{"DOLLAR_RANGE", "Dollar Range"},
	{"SMALL_BUSINESS_SET_ASIDE", "Small Business Set-Aside"},
	{"SMALL_BUSINESS_PROGRAM", "Small Business Program"},
	{"CONTRACT_STATUS", "Contract Status"},
	{"CONTRACT_NUMBER", "Contract Number"},
	{"CONTRACTOR", "Contractor"},
	{"PLACE_OF_PERFORMANCE_CITY", "Place of Performance City"},
	{"PLACE_OF_PERFORMANCE_STATE", "Place of Performance State"},
	{"REQUIREMENTS_CONTACT_FIRST_NAME", "Primary Contact First Name"},
	{"REQUIREMENTS_CONTACT_LAST_NAME", "Primary Contact Last Name"},
	{"REQUIREMENTS_CONTACT_PHONE", "Primary Contact Phone"},
	{"REQUIREMENTS_CONTACT_EMAIL", "Primary Contact Email"},
	{"REQUIREMENT", "Description"},
	{"AWARD_QUARTER", "Award Quarter"},
	{"ESTIMATED_SOLICITATION_RELEASE_DATE", "Estimated Solicitation Release"},
	{"PUBLISH_DATE", "Forecast Published"},
	{"PREVIOUS_PUBLISH_DATE", "Forecast Previously Published"},
}

type Config struct {
	Dir         string
	Prefix      string
	Formats     []string
	Columns     []Column
	WriteLatest bool
	SiteURL     string
}

type writeFunc func(w io.Writer, runDate time.Time, batch []*types.Opportunity) error

type Archiver struct {
	cfg     Config
	logger  *slog.Logger
	writers map[string]writeFunc
}

func NewArchiver(cfg Config, logger *slog.Logger) (*Archiver, error) {
	if cfg.Dir == "" {
		return nil, types.NewConfigError("archive.dir", "must not be empty")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{FormatCSV}
	}
	for _, f := range cfg.Formats {
		if f != FormatCSV && f != FormatAtom {
			return nil, types.NewConfigError("archive.formats", fmt.Sprintf("unsupported format %q", f))
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{cfg: cfg, logger: logger}
	a.writers = map[string]writeFunc{
		FormatCSV:  a.writeCSV,
		FormatAtom: a.writeAtom,
	}
	return a, nil
}

func (a *Archiver) Dir() string    { return a.cfg.Dir }
func (a *Archiver) Prefix() string { return a.cfg.Prefix }

// Path returns the artifact path for runDate; runDate should already be in the
// archive's time zone.
func (a *Archiver) Path(runDate time.Time, format string) string {
	name := fmt.Sprintf("%s_%s.%s", a.cfg.Prefix, runDate.Format(dateLayout), format)
	return filepath.Join(a.cfg.Dir, name)
}

func (a *Archiver) LatestPath() string {
	return filepath.Join(a.cfg.Dir, a.cfg.Prefix+".csv")
}

// Write archives the whole batch in every configured format. All artifacts are
// staged first and renamed into place only once every one of them has been
// written, so a failed write leaves every previous artifact untouched.
func (a *Archiver) Write(ctx context.Context, runDate time.Time, batch []*types.Opportunity) ([]string, error) {
	pending := make([]*utils.PendingFile, 0, len(a.cfg.Formats)+1)
	defer func() {
		for _, p := range pending {
			p.Discard()
		}
	}()

	stage := func(path string, write func(w io.Writer) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := utils.StageFile(path, 0o644, write)
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", path, err)
		}
		pending = append(pending, p)
		return nil
	}

	for _, format := range a.cfg.Formats {
		write := a.writers[format]
		if err := stage(a.Path(runDate, format), func(w io.Writer) error {
			return write(w, runDate, batch)
		}); err != nil {
			return nil, err
		}
	}
	if a.cfg.WriteLatest {
		if err := stage(a.LatestPath(), func(w io.Writer) error {
			return a.writeCSV(w, runDate, batch)
		}); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(pending))
	for _, p := range pending {
		if err := p.Commit(); err != nil {
			return paths, fmt.Errorf("failed to archive %s: %w", p.Path(), err)
		}
		paths = append(paths, p.Path())
		a.logger.Info("Archived batch", "path", p.Path(), "items", len(batch))
	}
	return paths, nil
}

func (a *Archiver) columns(batch []*types.Opportunity) []Column {
	if len(a.cfg.Columns) > 0 {
		return a.cfg.Columns
	}

	keys := map[string]struct{}{}
	for _, opp := range batch {
		for k := range opp.Fields {
			keys[strings.ToUpper(k)] = struct{}{}
		}
	}
	delete(keys, "ID")
	delete(keys, "CODE")

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	cols := []Column{{"ID", "ID"}, {"CODE", "Code"}}
	for _, k := range sorted {
		cols = append(cols, Column{k, k})
	}
	return cols
}

func value(opp *types.Opportunity, field string) string {
	if v := opp.Field(field); v != "" {
		return v
	}
	switch strings.ToUpper(field) {
	case "ID":
		return opp.ID
	case "CODE", "NAICS":
		return opp.TargetCode
	}
	return ""
}

func (a *Archiver) writeCSV(w io.Writer, _ time.Time, batch []*types.Opportunity) error {
	cols := a.columns(batch)
	cw := csv.NewWriter(w)

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Header
		if header[i] == "" {
			header[i] = c.Field
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(cols))
	for _, opp := range batch {
		for i, c := range cols {
			row[i] = value(opp, c.Field)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func (a *Archiver) writeAtom(w io.Writer, runDate time.Time, batch []*types.Opportunity) error {
	items := make([]*feeds.Item, 0, len(batch))
	for _, opp := range batch {
		created := opp.FetchedAt
		if created.IsZero() {
			created = runDate
		}
		items = append(items, &feeds.Item{
			Id:          opp.ID,
			Title:       opp.Title(),
			Link:        &feeds.Link{Href: a.cfg.SiteURL},
			Description: value(opp, "REQUIREMENT"),
			Author:      &feeds.Author{Name: value(opp, "ORGANIZATION")},
			Created:     created,
		})
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Forecast opportunities %s", runDate.Format(dateLayout)),
		Link:        &feeds.Link{Href: a.cfg.SiteURL},
		Description: "Filtered contract forecast listings",
		Author:      &feeds.Author{Name: "forecastbot"},
		Created:     runDate,
		Items:       items,
	}
	return feed.WriteAtom(w)
}
