package importer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/models"
)

// Report summarizes one Sync pass.
type Report struct {
	Imported []string                   `json:"imported"`
	Failed   []string                   `json:"failed"`
	Removed  []string                   `json:"removed"`
	Schemas  []exporter.SchemaEntry     `json:"schemas"`
	Ignored  []exporter.IgnoredProperty `json:"ignored"`
}

// Sync walks the graph directory and brings the database up to date:
//   - new/changed files are imported, pages and journals before whiteboards
//   - files removed from disk have their import record dropped
//
// A file that fails to import is logged and left for the next pass.
func (s *Service) Sync(ctx context.Context) (*Report, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, err
	}
	checksums, err := s.db.AllChecksums()
	if err != nil {
		return nil, err
	}
	orderForImport(metas)

	rep := &Report{Imported: []string{}, Failed: []string{}, Removed: []string{}}
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.importLogged(ctx, "sync", m.Path, nil) {
			rep.Imported = append(rep.Imported, m.Path)
		} else {
			rep.Failed = append(rep.Failed, m.Path)
		}
	}

	// Forget files that left the directory.
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := s.Forget(p); err != nil {
			s.logger.Warn("sync: forget failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		s.logger.Debug("sync: removed stale", slog.String("path", p))
		rep.Removed = append(rep.Removed, p)
	}
	sort.Strings(rep.Removed)

	rep.Schemas = s.Schemas()
	rep.Ignored = s.Ignored()
	return rep, nil
}

// orderForImport sorts files by path with whiteboards last: shapes may only
// reference pages that already exist.
func orderForImport(metas []models.FileMetadata) {
	sort.SliceStable(metas, func(i, j int) bool {
		wi, wj := isWhiteboard(metas[i].Path), isWhiteboard(metas[j].Path)
		if wi != wj {
			return wj
		}
		return metas[i].Path < metas[j].Path
	})
}

func isWhiteboard(p string) bool {
	f, err := exporter.DetectFormat(p)
	return err == nil && f == models.FormatWhiteboard
}

