package server

import (
	"fmt"
	"log"
	"net/http"
	"regexp"

	"github.com/medicore/medidash/internal/export"
)

func (s *Server) handleExportPanel(
	w http.ResponseWriter, r *http.Request,
) {
	id, panel := r.PathValue("dashboard"), r.PathValue("panel")
	f, opts, ok := s.parseFilterSet(w, r, "long")
	if !ok {
		return
	}
	long := r.URL.Query().Get("long") == "true"

	res, err := s.runner.RunPanel(r.Context(), id, panel, f, opts)
	if err != nil {
		writeRunError(w, "export "+id+"/"+panel, err)
		return
	}
	tbl := res.Table
	if long {
		if tbl, err = res.Long(); err != nil {
			writeRunError(w, "export "+id+"/"+panel, err)
			return
		}
	}

	key := f.Key()
	filename := sanitizeFilename(
		fmt.Sprintf("%s-%s-%s-%s.parquet", id, panel, key.Start, key.End),
	)
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, filename),
	)
	if _, err := export.WriteParquet(w, tbl, map[string]string{
		"dashboard": id,
		"panel":     panel,
		"title":     res.Title,
		"from":      key.Start,
		"to":        key.End,
	}); err != nil {
		log.Printf("export %s/%s: %v", id, panel, err)
	}
}

var unsafeFilename = regexp.MustCompile(`[^\w.\-]`)

func sanitizeFilename(name string) string {
	return unsafeFilename.ReplaceAllString(name, "_")
}
