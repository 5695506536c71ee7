package insights

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Entry is one exported record together with the file it was read from.
type Entry struct {
	Name   string
	Record *conversation.Record
}

// LoadFolder reads every *.json export in dir, ordered by file name. Files
// that cannot be decoded are logged and skipped.
func LoadFolder(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read folder %s", dir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	ret := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		p := filepath.Join(dir, f.Name())
		rec, err := loadFile(p)
		if err != nil {
			log.Warn().Err(err).Str("file", p).Msg("skipping record")
			continue
		}
		ret = append(ret, Entry{Name: f.Name(), Record: rec})
	}

	log.Debug().Str("dir", dir).Int("records", len(ret)).Msg("loaded records")
	return ret, nil
}

func loadFile(path string) (*conversation.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec conversation.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, errors.Wrap(err, "could not decode record")
	}
	if err := rec.Normalize(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Records strips the file names from entries.
func Records(entries []Entry) []*conversation.Record {
	ret := make([]*conversation.Record, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, e.Record)
	}
	return ret
}
