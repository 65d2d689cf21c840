package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/starlift/starlift/pkg/errors"
)

// LoadBatchFile reads a batch from a JSON file. Records are grouped under
// their entity type; a record's own entity field may be omitted and is
// filled in from the group it sits in.
func LoadBatchFile(path string) (*Batch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, err, "reading batch file")
	}
	var parsed Batch
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, err, "decoding batch file")
	}
	if parsed.ID == "" {
		parsed.ID = filepath.Base(path)
	}

	batch := NewBatch(parsed.ID)
	for entity, records := range parsed.Records {
		if !entity.IsValid() {
			return nil, apperrors.New(apperrors.CodeConfiguration,
				fmt.Sprintf("unknown entity type %q in batch file", entity))
		}
		for _, record := range records {
			if record.Entity == "" {
				record.Entity = entity
			}
			if record.Entity != entity {
				return nil, apperrors.New(apperrors.CodeConfiguration,
					fmt.Sprintf("record %q declares entity %q under group %q",
						record.NaturalKey, record.Entity, entity))
			}
			batch.Add(record)
		}
	}
	return batch, nil
}
