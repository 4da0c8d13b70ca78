package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	condacore "github.com/conda-incubator/condacore"
)

// jsonbRecord is a type definition for condacore.PackageRecord, letting it be
// cast to obtain a Value/Scan method set for storage in a jsonb column.
type jsonbRecord condacore.PackageRecord

func (r jsonbRecord) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *jsonbRecord) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("postgres: failed to type assert record to []byte")
	}
	return json.Unmarshal(b, r)
}
