package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// marshalJSONColumn encodes v for a jsonb (postgres) or text (sqlite) column.
func marshalJSONColumn(v any) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func unmarshalJSONColumn(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(v), dst)
	case []byte:
		return json.Unmarshal(v, dst)
	default:
		return fmt.Errorf("json column: unsupported scan type %T", src)
	}
}
