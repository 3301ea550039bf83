package store

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// jsonMarshal and jsonUnmarshal wrap encoding/json for the doc columns.
// Unlike pkg/crypto.Canonical, document storage doesn't need determinism:
// only the content hash does.
func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// pqStringArray adapts a []string to the driver.Valuer lib/pq expects for a
// TEXT[] column.
func pqStringArray(values []string) interface{} {
	return pq.Array(values)
}

// parseTimestamp converts the model's string timestamp (unix seconds, as a
// decimal string per §3) into a float for the block_timestamp ordering
// column. A malformed timestamp sorts as zero rather than failing the
// write; nothing on the write path rejects malformed timestamps.
func parseTimestamp(s string) float64 {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
