package index

import (
	"cmp"
	"encoding/json"
	"strconv"
)

// Result is one ranked location for a query.
type Result struct {
	Location string
	Count    int
	Score    float64
}

type resultJSON struct {
	Location string      `json:"where"`
	Count    int         `json:"count"`
	Score    json.Number `json:"score"`
}

// MarshalJSON renders the score with exactly eight decimals.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Location: r.Location,
		Count:    r.Count,
		Score:    json.Number(strconv.FormatFloat(r.Score, 'f', 8, 64)),
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	score, err := raw.Score.Float64()
	if err != nil {
		return err
	}
	*r = Result{Location: raw.Location, Count: raw.Count, Score: score}
	return nil
}

// compareResults orders by score descending, then count descending, then
// location ascending.
func compareResults(a, b Result) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Count, a.Count); c != 0 {
		return c
	}
	return cmp.Compare(a.Location, b.Location)
}
