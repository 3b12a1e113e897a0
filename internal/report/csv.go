package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"mmsim/internal/batch"
	"mmsim/internal/engine"
)

var seriesHeader = []string{"t", "s", "r", "r_a", "r_b", "q", "cash", "pnl"}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// WriteSeriesCSV writes one row per step of s
func WriteSeriesCSV(w io.Writer, s *engine.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(seriesHeader); err != nil {
		return err
	}
	for i := 0; i < s.Len(); i++ {
		st := s.At(i)
		row := []string{
			formatFloat(st.T),
			formatFloat(st.Price),
			formatFloat(st.Reserve),
			formatFloat(st.Ask),
			formatFloat(st.Bid),
			strconv.Itoa(st.Q),
			formatFloat(st.Cash),
			formatFloat(st.PnL),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePnLMatrixCSV writes the stacked PnL of every run: one row per step,
// one column per run, preceded by a t column.
func WritePnLMatrixCSV(w io.Writer, res *batch.Result) error {
	if res == nil || res.Len() == 0 {
		return batch.ErrNoPaths
	}

	cw := csv.NewWriter(w)
	header := make([]string, res.Len()+1)
	header[0] = "t"
	for j := range res.Runs {
		header[j+1] = fmt.Sprintf("run_%d", j)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	first := res.Runs[0]
	columns := make([][]float64, res.Len())
	for j, s := range res.Runs {
		if s.Len() != first.Len() {
			return &engine.ShapeMismatchError{Want: first.Len(), Got: s.Len()}
		}
		columns[j] = s.PnL()
	}

	times := first.Times()
	row := make([]string, res.Len()+1)
	for i := range times {
		row[0] = formatFloat(times[i])
		for j := range columns {
			row[j+1] = formatFloat(columns[j][i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
