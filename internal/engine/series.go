package engine

import "encoding/json"

// State is the simulation state recorded at one step
type State struct {
	T       float64 `json:"t"`
	Price   float64 `json:"s"`
	Reserve float64 `json:"r"`
	Ask     float64 `json:"r_a"`
	Bid     float64 `json:"r_b"`
	Q       int     `json:"q"`
	Cash    float64 `json:"cash"`
	PnL     float64 `json:"pnl"`
}

// Series holds the time-aligned output of one run. It is never modified
// after Run returns; accessors hand out copies.
type Series struct {
	t, s, r, ask, bid []float64
	q                 []int
	cash, pnl         []float64

	spread   float64
	askFills int
	bidFills int
}

func newSeries(n int) *Series {
	return &Series{
		t:    make([]float64, n),
		s:    make([]float64, n),
		r:    make([]float64, n),
		ask:  make([]float64, n),
		bid:  make([]float64, n),
		q:    make([]int, n),
		cash: make([]float64, n),
		pnl:  make([]float64, n),
	}
}

func (sr *Series) record(i int, st State) {
	sr.t[i] = st.T
	sr.s[i] = st.Price
	sr.r[i] = st.Reserve
	sr.ask[i] = st.Ask
	sr.bid[i] = st.Bid
	sr.q[i] = st.Q
	sr.cash[i] = st.Cash
	sr.pnl[i] = st.PnL
}

// Len returns the number of steps
func (sr *Series) Len() int { return len(sr.t) }

// At returns the state recorded at step i
func (sr *Series) At(i int) State {
	return State{
		T:       sr.t[i],
		Price:   sr.s[i],
		Reserve: sr.r[i],
		Ask:     sr.ask[i],
		Bid:     sr.bid[i],
		Q:       sr.q[i],
		Cash:    sr.cash[i],
		PnL:     sr.pnl[i],
	}
}

// Last returns the terminal state
func (sr *Series) Last() State { return sr.At(sr.Len() - 1) }

func (sr *Series) Times() []float64 { return cloneFloats(sr.t) }
func (sr *Series) Prices() []float64 { return cloneFloats(sr.s) }
func (sr *Series) Reserve() []float64 { return cloneFloats(sr.r) }
func (sr *Series) Asks() []float64 { return cloneFloats(sr.ask) }
func (sr *Series) Bids() []float64 { return cloneFloats(sr.bid) }
func (sr *Series) Cash() []float64 { return cloneFloats(sr.cash) }
func (sr *Series) PnL() []float64 { return cloneFloats(sr.pnl) }
func (sr *Series) Inventory() []int {
	out := make([]int, len(sr.q))
	copy(out, sr.q)
	return out
}

// Spread returns the constant quoted spread used for the run
func (sr *Series) Spread() float64 { return sr.spread }

// Fills returns how many asks and bids executed over the run
func (sr *Series) Fills() (ask, bid int) { return sr.askFills, sr.bidFills }

type seriesJSON struct {
	T        []float64 `json:"t"`
	S        []float64 `json:"s"`
	R        []float64 `json:"r"`
	Ask      []float64 `json:"r_a"`
	Bid      []float64 `json:"r_b"`
	Q        []int     `json:"q"`
	Cash     []float64 `json:"cash"`
	PnL      []float64 `json:"pnl"`
	Spread   float64   `json:"spread"`
	AskFills int       `json:"ask_fills"`
	BidFills int       `json:"bid_fills"`
}

// MarshalJSON encodes the series column-wise
func (sr *Series) MarshalJSON() ([]byte, error) {
	return json.Marshal(seriesJSON{
		T:        sr.t,
		S:        sr.s,
		R:        sr.r,
		Ask:      sr.ask,
		Bid:      sr.bid,
		Q:        sr.q,
		Cash:     sr.cash,
		PnL:      sr.pnl,
		Spread:   sr.spread,
		AskFills: sr.askFills,
		BidFills: sr.bidFills,
	})
}

func cloneFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
