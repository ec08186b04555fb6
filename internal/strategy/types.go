package strategy

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Violation is the result of the constraint check for one cycle. Deviation is
// signed (observed − expected); Magnitude is its absolute value.
type Violation struct {
	Pair      string
	Expected  float64
	Observed  float64
	Deviation float64
	Magnitude float64
}

// Opportunity is a scored, cost-adjusted trade candidate. It lives for one
// decision cycle only.
type Opportunity struct {
	Pair              string
	Direction         Direction
	NotionalUSD       float64
	RawEdgeUSD        float64
	FeeUSD            float64
	SlippageUSD       float64
	NetProfitUSD      float64
	FillProbability   float64
	ExpectedProfitUSD float64
}
