package binance

// apiError is the error envelope Binance returns for failed requests.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// orderResponse is the wire representation of an order, shared by the order
// placement, open orders and order history endpoints.
type orderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	StopPrice           string `json:"stopPrice"`
	Time                int64  `json:"time"`
	TransactTime        int64  `json:"transactTime"`
}

// tickerResponse is the payload of the ticker price endpoint.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// cancelResponse is the payload of the cancel order endpoint.
type cancelResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"origClientOrderId"`
	Status        string `json:"status"`
}
