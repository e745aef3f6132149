package sdk

// KIS returns every numeric field as a decimal string; parsing happens in the
// kis package transformers, not here.

// DomesticPriceOutput is the output block of FHKST01010100
// (/uapi/domestic-stock/v1/quotations/inquire-price).
type DomesticPriceOutput struct {
	Price      string `json:"stck_prpr"`      // last traded price
	PrevClose  string `json:"stck_sdpr"`     // previous close
	ChangeRate string `json:"prdy_ctrt"`     // change vs previous day, percent
	Volume     string `json:"acml_vol"`      // accumulated volume
	MarketName string `json:"rprs_mrkt_kor_name"`
}

// OverseasPriceOutput is the output block of HHDFS00000300
// (/uapi/overseas-price/v1/quotations/price). An empty Price means the venue
// has no row for the ticker on the queried exchange.
type OverseasPriceOutput struct {
	Price      string `json:"last"`
	PrevClose  string `json:"base"`
	ChangeRate string `json:"rate"`
	Volume     string `json:"tvol"`
	Currency   string `json:"curr"`
}

// OrderOutput is the output block of both order endpoints.
type OrderOutput struct {
	OrderNo   string `json:"ODNO"`
	OrderTime string `json:"ORD_TMD"`
	KRXFwdgNo string `json:"KRX_FWDG_ORD_ORGNO"`
}

// DomesticBalanceRow is one holding row (output1) of TTTC8434R
// (/uapi/domestic-stock/v1/trading/inquire-balance).
type DomesticBalanceRow struct {
	Ticker       string `json:"pdno"`
	Name         string `json:"prdt_name"`
	Quantity     string `json:"hldg_qty"`
	AvgPrice     string `json:"pchs_avg_pric"`
	CurrentPrice string `json:"prpr"`
	EvalAmount   string `json:"evlu_amt"`
	ProfitRate   string `json:"evlu_pfls_rt"`
}

// DomesticBalanceSummary is the totals row (output2) of the domestic balance
// inquiry.
type DomesticBalanceSummary struct {
	Cash        string `json:"dnca_tot_amt"` // deposit total
	TotalEval   string `json:"tot_evlu_amt"`
	TotalProfit string `json:"evlu_pfls_smtl_amt"`
}

// OverseasBalanceRow is one holding row (output1) of TTTS3012R
// (/uapi/overseas-stock/v1/trading/inquire-balance).
type OverseasBalanceRow struct {
	Ticker       string `json:"ovrs_pdno"`
	Name         string `json:"ovrs_item_name"`
	Quantity     string `json:"ovrs_cblc_qty"`
	AvgPrice     string `json:"pchs_avg_pric"`
	CurrentPrice string `json:"now_pric2"`
	EvalAmount   string `json:"ovrs_stck_evlu_amt"`
	ProfitRate   string `json:"evlu_pfls_rt"`
	Exchange     string `json:"ovrs_excg_cd"`
	Currency     string `json:"tr_crcy_cd"`
}

// OverseasBalanceSummary is the totals row (output2) of the overseas balance
// inquiry.
type OverseasBalanceSummary struct {
	Cash        string `json:"frcr_dncl_amt_2"` // foreign-currency deposit
	TotalEval   string `json:"tot_evlu_pfls_amt"`
	TotalProfit string `json:"ovrs_tot_pfls"`
}
