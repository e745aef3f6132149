package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Transaction IDs differ between the real and demo environments; the V
// prefix selects the paper-trading handler for the same endpoint.
func (c *Client) trID(real, demo string) string {
	if c.demo {
		return demo
	}
	return real
}

// DomesticPrice fetches the current quote for a KRX ticker.
func (c *Client) DomesticPrice(ctx context.Context, ticker string) (*DomesticPriceOutput, error) {
	query := url.Values{}
	query.Set("FID_COND_MRKT_DIV_CODE", "J")
	query.Set("FID_INPUT_ISCD", ticker)

	// Price inquiry shares one tr_id across environments.
	env, err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-price", "FHKST01010100", query)
	if err != nil {
		return nil, err
	}

	var out DomesticPriceOutput
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return nil, fmt.Errorf("failed to parse domestic price output: %w", err)
	}
	return &out, nil
}

// DomesticOrderSide selects buy or sell on the cash order endpoint.
type DomesticOrderSide string

const (
	DomesticBuy  DomesticOrderSide = "buy"
	DomesticSell DomesticOrderSide = "sell"
)

// DomesticOrder places a cash order on KRX. ordDvsn "01" is a market order,
// "00" a limit order (price required).
func (c *Client) DomesticOrder(ctx context.Context, side DomesticOrderSide, ticker, ordDvsn string, quantity int64, price string) (*OrderOutput, error) {
	var trID string
	if side == DomesticBuy {
		trID = c.trID("TTTC0802U", "VTTC0802U")
	} else {
		trID = c.trID("TTTC0801U", "VTTC0801U")
	}

	if ordDvsn == "01" {
		// Market orders carry price 0 on the wire.
		price = "0"
	}

	body := map[string]string{
		"CANO":         c.accountNo,
		"ACNT_PRDT_CD": c.product,
		"PDNO":         ticker,
		"ORD_DVSN":     ordDvsn,
		"ORD_QTY":      fmt.Sprintf("%d", quantity),
		"ORD_UNPR":     price,
	}

	env, err := c.postOrder(ctx, "/uapi/domestic-stock/v1/trading/order-cash", trID, body)
	if err != nil {
		return nil, err
	}

	var out OrderOutput
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return nil, fmt.Errorf("failed to parse order output: %w", err)
	}
	return &out, nil
}

// DomesticBalance fetches current KRX holdings and account totals.
func (c *Client) DomesticBalance(ctx context.Context) ([]DomesticBalanceRow, *DomesticBalanceSummary, error) {
	query := url.Values{}
	query.Set("CANO", c.accountNo)
	query.Set("ACNT_PRDT_CD", c.product)
	query.Set("AFHR_FLPR_YN", "N")
	query.Set("OFL_YN", "")
	query.Set("INQR_DVSN", "02")
	query.Set("UNPR_DVSN", "01")
	query.Set("FUND_STTL_ICLD_YN", "N")
	query.Set("FNCG_AMT_AUTO_RDPT_YN", "N")
	query.Set("PRCS_DVSN", "01")
	query.Set("CTX_AREA_FK100", "")
	query.Set("CTX_AREA_NK100", "")

	env, err := c.get(ctx, "/uapi/domestic-stock/v1/trading/inquire-balance", c.trID("TTTC8434R", "VTTC8434R"), query)
	if err != nil {
		return nil, nil, err
	}

	var rows []DomesticBalanceRow
	if len(env.Output1) > 0 {
		if err := json.Unmarshal(env.Output1, &rows); err != nil {
			return nil, nil, fmt.Errorf("failed to parse balance rows: %w", err)
		}
	}

	// output2 arrives as a single-element array.
	var summaries []DomesticBalanceSummary
	if len(env.Output2) > 0 {
		if err := json.Unmarshal(env.Output2, &summaries); err != nil {
			return nil, nil, fmt.Errorf("failed to parse balance summary: %w", err)
		}
	}
	var summary *DomesticBalanceSummary
	if len(summaries) > 0 {
		summary = &summaries[0]
	}

	return rows, summary, nil
}

// OverseasPrice fetches the current quote for a US ticker on the given
// exchange (EXCD: NAS, NYS or AMS).
func (c *Client) OverseasPrice(ctx context.Context, excd, ticker string) (*OverseasPriceOutput, error) {
	query := url.Values{}
	query.Set("AUTH", "")
	query.Set("EXCD", excd)
	query.Set("SYMB", ticker)

	env, err := c.get(ctx, "/uapi/overseas-price/v1/quotations/price", "HHDFS00000300", query)
	if err != nil {
		return nil, err
	}

	var out OverseasPriceOutput
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return nil, fmt.Errorf("failed to parse overseas price output: %w", err)
	}
	return &out, nil
}

// OverseasOrderSide selects buy or sell on the overseas order endpoint.
type OverseasOrderSide string

const (
	OverseasBuy  OverseasOrderSide = "buy"
	OverseasSell OverseasOrderSide = "sell"
)

// OverseasOrder places an order on a US exchange. The endpoint only accepts
// limit orders (ORD_DVSN 00); callers emulate market orders by quoting first.
// exchange is the order venue code (NASD, NYSE or AMEX).
func (c *Client) OverseasOrder(ctx context.Context, side OverseasOrderSide, exchange, ticker string, quantity int64, price string) (*OrderOutput, error) {
	var trID string
	if side == OverseasBuy {
		trID = c.trID("TTTT1002U", "VTTT1002U")
	} else {
		trID = c.trID("TTTT1006U", "VTTT1006U")
	}

	body := map[string]string{
		"CANO":           c.accountNo,
		"ACNT_PRDT_CD":   c.product,
		"OVRS_EXCG_CD":   exchange,
		"PDNO":           ticker,
		"ORD_QTY":        fmt.Sprintf("%d", quantity),
		"OVRS_ORD_UNPR":  price,
		"ORD_SVR_DVSN_CD": "0",
		"ORD_DVSN":       "00",
	}

	env, err := c.postOrder(ctx, "/uapi/overseas-stock/v1/trading/order", trID, body)
	if err != nil {
		return nil, err
	}

	var out OrderOutput
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return nil, fmt.Errorf("failed to parse order output: %w", err)
	}
	return &out, nil
}

// OverseasBalance fetches current US holdings and account totals.
func (c *Client) OverseasBalance(ctx context.Context) ([]OverseasBalanceRow, *OverseasBalanceSummary, error) {
	query := url.Values{}
	query.Set("CANO", c.accountNo)
	query.Set("ACNT_PRDT_CD", c.product)
	query.Set("OVRS_EXCG_CD", "NASD")
	query.Set("TR_CRCY_CD", "USD")
	query.Set("CTX_AREA_FK200", "")
	query.Set("CTX_AREA_NK200", "")

	env, err := c.get(ctx, "/uapi/overseas-stock/v1/trading/inquire-balance", c.trID("TTTS3012R", "VTTS3012R"), query)
	if err != nil {
		return nil, nil, err
	}

	var rows []OverseasBalanceRow
	if len(env.Output1) > 0 {
		if err := json.Unmarshal(env.Output1, &rows); err != nil {
			return nil, nil, fmt.Errorf("failed to parse balance rows: %w", err)
		}
	}

	var summaries []OverseasBalanceSummary
	if len(env.Output2) > 0 {
		// output2 is an object on this endpoint, not an array.
		var summary OverseasBalanceSummary
		if err := json.Unmarshal(env.Output2, &summary); err != nil {
			if err := json.Unmarshal(env.Output2, &summaries); err != nil {
				return nil, nil, fmt.Errorf("failed to parse balance summary: %w", err)
			}
		} else {
			summaries = append(summaries, summary)
		}
	}
	var summary *OverseasBalanceSummary
	if len(summaries) > 0 {
		summary = &summaries[0]
	}

	return rows, summary, nil
}
