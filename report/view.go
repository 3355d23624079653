package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/meter"
	"github.com/pumpline/station-core/settlement"
)

// =============================================================================
// VIEW - The presented (rounded) report
// =============================================================================
// Money is rounded to the station's minor units, percentages to 2 places.
// Nothing upstream of Present is ever rounded.

const percentPlaces int32 = 2

type View struct {
	StationID   string `json:"station_id"`
	StationName string `json:"station_name"`
	From        string `json:"from"`
	To          string `json:"to"`
	GeneratedAt string `json:"generated_at"`

	PetrolSales      float64 `json:"petrol_sales"`
	DieselSales      float64 `json:"diesel_sales"`
	SuperDieselSales float64 `json:"super_diesel_sales"`
	KeroseneSales    float64 `json:"kerosene_sales"`
	OilSales         float64 `json:"oil_sales"`
	TotalFuelSales   float64 `json:"total_fuel_sales"`
	ShopSales        float64 `json:"shop_sales"`
	TotalSales       float64 `json:"total_sales"`
	TotalLiters      float64 `json:"total_liters"`

	CashAmount       float64 `json:"cash_amount"`
	CardAmount       float64 `json:"card_amount"`
	CreditAmount     float64 `json:"credit_amount"`
	ChequeAmount     float64 `json:"cheque_amount"`
	DeclaredTotal    float64 `json:"declared_total"`
	CashPercentage   float64 `json:"cash_percentage"`
	CardPercentage   float64 `json:"card_percentage"`
	CreditPercentage float64 `json:"credit_percentage"`
	ChequePercentage float64 `json:"cheque_percentage"`

	Fuels           []FuelView     `json:"fuels"`
	POSTerminals    []TerminalView `json:"pos_terminals"`
	POSTotal        float64        `json:"pos_total"`
	CreditCustomers []CustomerView `json:"credit_customers"`
	CreditSales     float64        `json:"credit_sales"`
	CreditPayments  float64        `json:"credit_payments"`
	Cheques         []ChequeView   `json:"cheques"`
	ChequeTotal     float64        `json:"cheque_total"`

	TotalExpenses      float64            `json:"total_expenses"`
	ExpensesByCategory map[string]float64 `json:"expenses_by_category"`
	TotalDeposits      float64            `json:"total_deposits"`
	TotalLoans         float64            `json:"total_loans"`
	LoansByKind        map[string]float64 `json:"loans_by_kind"`

	NetProfit          float64 `json:"net_profit"`
	TotalVariance      float64 `json:"total_variance"`
	VariancePercentage float64 `json:"variance_percentage"`
	VarianceStatus     string  `json:"variance_status"`
	VarianceTolerance  float64 `json:"variance_tolerance"`

	ShiftCount         int     `json:"shift_count"`
	TransactionCount   int     `json:"transaction_count"`
	AverageTransaction float64 `json:"average_transaction"`

	CashPosition *float64        `json:"cash_position,omitempty"`
	Exclusions   []ExclusionView `json:"exclusions"`
	Degraded     []string        `json:"degraded,omitempty"`
}

type FuelView struct {
	FuelID         string  `json:"fuel_id"`
	FuelName       string  `json:"fuel_name"`
	Category       string  `json:"category"`
	Liters         float64 `json:"liters"`
	Amount         float64 `json:"amount"`
	UnpricedLiters float64 `json:"unpriced_liters,omitempty"`
}

type TerminalView struct {
	TerminalID       string  `json:"terminal_id"`
	TerminalName     string  `json:"terminal_name"`
	BankName         string  `json:"bank_name"`
	Visa             float64 `json:"visa"`
	Master           float64 `json:"master"`
	Amex             float64 `json:"amex"`
	QR               float64 `json:"qr"`
	Total            float64 `json:"total"`
	TransactionCount int     `json:"transaction_count"`
}

type CustomerView struct {
	CustomerID         string  `json:"customer_id"`
	Name               string  `json:"name"`
	TotalSales         float64 `json:"total_sales"`
	TransactionCount   int     `json:"transaction_count"`
	PaymentReceived    float64 `json:"payment_received"`
	AverageTransaction float64 `json:"average_transaction"`
}

type ChequeView struct {
	ID        string  `json:"id"`
	Number    string  `json:"number"`
	BankName  string  `json:"bank_name"`
	PartyName string  `json:"party_name"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
}

type ExclusionView struct {
	ShiftID      string `json:"shift_id"`
	AssignmentID string `json:"assignment_id"`
	NozzleID     string `json:"nozzle_id"`
	Start        string `json:"start_reading"`
	End          string `json:"end_reading,omitempty"`
	Reason       string `json:"reason"`
	Detail       string `json:"detail,omitempty"`
}

// Present rounds with the station's currency convention.
func (r *Report) Present() View {
	return r.PresentIn(r.Decimals)
}

// PresentIn rounds money to decimals places.
func (r *Report) PresentIn(decimals int32) View {
	money := func(d decimal.Decimal) float64 { return core.RoundMoney(d, decimals).InexactFloat64() }
	pct := func(d decimal.Decimal) float64 { return d.Round(percentPlaces).InexactFloat64() }

	v := View{
		StationID:   r.StationID,
		StationName: r.StationName,
		From:        r.Window.From.Format(time.RFC3339),
		To:          r.Window.To.Format(time.RFC3339),
		GeneratedAt: r.GeneratedAt.Format(time.RFC3339),

		PetrolSales:      money(r.PetrolSales),
		DieselSales:      money(r.DieselSales),
		SuperDieselSales: money(r.SuperDieselSales),
		KeroseneSales:    money(r.KeroseneSales),
		OilSales:         money(r.OilSales),
		TotalFuelSales:   money(r.TotalFuelSales),
		ShopSales:        money(r.ShopSales),
		TotalSales:       money(r.TotalSales),
		TotalLiters:      r.Fuel.TotalLiters.Round(3).InexactFloat64(),

		CashAmount:       money(r.Declared.Cash),
		CardAmount:       money(r.Declared.Card),
		CreditAmount:     money(r.Declared.Credit),
		ChequeAmount:     money(r.Declared.Cheque),
		DeclaredTotal:    money(r.DeclaredTotal),
		CashPercentage:   pct(r.TenderPercentage.Cash),
		CardPercentage:   pct(r.TenderPercentage.Card),
		CreditPercentage: pct(r.TenderPercentage.Credit),
		ChequePercentage: pct(r.TenderPercentage.Cheque),

		POSTotal:       money(r.POS.Total),
		CreditSales:    money(r.Credit.TotalSales),
		CreditPayments: money(r.Credit.TotalPayments),
		ChequeTotal:    money(r.Cheques.Total),

		TotalExpenses:      money(r.Expenses.Total),
		ExpensesByCategory: categoryView(r.Expenses, money),
		TotalDeposits:      money(r.Deposits.Total),
		TotalLoans:         money(r.Loans.Total),
		LoansByKind:        categoryView(r.Loans, money),

		NetProfit:          money(r.NetProfit),
		TotalVariance:      money(r.TotalVariance),
		VariancePercentage: pct(r.VariancePercentage),
		VarianceStatus:     string(r.VarianceStatus),
		VarianceTolerance:  money(r.VarianceTolerance),

		ShiftCount:         r.ShiftCount,
		TransactionCount:   r.TransactionCount,
		AverageTransaction: money(r.AverageTransaction),

		Degraded: r.Degraded,
	}

	v.Fuels = make([]FuelView, 0, len(r.Fuel.Fuels))
	for _, f := range r.Fuel.Fuels {
		v.Fuels = append(v.Fuels, FuelView{
			FuelID: f.FuelID, FuelName: f.FuelName, Category: string(f.Category),
			Liters: f.Liters.Round(3).InexactFloat64(), Amount: money(f.Amount),
			UnpricedLiters: f.UnpricedLiters.Round(3).InexactFloat64(),
		})
	}
	v.POSTerminals = make([]TerminalView, 0, len(r.POS.Terminals))
	for _, t := range r.POS.Terminals {
		v.POSTerminals = append(v.POSTerminals, TerminalView{
			TerminalID: t.TerminalID, TerminalName: t.TerminalName, BankName: t.BankName,
			Visa: money(t.Visa), Master: money(t.Master), Amex: money(t.Amex), QR: money(t.QR),
			Total: money(t.Total), TransactionCount: t.TransactionCount,
		})
	}
	v.CreditCustomers = make([]CustomerView, 0, len(r.Credit.Customers))
	for _, c := range r.Credit.Customers {
		v.CreditCustomers = append(v.CreditCustomers, CustomerView{
			CustomerID: c.CustomerID, Name: c.Name, TotalSales: money(c.TotalSales),
			TransactionCount: c.TransactionCount, PaymentReceived: money(c.PaymentReceived),
			AverageTransaction: money(c.AverageTransaction),
		})
	}
	v.Cheques = make([]ChequeView, 0, len(r.Cheques.Cheques))
	for _, c := range r.Cheques.Cheques {
		v.Cheques = append(v.Cheques, ChequeView{
			ID: c.ID, Number: c.Number, BankName: c.BankName, PartyName: c.PartyName,
			Amount: money(c.Amount), Status: string(c.Status),
		})
	}
	v.Exclusions = make([]ExclusionView, 0, len(r.Fuel.Exclusions))
	for _, x := range r.Fuel.Exclusions {
		v.Exclusions = append(v.Exclusions, exclusionView(x))
	}
	if r.CashPosition != nil {
		cp := money(*r.CashPosition)
		v.CashPosition = &cp
	}
	return v
}

func categoryView(c settlement.CategoryTotals, money func(decimal.Decimal) float64) map[string]float64 {
	out := make(map[string]float64, len(c.ByCategory))
	for k, v := range c.ByCategory {
		out[k] = money(v)
	}
	return out
}

func exclusionView(x meter.Exclusion) ExclusionView {
	v := ExclusionView{
		ShiftID: x.ShiftID, AssignmentID: x.AssignmentID, NozzleID: x.NozzleID,
		Start: x.Start.String(), Reason: string(x.Outcome), Detail: x.Detail,
	}
	if x.End != nil {
		v.End = x.End.String()
	}
	return v
}
