package dashboard

import (
	"github.com/medicore/medidash/internal/query"
)

var (
	claimLinesTable  = query.Table{Schema: query.SchemaBilling, Name: "CLAIM_LINE_ITEMS"}
	claimsTable      = query.Table{Schema: query.SchemaBilling, Name: "CLAIMS"}
	departmentsTable = query.Table{Schema: query.SchemaReference, Name: "DIM_DEPARTMENTS"}
)

// claimLineSpec joins each claim line to its claim and department.
// Panels that group by payer drop the payer filter.
func claimLineSpec(name string, payerFilter bool) query.Spec {
	filters := map[query.Dimension]string{
		query.Department:  "d.DEPARTMENT_NAME",
		query.ClaimStatus: "c.CLAIM_STATUS",
	}
	if payerFilter {
		filters[query.Payer] = "c.PAYER_TYPE"
	}
	return query.Spec{
		Name:  name,
		Table: claimLinesTable,
		Alias: "cli",
		Joins: []query.Join{
			{Table: claimsTable, Alias: "c", On: "cli.CLAIM_ID = c.CLAIM_ID"},
			{
				Table: departmentsTable,
				Alias: "d",
				On:    "cli.DEPARTMENT_ID = d.DEPARTMENT_ID",
			},
		},
		DateColumn: "cli.SERVICE_DATE",
		Filters:    filters,
	}
}

var (
	billed     = query.Sum("cli.LINE_BILLED_AMOUNT")
	netRevenue = query.Sum("cli.LINE_NET_REVENUE")
	denialRate = query.Rate("SUM(cli.DENIAL_FLAG_NUMERIC)", query.Count())
)

var revenueKPIs = func() query.Spec {
	s := claimLineSpec("revenue_kpis", true)
	s.Select = []query.Column{
		{Name: "TOTAL_BILLED", Expr: billed, Kind: query.Decimal},
		// Paid is reported from net revenue; the line items carry no
		// separate paid amount.
		{Name: "TOTAL_PAID", Expr: netRevenue, Kind: query.Decimal},
		{Name: "NET_REVENUE", Expr: netRevenue, Kind: query.Decimal},
		{Name: "DENIAL_RATE", Expr: denialRate, Kind: query.Decimal},
	}
	return s
}()

var revenueTrend = monthly(
	claimLineSpec("revenue_trend", true), "cli.SERVICE_MONTH",
	query.Column{Name: "BILLED_AMOUNT", Expr: billed, Kind: query.Decimal},
	query.Column{Name: "NET_REVENUE", Expr: netRevenue, Kind: query.Decimal},
)

var denialTrend = monthly(
	claimLineSpec("denial_trend", true), "cli.SERVICE_MONTH",
	query.Column{Name: "DENIAL_RATE", Expr: denialRate, Kind: query.Decimal},
)

// byPayer ranks payers by one measure, largest first.
func byPayer(name string, measure query.Column) query.Spec {
	s := claimLineSpec(name, false)
	s.Select = []query.Column{
		{
			Name: "PAYER_TYPE",
			Expr: query.Label("c.PAYER_TYPE", "Unknown"),
			Kind: query.Category,
		},
		measure,
	}
	s.GroupBy = "c.PAYER_TYPE"
	s.OrderBy = []query.Order{query.Desc(measure.Name), query.Asc("PAYER_TYPE")}
	return s
}

var denialsByPayer = byPayer("denials_by_payer", query.Column{
	Name: "DENIED_COUNT",
	Expr: query.Sum("cli.DENIAL_FLAG_NUMERIC"),
	Kind: query.Integer,
})

var payerMix = byPayer("payer_mix", query.Column{
	Name: "REVENUE", Expr: netRevenue, Kind: query.Decimal,
})

var topProcedures = func() query.Spec {
	s := claimLineSpec("top_procedures", true)
	s.Where = []string{"cli.PROCEDURE_CODE IS NOT NULL"}
	s.Select = []query.Column{
		{Name: "PROCEDURE_CODE", Expr: "cli.PROCEDURE_CODE", Kind: query.Category},
		{Name: "TOTAL_REVENUE", Expr: netRevenue, Kind: query.Decimal},
	}
	s.GroupBy = "cli.PROCEDURE_CODE"
	s.OrderBy = []query.Order{
		query.Desc("TOTAL_REVENUE"), query.Asc("PROCEDURE_CODE"),
	}
	s.Limit = query.TopN
	return s
}()

var revenue = Dashboard{
	ID:    "revenue",
	Title: "MediCore Revenue & Claims Dashboard",
	Filters: []OptionSource{
		{query.Payer, claimsTable, "PAYER_TYPE"},
		{query.Department, departmentsTable, "DEPARTMENT_NAME"},
		{query.ClaimStatus, claimsTable, "CLAIM_STATUS"},
	},
	Panels: []Panel{
		{
			ID:        "kpis",
			Title:     "Key Performance Indicators",
			Statement: revenueKPIs,
			Chart:     Chart{Type: "metric"},
		},
		{
			ID:        "revenue_trend",
			Title:     "Revenue Trend",
			Statement: revenueTrend,
			Chart: Chart{
				Type: "area", X: "MONTH_KEY",
				Series:  []string{"BILLED_AMOUNT", "NET_REVENUE"},
				VarName: "Metric", ValueName: "Amount",
			},
			NoData: "No revenue trend data available for the selected filters.",
		},
		{
			ID:        "denial_trend",
			Title:     "Denial Rate Trend (%)",
			Statement: denialTrend,
			Chart: Chart{
				Type: "line", X: "MONTH_KEY", Series: []string{"DENIAL_RATE"},
			},
			NoData: "No denial trend data available.",
		},
		{
			ID:        "denials_by_payer",
			Title:     "Denials by Payer",
			Statement: denialsByPayer,
			Chart: Chart{
				Type: "bar", X: "PAYER_TYPE", Series: []string{"DENIED_COUNT"},
			},
			NoData: "No denial data by payer available.",
		},
		{
			ID:        "payer_mix",
			Title:     "Payer Mix - Revenue by Payer Type",
			Statement: payerMix,
			Chart: Chart{
				Type: "bar", X: "PAYER_TYPE", Series: []string{"REVENUE"},
			},
			NoData: "No payer mix data available for the selected filters.",
		},
		{
			ID:        "top_procedures",
			Title:     "Top 10 Procedures by Revenue",
			Statement: topProcedures,
			Chart: Chart{
				Type: "bar", X: "PROCEDURE_CODE", Series: []string{"TOTAL_REVENUE"},
			},
			NoData: "No procedure revenue data available for the selected filters.",
		},
	},
}
